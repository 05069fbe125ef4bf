package ndn

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// Component is one name component.
type Component struct {
	Type  uint64
	Value []byte
}

// GenericComponent wraps raw bytes as a generic name component.
func GenericComponent(value []byte) Component {
	return Component{Type: TypeGenericNameComponent, Value: value}
}

// StringComponent is a generic component holding the UTF-8 bytes of s.
func StringComponent(s string) Component {
	return GenericComponent([]byte(s))
}

// String renders the component in NDN URI form with percent escaping.
func (c Component) String() string {
	switch c.Type {
	case TypeGenericNameComponent:
		return escapeComponent(c.Value)
	case TypeImplicitSha256DigestComponent:
		return "sha256digest=" + hex.EncodeToString(c.Value)
	case TypeParametersSha256DigestComponent:
		return "params-sha256=" + hex.EncodeToString(c.Value)
	default:
		return fmt.Sprintf("%d=%s", c.Type, escapeComponent(c.Value))
	}
}

// Equal compares type and value.
func (c Component) Equal(o Component) bool {
	return c.Type == o.Type && bytes.Equal(c.Value, o.Value)
}

func (c Component) encode(b []byte) []byte {
	return appendTLV(b, c.Type, c.Value)
}

func isUnreserved(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func escapeComponent(v []byte) string {
	if len(bytes.Trim(v, ".")) == 0 {
		// all periods (or empty): three extra periods keep it unambiguous
		return "..." + string(v)
	}
	var sb strings.Builder
	for _, c := range v {
		if isUnreserved(c) {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, "%%%02X", c)
		}
	}
	return sb.String()
}

func unescapeComponent(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			out = append(out, s[i])
			continue
		}
		if i+2 >= len(s) {
			return nil, fmt.Errorf("ndn: truncated escape in %q", s)
		}
		b, err := hex.DecodeString(s[i+1 : i+3])
		if err != nil {
			return nil, fmt.Errorf("ndn: bad escape in %q: %w", s, err)
		}
		out = append(out, b[0])
		i += 2
	}
	if len(bytes.Trim(out, ".")) == 0 {
		if len(out) < 3 {
			return nil, fmt.Errorf("ndn: illegal component %q", s)
		}
		out = out[3:]
	}
	return out, nil
}

// Name is an ordered sequence of components.
type Name []Component

// ParseName parses an NDN URI such as "/esp/fiware". Only generic
// components are supported.
func ParseName(uri string) (Name, error) {
	uri = strings.TrimPrefix(strings.TrimSpace(uri), "ndn:")
	var n Name
	for _, part := range strings.Split(uri, "/") {
		if part == "" {
			continue
		}
		v, err := unescapeComponent(part)
		if err != nil {
			return nil, err
		}
		n = append(n, GenericComponent(v))
	}
	return n, nil
}

// MustParseName is ParseName that panics on error.
func MustParseName(uri string) Name {
	n, err := ParseName(uri)
	if err != nil {
		panic(err)
	}
	return n
}

// String renders the name as an NDN URI.
func (n Name) String() string {
	if len(n) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, c := range n {
		sb.WriteByte('/')
		sb.WriteString(c.String())
	}
	return sb.String()
}

// Append returns a new name with the components appended.
func (n Name) Append(cs ...Component) Name {
	out := make(Name, 0, len(n)+len(cs))
	out = append(out, n...)
	return append(out, cs...)
}

// IsPrefixOf reports whether n is a prefix of (or equal to) other.
func (n Name) IsPrefixOf(other Name) bool {
	if len(n) > len(other) {
		return false
	}
	for i := range n {
		if !n[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Equal reports component-wise equality.
func (n Name) Equal(other Name) bool {
	return len(n) == len(other) && n.IsPrefixOf(other)
}

// encodeComponents appends the component TLVs without the outer Name TLV.
func (n Name) encodeComponents(b []byte) []byte {
	for _, c := range n {
		b = c.encode(b)
	}
	return b
}

func (n Name) encode(b []byte) []byte {
	return appendTLV(b, TypeName, n.encodeComponents(nil))
}

func decodeName(value []byte) (Name, error) {
	els, err := readElements(value)
	if err != nil {
		return nil, err
	}
	n := make(Name, 0, len(els))
	for _, el := range els {
		if el.Type == 0 || el.Type > 0xffff {
			return nil, fmt.Errorf("%w: name component type %d", ErrMalformed, el.Type)
		}
		v := make([]byte, len(el.Value))
		copy(v, el.Value)
		n = append(n, Component{Type: el.Type, Value: v})
	}
	return n, nil
}
