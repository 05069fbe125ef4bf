package ndn

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// TLV type numbers used by this client.
const (
	TypeImplicitSha256DigestComponent   = 0x01
	TypeParametersSha256DigestComponent = 0x02
	TypeInterest                        = 0x05
	TypeData                            = 0x06
	TypeName                            = 0x07
	TypeGenericNameComponent            = 0x08
	TypeNonce                           = 0x0a
	TypeInterestLifetime                = 0x0c
	TypeMustBeFresh                     = 0x12
	TypeMetaInfo                        = 0x14
	TypeContent                         = 0x15
	TypeSignatureInfo                   = 0x16
	TypeSignatureValue                  = 0x17
	TypeContentType                     = 0x18
	TypeFreshnessPeriod                 = 0x19
	TypeSignatureType                   = 0x1b
	TypeKeyLocator                      = 0x1c
	TypeCanBePrefix                     = 0x21
	TypeHopLimit                        = 0x22
	TypeApplicationParameters           = 0x24

	typeForwardingHint = 0x1e

	// NFD management
	TypeControlResponse   = 0x65
	TypeStatusCode        = 0x66
	TypeStatusText        = 0x67
	TypeControlParameters = 0x68
	TypeFaceID            = 0x69
	TypeCost              = 0x6a
	TypeFlags             = 0x6c
	TypeOrigin            = 0x6f

	// NDNLPv2
	TypeLpFragment = 0x50
	TypeLpPacket   = 0x64
	TypeLpNack     = 0x0320
)

// maxPacketSize is the largest packet NFD will forward.
const maxPacketSize = 8800

var (
	// ErrMalformed is returned for any TLV that cannot be parsed.
	ErrMalformed = errors.New("ndn: malformed tlv")
	// ErrPacketTooLarge is returned when a peer announces an oversized packet.
	ErrPacketTooLarge = errors.New("ndn: packet too large")
)

// element is one decoded TLV. Wire holds the full encoding including
// type and length, Value aliases the same buffer.
type element struct {
	Type  uint64
	Value []byte
	Wire  []byte
}

func varNumLen(v uint64) int {
	switch {
	case v < 253:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

func appendVarNum(b []byte, v uint64) []byte {
	switch {
	case v < 253:
		return append(b, byte(v))
	case v <= 0xffff:
		b = append(b, 0xfd)
		return binary.BigEndian.AppendUint16(b, uint16(v))
	case v <= 0xffffffff:
		b = append(b, 0xfe)
		return binary.BigEndian.AppendUint32(b, uint32(v))
	default:
		b = append(b, 0xff)
		return binary.BigEndian.AppendUint64(b, v)
	}
}

// appendNonNeg appends the shortest NonNegativeInteger encoding of v.
func appendNonNeg(b []byte, v uint64) []byte {
	switch {
	case v <= 0xff:
		return append(b, byte(v))
	case v <= 0xffff:
		return binary.BigEndian.AppendUint16(b, uint16(v))
	case v <= 0xffffffff:
		return binary.BigEndian.AppendUint32(b, uint32(v))
	default:
		return binary.BigEndian.AppendUint64(b, v)
	}
}

func appendTLV(b []byte, typ uint64, value []byte) []byte {
	b = appendVarNum(b, typ)
	b = appendVarNum(b, uint64(len(value)))
	return append(b, value...)
}

func appendNonNegTLV(b []byte, typ uint64, v uint64) []byte {
	return appendTLV(b, typ, appendNonNeg(nil, v))
}

func readVarNum(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrMalformed
	}
	switch first := b[0]; {
	case first < 253:
		return uint64(first), 1, nil
	case first == 0xfd:
		if len(b) < 3 {
			return 0, 0, ErrMalformed
		}
		return uint64(binary.BigEndian.Uint16(b[1:])), 3, nil
	case first == 0xfe:
		if len(b) < 5 {
			return 0, 0, ErrMalformed
		}
		return uint64(binary.BigEndian.Uint32(b[1:])), 5, nil
	default:
		if len(b) < 9 {
			return 0, 0, ErrMalformed
		}
		return binary.BigEndian.Uint64(b[1:]), 9, nil
	}
}

func readElement(b []byte) (element, int, error) {
	typ, n1, err := readVarNum(b)
	if err != nil {
		return element{}, 0, err
	}
	length, n2, err := readVarNum(b[n1:])
	if err != nil {
		return element{}, 0, err
	}
	start := n1 + n2
	if length > uint64(len(b)-start) {
		return element{}, 0, fmt.Errorf("%w: type %#x declares %d bytes, %d left", ErrMalformed, typ, length, len(b)-start)
	}
	end := start + int(length)
	return element{Type: typ, Value: b[start:end], Wire: b[:end]}, end, nil
}

// readElements splits a TLV value into its direct children.
func readElements(b []byte) ([]element, error) {
	var out []element
	for len(b) > 0 {
		el, n, err := readElement(b)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
		b = b[n:]
	}
	return out, nil
}

func parseNonNeg(b []byte) (uint64, error) {
	switch len(b) {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), nil
	case 8:
		return binary.BigEndian.Uint64(b), nil
	default:
		return 0, fmt.Errorf("%w: nonNegativeInteger of %d bytes", ErrMalformed, len(b))
	}
}

// isCritical reports whether an unknown TLV type must not be ignored.
func isCritical(typ uint64) bool {
	return typ <= 31 || typ%2 == 1
}

func readStreamVarNum(r io.ByteReader) (uint64, []byte, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	size := 0
	switch first {
	case 0xfd:
		size = 2
	case 0xfe:
		size = 4
	case 0xff:
		size = 8
	default:
		return uint64(first), []byte{first}, nil
	}
	raw := make([]byte, 1, 1+size)
	raw[0] = first
	for i := 0; i < size; i++ {
		c, err := r.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		raw = append(raw, c)
	}
	v, _, err := readVarNum(raw)
	return v, raw, err
}

// readPacket reads one top-level TLV from a stream transport.
func readPacket(r *bufio.Reader) ([]byte, error) {
	_, typRaw, err := readStreamVarNum(r)
	if err != nil {
		return nil, err
	}
	length, lenRaw, err := readStreamVarNum(r)
	if err != nil {
		return nil, err
	}
	if length > maxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, length)
	}
	wire := make([]byte, 0, len(typRaw)+len(lenRaw)+int(length))
	wire = append(wire, typRaw...)
	wire = append(wire, lenRaw...)
	wire = wire[:cap(wire)]
	if _, err := io.ReadFull(r, wire[len(typRaw)+len(lenRaw):]); err != nil {
		return nil, err
	}
	return wire, nil
}
