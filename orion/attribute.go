package orion

import (
	"encoding/json"
)

// Kind is the closed set of attribute value types the broker's typed
// attribute convention knows about.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindDouble
	KindInteger
)

// String returns the broker type tag of the kind.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "Float"
	case KindDouble:
		return "Double"
	case KindInteger:
		return "Integer"
	default:
		return "String"
	}
}

// Value is a tagged scalar. The zero Value is the empty String.
type Value struct {
	kind Kind
	str  string
	f32  float32
	f64  float64
	i32  int32
}

func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func FloatValue(f float32) Value  { return Value{kind: KindFloat, f32: f} }
func DoubleValue(f float64) Value { return Value{kind: KindDouble, f64: f} }
func IntegerValue(i int32) Value  { return Value{kind: KindInteger, i32: i} }

// Kind of the value.
func (v Value) Kind() Kind { return v.kind }

// TypeTag is the "type" field expected next to the value in broker JSON.
func (v Value) TypeTag() string { return v.kind.String() }

// Interface returns the underlying Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return v.f32
	case KindDouble:
		return v.f64
	case KindInteger:
		return v.i32
	default:
		return v.str
	}
}

// MarshalJSON encodes the bare scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Attribute is one named, typed entity attribute.
type Attribute struct {
	Name  string
	Value Value
}

type typedValue struct {
	Value Value  `json:"value"`
	Type  string `json:"type"`
}

// attributeMap builds {"<name>": {"value": ..., "type": ...}, ...}.
func attributeMap(attrs []Attribute) map[string]any {
	body := make(map[string]any, len(attrs)+2)
	for _, a := range attrs {
		body[a.Name] = typedValue{Value: a.Value, Type: a.Value.TypeTag()}
	}
	return body
}
