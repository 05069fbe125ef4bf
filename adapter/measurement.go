package adapter

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dratasich/ndn-orion-adapter/ndn"
)

// valueSize is the width of the encoded double in the last name component.
const valueSize = 8

// DecodeError reports a measurement name that cannot be decoded.
type DecodeError struct {
	Name   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Name, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Measurement is a single sensor sample carried in an interest name.
type Measurement struct {
	DeviceID int64
	// Path is the attribute path, components joined by ':'.
	Path  string
	Value float64
}

// EntityID joins the measurement into the broker's entity id space,
// e.g. SensorValue:12347:value.
func (m Measurement) EntityID(entityType string) string {
	return entityType + ":" + strconv.FormatInt(m.DeviceID, 10) + ":" + m.Path
}

// DecodeMeasurement parses {prefix}/{device-id}/{path...}/{value}.
func DecodeMeasurement(prefix, name ndn.Name) (Measurement, error) {
	derr := func(reason string, err error) error {
		return &DecodeError{Name: name.String(), Reason: reason, Err: err}
	}
	if !prefix.IsPrefixOf(name) {
		return Measurement{}, derr("name is not under "+prefix.String(), nil)
	}
	rest := name[len(prefix):]
	if len(rest) < 3 {
		return Measurement{}, derr(fmt.Sprintf("expected device id, attribute path and value, got %d components", len(rest)), nil)
	}

	id, err := strconv.ParseInt(string(rest[0].Value), 10, 64)
	if err != nil {
		return Measurement{}, derr("device id is not numeric", err)
	}

	// URI form of the path with its slashes mapped to ':'
	path := make([]string, 0, len(rest)-2)
	for _, c := range rest[1 : len(rest)-1] {
		path = append(path, c.String())
	}

	raw := rest[len(rest)-1].Value
	if len(raw) != valueSize {
		return Measurement{}, derr(fmt.Sprintf("value component has %d bytes, want %d", len(raw), valueSize), nil)
	}

	return Measurement{
		DeviceID: id,
		Path:     strings.Join(path, ":"),
		Value:    decodeValue(raw),
	}, nil
}

// EncodeMeasurement builds the interest name a producer sends for m.
func EncodeMeasurement(prefix ndn.Name, m Measurement) ndn.Name {
	name := prefix.Append(ndn.StringComponent(strconv.FormatInt(m.DeviceID, 10)))
	for _, p := range strings.Split(m.Path, ":") {
		name = name.Append(ndn.StringComponent(p))
	}
	return name.Append(ndn.GenericComponent(encodeValue(m.Value)))
}

// decodeValue reverses the component bytes and reads the result as a
// big-endian IEEE-754 double. Producers write the double in their native
// little-endian buffer order.
func decodeValue(raw []byte) float64 {
	var buf [valueSize]byte
	for i := range buf {
		buf[i] = raw[valueSize-1-i]
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf[:]))
}

func encodeValue(v float64) []byte {
	var buf [valueSize]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	out := make([]byte, valueSize)
	for i := range buf {
		out[i] = buf[valueSize-1-i]
	}
	return out
}
