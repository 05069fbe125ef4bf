package ndn

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// DefaultInterestLifetime applies when an interest carries no lifetime.
const DefaultInterestLifetime = 4 * time.Second

// Interest is an NDN packet format v0.3 interest.
type Interest struct {
	Name                  Name
	CanBePrefix           bool
	MustBeFresh           bool
	Nonce                 uint32
	Lifetime              time.Duration
	HopLimit              *uint8
	ApplicationParameters []byte
}

// NewNonce returns a random interest nonce.
func NewNonce() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Encode returns the Interest TLV. The nonce is always present on the wire.
func (i *Interest) Encode() []byte {
	var v []byte
	v = i.Name.encode(v)
	if i.CanBePrefix {
		v = appendTLV(v, TypeCanBePrefix, nil)
	}
	if i.MustBeFresh {
		v = appendTLV(v, TypeMustBeFresh, nil)
	}
	v = appendTLV(v, TypeNonce, binary.BigEndian.AppendUint32(nil, i.Nonce))
	if i.Lifetime > 0 && i.Lifetime != DefaultInterestLifetime {
		v = appendNonNegTLV(v, TypeInterestLifetime, uint64(i.Lifetime/time.Millisecond))
	}
	if i.HopLimit != nil {
		v = appendTLV(v, TypeHopLimit, []byte{*i.HopLimit})
	}
	if i.ApplicationParameters != nil {
		v = appendTLV(v, TypeApplicationParameters, i.ApplicationParameters)
	}
	return appendTLV(nil, TypeInterest, v)
}

// DecodeInterest parses an Interest TLV.
func DecodeInterest(wire []byte) (*Interest, error) {
	el, _, err := readElement(wire)
	if err != nil {
		return nil, err
	}
	if el.Type != TypeInterest {
		return nil, fmt.Errorf("%w: expected interest, got type %#x", ErrMalformed, el.Type)
	}
	children, err := readElements(el.Value)
	if err != nil {
		return nil, err
	}
	i := &Interest{Lifetime: DefaultInterestLifetime}
	hasName := false
	for _, c := range children {
		switch c.Type {
		case TypeName:
			if i.Name, err = decodeName(c.Value); err != nil {
				return nil, err
			}
			hasName = true
		case TypeCanBePrefix:
			i.CanBePrefix = true
		case TypeMustBeFresh:
			i.MustBeFresh = true
		case TypeNonce:
			if len(c.Value) != 4 {
				return nil, fmt.Errorf("%w: nonce of %d bytes", ErrMalformed, len(c.Value))
			}
			i.Nonce = binary.BigEndian.Uint32(c.Value)
		case TypeInterestLifetime:
			ms, err := parseNonNeg(c.Value)
			if err != nil {
				return nil, err
			}
			i.Lifetime = time.Duration(ms) * time.Millisecond
		case TypeHopLimit:
			if len(c.Value) != 1 {
				return nil, fmt.Errorf("%w: hop limit of %d bytes", ErrMalformed, len(c.Value))
			}
			h := c.Value[0]
			i.HopLimit = &h
		case TypeApplicationParameters:
			i.ApplicationParameters = append([]byte{}, c.Value...)
		case typeForwardingHint:
			// forwarding is the forwarder's concern
		default:
			if isCritical(c.Type) {
				return nil, fmt.Errorf("%w: unknown critical interest element %#x", ErrMalformed, c.Type)
			}
		}
	}
	if !hasName {
		return nil, fmt.Errorf("%w: interest without name", ErrMalformed)
	}
	return i, nil
}

// MetaInfo of a data packet.
type MetaInfo struct {
	ContentType     uint64
	FreshnessPeriod time.Duration
}

// Data is an NDN data packet.
type Data struct {
	Name           Name
	MetaInfo       MetaInfo
	Content        []byte
	SignatureType  SignatureType
	KeyLocator     Name
	SignatureValue []byte
}

// NewData returns an empty data packet for name.
func NewData(name Name) *Data {
	return &Data{Name: name}
}

func encodeSignatureInfo(b []byte, typ uint64, st SignatureType, keyLocator Name) []byte {
	var v []byte
	v = appendNonNegTLV(v, TypeSignatureType, uint64(st))
	if len(keyLocator) > 0 {
		v = appendTLV(v, TypeKeyLocator, keyLocator.encode(nil))
	}
	return appendTLV(b, typ, v)
}

// Encode signs the packet with signer and returns the Data TLV. The
// signature fields of d are updated.
func (d *Data) Encode(signer Signer) ([]byte, error) {
	d.SignatureType = signer.Type()
	d.KeyLocator = signer.KeyName()

	var signed []byte
	signed = d.Name.encode(signed)
	if d.MetaInfo != (MetaInfo{}) {
		var m []byte
		if d.MetaInfo.ContentType != 0 {
			m = appendNonNegTLV(m, TypeContentType, d.MetaInfo.ContentType)
		}
		if d.MetaInfo.FreshnessPeriod > 0 {
			m = appendNonNegTLV(m, TypeFreshnessPeriod, uint64(d.MetaInfo.FreshnessPeriod/time.Millisecond))
		}
		signed = appendTLV(signed, TypeMetaInfo, m)
	}
	signed = appendTLV(signed, TypeContent, d.Content)
	signed = encodeSignatureInfo(signed, TypeSignatureInfo, d.SignatureType, d.KeyLocator)

	sig, err := signer.Sign(signed)
	if err != nil {
		return nil, fmt.Errorf("sign data %s: %w", d.Name, err)
	}
	d.SignatureValue = sig
	v := appendTLV(signed, TypeSignatureValue, sig)
	return appendTLV(nil, TypeData, v), nil
}

// DecodeData parses a Data TLV. The signature is not verified.
func DecodeData(wire []byte) (*Data, error) {
	el, _, err := readElement(wire)
	if err != nil {
		return nil, err
	}
	if el.Type != TypeData {
		return nil, fmt.Errorf("%w: expected data, got type %#x", ErrMalformed, el.Type)
	}
	children, err := readElements(el.Value)
	if err != nil {
		return nil, err
	}
	d := &Data{}
	hasName := false
	for _, c := range children {
		switch c.Type {
		case TypeName:
			if d.Name, err = decodeName(c.Value); err != nil {
				return nil, err
			}
			hasName = true
		case TypeMetaInfo:
			if err := d.decodeMetaInfo(c.Value); err != nil {
				return nil, err
			}
		case TypeContent:
			d.Content = append([]byte{}, c.Value...)
		case TypeSignatureInfo:
			if err := d.decodeSignatureInfo(c.Value); err != nil {
				return nil, err
			}
		case TypeSignatureValue:
			d.SignatureValue = append([]byte{}, c.Value...)
		default:
			if isCritical(c.Type) {
				return nil, fmt.Errorf("%w: unknown critical data element %#x", ErrMalformed, c.Type)
			}
		}
	}
	if !hasName {
		return nil, fmt.Errorf("%w: data without name", ErrMalformed)
	}
	return d, nil
}

func (d *Data) decodeMetaInfo(value []byte) error {
	els, err := readElements(value)
	if err != nil {
		return err
	}
	for _, el := range els {
		switch el.Type {
		case TypeContentType:
			if d.MetaInfo.ContentType, err = parseNonNeg(el.Value); err != nil {
				return err
			}
		case TypeFreshnessPeriod:
			ms, err := parseNonNeg(el.Value)
			if err != nil {
				return err
			}
			d.MetaInfo.FreshnessPeriod = time.Duration(ms) * time.Millisecond
		}
	}
	return nil
}

func (d *Data) decodeSignatureInfo(value []byte) error {
	els, err := readElements(value)
	if err != nil {
		return err
	}
	for _, el := range els {
		switch el.Type {
		case TypeSignatureType:
			st, err := parseNonNeg(el.Value)
			if err != nil {
				return err
			}
			d.SignatureType = SignatureType(st)
		case TypeKeyLocator:
			inner, _, err := readElement(el.Value)
			if err != nil {
				return err
			}
			if inner.Type == TypeName {
				if d.KeyLocator, err = decodeName(inner.Value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
