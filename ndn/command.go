package ndn

import (
	"crypto/rand"
	"fmt"
	"time"
)

// RouteFlagChildInherit lets the route cover longer names.
const RouteFlagChildInherit uint64 = 1

// ControlParameters of an NFD management command.
type ControlParameters struct {
	Name   Name
	FaceID *uint64
	Origin *uint64
	Cost   *uint64
	Flags  *uint64
}

// Encode returns the ControlParameters TLV.
func (p ControlParameters) Encode() []byte {
	var v []byte
	if p.Name != nil {
		v = p.Name.encode(v)
	}
	if p.FaceID != nil {
		v = appendNonNegTLV(v, TypeFaceID, *p.FaceID)
	}
	if p.Origin != nil {
		v = appendNonNegTLV(v, TypeOrigin, *p.Origin)
	}
	if p.Cost != nil {
		v = appendNonNegTLV(v, TypeCost, *p.Cost)
	}
	if p.Flags != nil {
		v = appendNonNegTLV(v, TypeFlags, *p.Flags)
	}
	return appendTLV(nil, TypeControlParameters, v)
}

// ControlResponse is the content of a management command reply.
type ControlResponse struct {
	StatusCode uint64
	StatusText string
	Body       []byte
}

// OK reports a 200 status.
func (r *ControlResponse) OK() bool { return r.StatusCode == 200 }

// DecodeControlResponse parses the content of a command reply.
func DecodeControlResponse(content []byte) (*ControlResponse, error) {
	el, _, err := readElement(content)
	if err != nil {
		return nil, err
	}
	if el.Type != TypeControlResponse {
		return nil, fmt.Errorf("%w: expected control response, got type %#x", ErrMalformed, el.Type)
	}
	children, err := readElements(el.Value)
	if err != nil {
		return nil, err
	}
	r := &ControlResponse{}
	hasCode := false
	for _, c := range children {
		switch c.Type {
		case TypeStatusCode:
			if r.StatusCode, err = parseNonNeg(c.Value); err != nil {
				return nil, err
			}
			hasCode = true
		case TypeStatusText:
			r.StatusText = string(c.Value)
		default:
			r.Body = append(r.Body, c.Wire...)
		}
	}
	if !hasCode {
		return nil, fmt.Errorf("%w: control response without status code", ErrMalformed)
	}
	return r, nil
}

// commandInterest builds a signed command interest of the form
// <base>/<module>/<verb>/<params>/<timestamp>/<nonce>/<SignatureInfo>/<SignatureValue>.
// The signature covers the component TLVs up to and including SignatureInfo.
func commandInterest(base Name, module, verb string, params ControlParameters, signer Signer, now time.Time, lifetime time.Duration) (*Interest, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("command nonce: %w", err)
	}
	name := base.Append(
		StringComponent(module),
		StringComponent(verb),
		GenericComponent(params.Encode()),
		GenericComponent(appendNonNeg(nil, uint64(now.UnixMilli()))),
		GenericComponent(nonce),
		GenericComponent(encodeSignatureInfo(nil, TypeSignatureInfo, signer.Type(), signer.KeyName())),
	)
	sig, err := signer.Sign(name.encodeComponents(nil))
	if err != nil {
		return nil, fmt.Errorf("sign command %s/%s: %w", module, verb, err)
	}
	name = name.Append(GenericComponent(appendTLV(nil, TypeSignatureValue, sig)))
	return &Interest{
		Name:        name,
		MustBeFresh: true,
		Nonce:       NewNonce(),
		Lifetime:    lifetime,
	}, nil
}

func uint64Ptr(v uint64) *uint64 { return &v }
