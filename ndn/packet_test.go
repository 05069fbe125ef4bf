package ndn

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterestRoundTrip(t *testing.T) {
	// arrange
	hop := uint8(4)
	in := &Interest{
		Name:                  MustParseName("/esp/fiware/1/value"),
		CanBePrefix:           true,
		MustBeFresh:           true,
		Nonce:                 0xdeadbeef,
		Lifetime:              1500 * time.Millisecond,
		HopLimit:              &hop,
		ApplicationParameters: []byte{1, 2},
	}

	// act
	out, err := DecodeInterest(in.Encode())

	// assert
	require.NoError(t, err)
	assert.True(t, in.Name.Equal(out.Name))
	assert.True(t, out.CanBePrefix)
	assert.True(t, out.MustBeFresh)
	assert.Equal(t, uint32(0xdeadbeef), out.Nonce)
	assert.Equal(t, 1500*time.Millisecond, out.Lifetime)
	require.NotNil(t, out.HopLimit)
	assert.Equal(t, hop, *out.HopLimit)
	assert.Equal(t, []byte{1, 2}, out.ApplicationParameters)
}

func TestInterestDefaultLifetime(t *testing.T) {
	out, err := DecodeInterest((&Interest{Name: MustParseName("/a"), Nonce: 1}).Encode())
	require.NoError(t, err)
	assert.Equal(t, DefaultInterestLifetime, out.Lifetime)
	assert.False(t, out.CanBePrefix)
}

func TestDecodeInterestRejectsGarbage(t *testing.T) {
	_, err := DecodeInterest([]byte{0x05, 0x10, 0x07})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeInterest(appendTLV(nil, TypeData, nil))
	assert.ErrorIs(t, err, ErrMalformed)

	// no name
	_, err = DecodeInterest(appendTLV(nil, TypeInterest, appendTLV(nil, TypeNonce, []byte{1, 2, 3, 4})))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDataDigestSignature(t *testing.T) {
	// arrange
	d := NewData(MustParseName("/esp/fiware/1/value"))

	// act
	wire, err := d.Encode(DigestSigner{})
	require.NoError(t, err)
	out, err := DecodeData(wire)
	require.NoError(t, err)

	// assert
	assert.True(t, d.Name.Equal(out.Name))
	assert.Empty(t, out.Content)
	assert.Equal(t, SignatureDigestSha256, out.SignatureType)
	assert.Empty(t, out.KeyLocator)

	sum := sha256.Sum256(signedPortion(t, wire))
	assert.Equal(t, sum[:], out.SignatureValue)
}

func TestDataECDSASignature(t *testing.T) {
	signer, err := NewECDSASigner(MustParseName("/test/identity"))
	require.NoError(t, err)
	d := &Data{
		Name:     MustParseName("/a/b"),
		MetaInfo: MetaInfo{ContentType: 2, FreshnessPeriod: time.Second},
		Content:  []byte("payload"),
	}

	wire, err := d.Encode(signer)
	require.NoError(t, err)
	out, err := DecodeData(wire)
	require.NoError(t, err)

	assert.Equal(t, SignatureSha256WithEcdsa, out.SignatureType)
	assert.True(t, signer.KeyName().Equal(out.KeyLocator))
	assert.Equal(t, "KEY", string(out.KeyLocator[len(out.KeyLocator)-2].Value))
	assert.Equal(t, uint64(2), out.MetaInfo.ContentType)
	assert.Equal(t, time.Second, out.MetaInfo.FreshnessPeriod)
	assert.Equal(t, []byte("payload"), out.Content)

	sum := sha256.Sum256(signedPortion(t, wire))
	assert.True(t, ecdsa.VerifyASN1(signer.PublicKey(), sum[:], out.SignatureValue))
}

func TestControlResponse(t *testing.T) {
	var v []byte
	v = appendNonNegTLV(v, TypeStatusCode, 403)
	v = appendTLV(v, TypeStatusText, []byte("authorization rejected"))
	content := appendTLV(nil, TypeControlResponse, v)

	resp, err := DecodeControlResponse(content)
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, uint64(403), resp.StatusCode)
	assert.Equal(t, "authorization rejected", resp.StatusText)

	_, err = DecodeControlResponse(appendTLV(nil, TypeControlResponse, nil))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCommandInterestIsSigned(t *testing.T) {
	// arrange
	signer, err := NewECDSASigner(MustParseName("/test/identity"))
	require.NoError(t, err)
	params := ControlParameters{Name: MustParseName("/esp/fiware"), Flags: uint64Ptr(RouteFlagChildInherit)}
	now := time.UnixMilli(1700000000000)

	// act
	ci, err := commandInterest(MustParseName("/localhop/nfd"), "rib", "register", params, signer, now, time.Second)
	require.NoError(t, err)

	// assert
	n := ci.Name
	require.Len(t, n, 2+2+4+1)
	assert.Equal(t, "/localhop/nfd/rib/register", n[:4].String())
	assert.Equal(t, params.Encode(), n[4].Value)
	ts, err := parseNonNeg(n[5].Value)
	require.NoError(t, err)
	assert.Equal(t, uint64(now.UnixMilli()), ts)
	assert.Len(t, n[6].Value, 8)

	sigValue, _, err := readElement(n[len(n)-1].Value)
	require.NoError(t, err)
	assert.Equal(t, uint64(TypeSignatureValue), sigValue.Type)
	sum := sha256.Sum256(n[:len(n)-1].encodeComponents(nil))
	assert.True(t, ecdsa.VerifyASN1(signer.PublicKey(), sum[:], sigValue.Value))
	assert.Equal(t, time.Second, ci.Lifetime)
}

// signedPortion returns every Data child TLV except SignatureValue.
func signedPortion(t *testing.T, wire []byte) []byte {
	t.Helper()
	el, _, err := readElement(wire)
	require.NoError(t, err)
	children, err := readElements(el.Value)
	require.NoError(t, err)
	var signed []byte
	for _, c := range children[:len(children)-1] {
		signed = append(signed, c.Wire...)
	}
	return signed
}
