package ndn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// SignatureType as carried in SignatureInfo.
type SignatureType uint64

const (
	SignatureDigestSha256    SignatureType = 0
	SignatureSha256WithEcdsa SignatureType = 3
)

// Signer produces signature values over the signed portion of a packet.
type Signer interface {
	Type() SignatureType
	// KeyName is the KeyLocator name, empty for digest signatures.
	KeyName() Name
	Sign(portion []byte) ([]byte, error)
}

// DigestSigner signs with a plain SHA-256 digest.
type DigestSigner struct{}

func (DigestSigner) Type() SignatureType { return SignatureDigestSha256 }
func (DigestSigner) KeyName() Name       { return nil }

func (DigestSigner) Sign(portion []byte) ([]byte, error) {
	sum := sha256.Sum256(portion)
	return sum[:], nil
}

// ECDSASigner signs with an in-memory P-256 key.
type ECDSASigner struct {
	key  *ecdsa.PrivateKey
	name Name
}

// NewECDSASigner generates a fresh key named <identity>/KEY/<key-id>.
func NewECDSASigner(identity Name) (*ECDSASigner, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	keyID := make([]byte, 8)
	if _, err := rand.Read(keyID); err != nil {
		return nil, fmt.Errorf("generate key id: %w", err)
	}
	return &ECDSASigner{
		key:  key,
		name: identity.Append(StringComponent("KEY"), GenericComponent(keyID)),
	}, nil
}

func (s *ECDSASigner) Type() SignatureType { return SignatureSha256WithEcdsa }
func (s *ECDSASigner) KeyName() Name       { return s.name }

// PublicKey is exposed for verification in tests.
func (s *ECDSASigner) PublicKey() *ecdsa.PublicKey { return &s.key.PublicKey }

func (s *ECDSASigner) Sign(portion []byte) ([]byte, error) {
	sum := sha256.Sum256(portion)
	return ecdsa.SignASN1(rand.Reader, s.key, sum[:])
}
