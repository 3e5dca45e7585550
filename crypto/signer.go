package crypto

// Signer is the interface for signing operations.
// Implementations must never expose secret key material.
type Signer interface {
	// Algorithm returns the signing algorithm.
	Algorithm() Algorithm

	// KeySize returns the keysize class of the signing key.
	KeySize() int

	// PublicKey returns the public key.
	PublicKey() PublicKey

	// Sign signs the message and returns the signature.
	Sign(message []byte) (Signature, error)
}

// BasicSigner wraps a SecretKey to implement Signer.
// Thread-safe: signing operations are stateless.
type BasicSigner struct {
	secretKey SecretKey
}

// NewSigner creates a new Signer from a SecretKey.
// Complexity: O(1), zero allocations.
func NewSigner(secretKey SecretKey) *BasicSigner {
	return &BasicSigner{secretKey: secretKey}
}

// Sign signs the given message.
func (s *BasicSigner) Sign(message []byte) (Signature, error) {
	return s.secretKey.Sign(message)
}

// PublicKey returns the signer's public key.
func (s *BasicSigner) PublicKey() PublicKey {
	return s.secretKey.PublicKey()
}

// Algorithm returns the signing algorithm.
func (s *BasicSigner) Algorithm() Algorithm {
	return s.secretKey.Algorithm()
}

// KeySize returns the keysize class of the signing key.
func (s *BasicSigner) KeySize() int {
	return s.secretKey.KeySize()
}

// Zeroize wipes the wrapped secret key. The signer cannot sign afterwards.
func (s *BasicSigner) Zeroize() {
	s.secretKey.Zeroize()
}

// VerifySignature verifies a hexadecimal signature against pub.
// An unparseable signature fails with ErrMalformedSignature.
func VerifySignature(pub PublicKey, message []byte, hexSig string) (bool, error) {
	sig, err := ParseSignature(hexSig)
	if err != nil {
		return false, err
	}
	return pub.Verify(message, sig)
}

var _ Signer = (*BasicSigner)(nil)
