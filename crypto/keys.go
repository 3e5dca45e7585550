package crypto

import (
	"crypto/subtle"
	"math/big"
	"runtime"
)

// Zeroize securely overwrites a byte slice with zeros.
// Used to clear sensitive data (secret keys, serialized secrets) from memory.
//
// subtle.XORBytes(b, b, b) XORs each byte with itself and cannot be dropped
// as a dead store; runtime.KeepAlive keeps b live until after the write.
//
// Complexity: O(n) where n is slice length.
// Memory: Zero allocations.
func Zeroize(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.XORBytes(b, b, b)
	runtime.KeepAlive(b)
}

// zeroizeInt clears the words backing a big.Int and sets it to zero.
func zeroizeInt(n *big.Int) {
	if n == nil {
		return
	}
	words := n.Bits()
	for i := range words {
		words[i] = 0
	}
	runtime.KeepAlive(words)
	n.SetInt64(0)
}

// PublicKey is the public half of a key pair. Implementations are immutable
// and safe for concurrent use.
type PublicKey interface {
	// Algorithm returns the key's algorithm code.
	// Complexity: O(1).
	Algorithm() Algorithm

	// KeySize returns the key's keysize class.
	// Complexity: O(1).
	KeySize() int

	// Params returns the registry parameters the key was built for.
	Params() *Params

	// Serialize returns the canonical textual form of the key.
	Serialize() string

	// Verify reports whether sig is a valid signature of message under this
	// key. A well-formed signature that does not match returns (false, nil).
	// A signature whose shape cannot belong to this key returns
	// ErrMalformedSignature.
	// Complexity: O(n) where n is message length, plus one public-key operation.
	Verify(message []byte, sig Signature) (bool, error)

	// Equal reports whether other has the same algorithm, keysize and
	// material. Uses constant-time comparison.
	Equal(other PublicKey) bool

	// String returns the serialized form.
	String() string
}

// SecretKey is the private half of a key pair. It never prints its secret
// material; ExposeSecret is the only accessor for it.
type SecretKey interface {
	// Algorithm returns the key's algorithm code.
	Algorithm() Algorithm

	// KeySize returns the key's keysize class.
	KeySize() int

	// Params returns the registry parameters the key was built for.
	Params() *Params

	// PublicKey returns the matching public key.
	// Complexity: O(1), the public key is built with the secret key.
	PublicKey() PublicKey

	// Serialize returns the canonical textual form of the key, including the
	// secret material. Callers own the result.
	Serialize() string

	// Sign hashes message with the class digest and signs it.
	// Returns ErrInvalidKeyState after Zeroize.
	Sign(message []byte) (Signature, error)

	// Equal reports whether other holds the same key. Uses constant-time
	// comparison.
	Equal(other SecretKey) bool

	// ExposeSecret returns a copy of the raw secret scalar, big-endian.
	// WARNING: Handle with care. Zeroize the result after use.
	ExposeSecret() []byte

	// Zeroize overwrites the secret scalar. The key cannot sign afterwards.
	Zeroize()

	// String returns a redacted description that never includes secrets.
	String() string
}

// DeserializePublicKey decodes the canonical textual form of a public key.
// Fails with ErrMalformedKey on missing, ill-typed or inconsistent fields.
func DeserializePublicKey(s string) (PublicKey, error) {
	sk, err := ParseSerializedKey([]byte(s))
	if err != nil {
		return nil, err
	}
	return PublicKeyFromSerialized(sk)
}

// DeserializeSecretKey decodes the canonical textual form of a secret key.
// Fails with ErrMalformedKey on missing, ill-typed or inconsistent fields.
func DeserializeSecretKey(s string) (SecretKey, error) {
	sk, err := ParseSerializedKey([]byte(s))
	if err != nil {
		return nil, err
	}
	return SecretKeyFromSerialized(sk)
}

// PublicKeyFromSerialized builds a public key from its mapping form.
func PublicKeyFromSerialized(sk SerializedKey) (PublicKey, error) {
	p, m, err := sk.decode(false)
	if err != nil {
		return nil, err
	}
	return p.family.publicKey(p, m)
}

// SecretKeyFromSerialized builds a secret key from its mapping form.
func SecretKeyFromSerialized(sk SerializedKey) (SecretKey, error) {
	p, m, err := sk.decode(true)
	if err != nil {
		return nil, err
	}
	defer m.wipe()
	return p.family.secretKey(p, m)
}

// equalSerialized compares two canonical encodings in constant time.
func equalSerialized(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// equalSecret compares two secret keys by their canonical encodings and wipes
// the temporary copies.
func equalSecret(a, b SecretKey) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Algorithm() != b.Algorithm() || a.KeySize() != b.KeySize() {
		return false
	}
	as := []byte(a.Serialize())
	bs := []byte(b.Serialize())
	defer Zeroize(as)
	defer Zeroize(bs)
	return subtle.ConstantTimeCompare(as, bs) == 1
}

func redacted(p *Params) string {
	return p.String() + " secret key [redacted]"
}
