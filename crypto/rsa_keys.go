package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"math"
	"math/big"
	"sync"
)

// rsaFamily binds RS key classes to crypto/rsa. Signatures are PKCS #1 v1.5
// over the class digest.
type rsaFamily struct{}

func (rsaFamily) generate(p *Params, random io.Reader) (SecretKey, error) {
	key, err := rsa.GenerateKey(random, p.modulusBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", p, err)
	}
	key.Precompute()
	return newRSASecretKey(p, key), nil
}

func (rsaFamily) publicKey(p *Params, m material) (PublicKey, error) {
	n, e, err := rsaPublicMaterial(p, m)
	if err != nil {
		return nil, err
	}
	return newRSAPublicKey(p, &rsa.PublicKey{N: n, E: e}), nil
}

func (rsaFamily) secretKey(p *Params, m material) (SecretKey, error) {
	n, e, err := rsaPublicMaterial(p, m)
	if err != nil {
		return nil, err
	}
	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: e},
		D:         new(big.Int).Set(m["d"]),
		Primes:    []*big.Int{new(big.Int).Set(m["p"]), new(big.Int).Set(m["q"])},
	}
	if err := key.Validate(); err != nil {
		zeroizeRSA(key)
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedKey, p, err)
	}
	key.Precompute()
	return newRSASecretKey(p, key), nil
}

func (rsaFamily) signatureSize(p *Params) int {
	return (p.modulusBits + 7) / 8
}

// rsaPublicMaterial checks n and e against the key class and copies them out
// of the decoded material.
func rsaPublicMaterial(p *Params, m material) (*big.Int, int, error) {
	n, e := m["n"], m["e"]
	if n.BitLen() != p.modulusBits {
		return nil, 0, fmt.Errorf("%w: %s: modulus is %d bits, want %d", ErrMalformedKey, p, n.BitLen(), p.modulusBits)
	}
	if n.Bit(0) == 0 {
		return nil, 0, fmt.Errorf("%w: %s: modulus is even", ErrMalformedKey, p)
	}
	if !e.IsInt64() || e.Int64() > math.MaxInt32 || e.Int64() < 3 || e.Bit(0) == 0 {
		return nil, 0, fmt.Errorf("%w: %s: public exponent out of range", ErrMalformedKey, p)
	}
	return new(big.Int).Set(n), int(e.Int64()), nil
}

// rsaPublicKey implements PublicKey for the RS family.
type rsaPublicKey struct {
	params  *Params
	key     *rsa.PublicKey
	encoded string
}

func newRSAPublicKey(p *Params, key *rsa.PublicKey) *rsaPublicKey {
	k := &rsaPublicKey{params: p, key: key}
	k.encoded = encodeKey(p, p.publicFields, k.material())
	return k
}

func (k *rsaPublicKey) material() material {
	return material{"n": k.key.N, "e": big.NewInt(int64(k.key.E))}
}

func (k *rsaPublicKey) Algorithm() Algorithm { return k.params.algorithm }
func (k *rsaPublicKey) KeySize() int         { return k.params.keySize }
func (k *rsaPublicKey) Params() *Params      { return k.params }
func (k *rsaPublicKey) Serialize() string    { return k.encoded }
func (k *rsaPublicKey) String() string       { return k.encoded }

// Verify checks a PKCS #1 v1.5 signature.
// Complexity: O(n) for hashing plus one modular exponentiation by e.
func (k *rsaPublicKey) Verify(message []byte, sig Signature) (bool, error) {
	if err := sig.checkSize(k.params, k.params.SignatureSize()); err != nil {
		observeMalformedSignature(k.params)
		return false, err
	}
	valid := rsa.VerifyPKCS1v15(k.key, k.params.hash, k.params.digest(message), sig) == nil
	observeVerify(k.params, valid)
	return valid, nil
}

// Equal checks equality using constant-time comparison.
func (k *rsaPublicKey) Equal(other PublicKey) bool {
	if other == nil {
		return false
	}
	return equalSerialized(k.encoded, other.Serialize())
}

// rsaSecretKey implements SecretKey for the RS family. The prime factors are
// kept so signing can use the CRT.
type rsaSecretKey struct {
	params *Params
	public *rsaPublicKey

	mu  sync.RWMutex
	key *rsa.PrivateKey // nil after Zeroize
}

func newRSASecretKey(p *Params, key *rsa.PrivateKey) *rsaSecretKey {
	pub := &rsa.PublicKey{N: new(big.Int).Set(key.N), E: key.E}
	return &rsaSecretKey{
		params: p,
		public: newRSAPublicKey(p, pub),
		key:    key,
	}
}

func (k *rsaSecretKey) Algorithm() Algorithm { return k.params.algorithm }
func (k *rsaSecretKey) KeySize() int         { return k.params.keySize }
func (k *rsaSecretKey) Params() *Params      { return k.params }
func (k *rsaSecretKey) PublicKey() PublicKey { return k.public }
func (k *rsaSecretKey) String() string       { return redacted(k.params) }
func (k *rsaSecretKey) GoString() string     { return redacted(k.params) }

// Serialize returns the canonical form including d, p and q.
// Returns the empty string after Zeroize.
func (k *rsaSecretKey) Serialize() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return ""
	}
	m := material{
		"n": k.key.N,
		"e": big.NewInt(int64(k.key.E)),
		"d": k.key.D,
		"p": k.key.Primes[0],
		"q": k.key.Primes[1],
	}
	return encodeKey(k.params, k.params.secretFields, m)
}

// Sign produces a PKCS #1 v1.5 signature over the class digest of message.
func (k *rsaSecretKey) Sign(message []byte) (Signature, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return nil, fmt.Errorf("%w: %s secret key has been zeroized", ErrInvalidKeyState, k.params)
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.key, k.params.hash, k.params.digest(message))
	if err != nil {
		return nil, fmt.Errorf("%s signing failed: %w", k.params, err)
	}
	return sig, nil
}

func (k *rsaSecretKey) Equal(other SecretKey) bool {
	return equalSecret(k, other)
}

// ExposeSecret returns a copy of the private exponent d.
func (k *rsaSecretKey) ExposeSecret() []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return nil
	}
	return k.key.D.FillBytes(make([]byte, k.params.SignatureSize()))
}

// Zeroize overwrites d, the primes and the CRT values.
func (k *rsaSecretKey) Zeroize() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key == nil {
		return
	}
	zeroizeRSA(k.key)
	k.key = nil
}

func zeroizeRSA(key *rsa.PrivateKey) {
	zeroizeInt(key.D)
	for _, prime := range key.Primes {
		zeroizeInt(prime)
	}
	zeroizeInt(key.Precomputed.Dp)
	zeroizeInt(key.Precomputed.Dq)
	zeroizeInt(key.Precomputed.Qinv)
}

var (
	_ PublicKey = (*rsaPublicKey)(nil)
	_ SecretKey = (*rsaSecretKey)(nil)
)
