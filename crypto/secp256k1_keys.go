package crypto

import (
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secp256k1ecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// secp256k1Family binds the ES class to dcrd's secp256k1. Signatures use
// RFC 6979 deterministic nonces and are low-S.
type secp256k1Family struct{}

const (
	secp256k1ScalarSize       = 32
	secp256k1UncompressedSize = 65
)

// generate draws the scalar from crypto/rand inside dcrd; random is unused.
func (secp256k1Family) generate(p *Params, _ io.Reader) (SecretKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", p, err)
	}
	return newSecp256k1SecretKey(p, key), nil
}

func (secp256k1Family) publicKey(p *Params, m material) (PublicKey, error) {
	pub, err := secp256k1PublicMaterial(p, m)
	if err != nil {
		return nil, err
	}
	return newSecp256k1PublicKey(p, pub), nil
}

func (secp256k1Family) secretKey(p *Params, m material) (SecretKey, error) {
	pub, err := secp256k1PublicMaterial(p, m)
	if err != nil {
		return nil, err
	}
	d := m["d"]
	if d.Sign() <= 0 || d.Cmp(secp256k1N) >= 0 {
		return nil, fmt.Errorf("%w: %s: secret scalar out of range", ErrMalformedKey, p)
	}
	buf := d.FillBytes(make([]byte, secp256k1ScalarSize))
	key := secp256k1.PrivKeyFromBytes(buf)
	Zeroize(buf)
	if !key.PubKey().IsEqual(pub) {
		key.Zero()
		return nil, fmt.Errorf("%w: %s: public point does not match secret scalar", ErrMalformedKey, p)
	}
	return newSecp256k1SecretKey(p, key), nil
}

func (secp256k1Family) signatureSize(*Params) int {
	return 2 * secp256k1ScalarSize
}

// secp256k1PublicMaterial rebuilds the point from its affine coordinates.
// ParsePubKey rejects points that are not on the curve.
func secp256k1PublicMaterial(p *Params, m material) (*secp256k1.PublicKey, error) {
	x, y := m["x"], m["y"]
	if x.BitLen() > 256 || y.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %s: coordinate too large", ErrMalformedKey, p)
	}
	buf := make([]byte, secp256k1UncompressedSize)
	buf[0] = 0x04
	x.FillBytes(buf[1:33])
	y.FillBytes(buf[33:])
	pub, err := secp256k1.ParsePubKey(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedKey, p, err)
	}
	return pub, nil
}

func secp256k1PointMaterial(pub *secp256k1.PublicKey) material {
	b := pub.SerializeUncompressed()
	return material{
		"x": new(big.Int).SetBytes(b[1:33]),
		"y": new(big.Int).SetBytes(b[33:]),
	}
}

// secp256k1PublicKey implements PublicKey for the ES class.
type secp256k1PublicKey struct {
	params  *Params
	key     *secp256k1.PublicKey
	encoded string
}

func newSecp256k1PublicKey(p *Params, key *secp256k1.PublicKey) *secp256k1PublicKey {
	return &secp256k1PublicKey{
		params:  p,
		key:     key,
		encoded: encodeKey(p, p.publicFields, secp256k1PointMaterial(key)),
	}
}

func (k *secp256k1PublicKey) Algorithm() Algorithm { return k.params.algorithm }
func (k *secp256k1PublicKey) KeySize() int         { return k.params.keySize }
func (k *secp256k1PublicKey) Params() *Params      { return k.params }
func (k *secp256k1PublicKey) Serialize() string    { return k.encoded }
func (k *secp256k1PublicKey) String() string       { return k.encoded }

// Verify verifies a 64-byte r || s signature. Both low-S and high-S forms
// are accepted.
func (k *secp256k1PublicKey) Verify(message []byte, sig Signature) (bool, error) {
	if err := sig.checkSize(k.params, 2*secp256k1ScalarSize); err != nil {
		observeMalformedSignature(k.params)
		return false, err
	}

	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(sig[:secp256k1ScalarSize]) || s.SetByteSlice(sig[secp256k1ScalarSize:]) {
		observeVerify(k.params, false)
		return false, nil // overflow
	}
	if r.IsZero() || s.IsZero() {
		observeVerify(k.params, false)
		return false, nil
	}

	valid := secp256k1ecdsa.NewSignature(&r, &s).Verify(k.params.digest(message), k.key)
	observeVerify(k.params, valid)
	return valid, nil
}

func (k *secp256k1PublicKey) Equal(other PublicKey) bool {
	if other == nil {
		return false
	}
	return equalSerialized(k.encoded, other.Serialize())
}

// secp256k1SecretKey implements SecretKey for the ES class.
type secp256k1SecretKey struct {
	params *Params
	public *secp256k1PublicKey

	mu  sync.RWMutex
	key *secp256k1.PrivateKey // nil after Zeroize
}

func newSecp256k1SecretKey(p *Params, key *secp256k1.PrivateKey) *secp256k1SecretKey {
	return &secp256k1SecretKey{
		params: p,
		public: newSecp256k1PublicKey(p, key.PubKey()),
		key:    key,
	}
}

func (k *secp256k1SecretKey) Algorithm() Algorithm { return k.params.algorithm }
func (k *secp256k1SecretKey) KeySize() int         { return k.params.keySize }
func (k *secp256k1SecretKey) Params() *Params      { return k.params }
func (k *secp256k1SecretKey) PublicKey() PublicKey { return k.public }
func (k *secp256k1SecretKey) String() string       { return redacted(k.params) }
func (k *secp256k1SecretKey) GoString() string     { return redacted(k.params) }

// Serialize returns the canonical form including d.
// Returns the empty string after Zeroize.
func (k *secp256k1SecretKey) Serialize() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return ""
	}
	scalar := k.key.Serialize()
	defer Zeroize(scalar)
	m := secp256k1PointMaterial(k.key.PubKey())
	m["d"] = new(big.Int).SetBytes(scalar)
	defer zeroizeInt(m["d"])
	return encodeKey(k.params, k.params.secretFields, m)
}

// Sign signs the SHA-256 digest of message using RFC 6979 deterministic k.
// Returns a 64-byte r || s signature.
func (k *secp256k1SecretKey) Sign(message []byte) (Signature, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return nil, fmt.Errorf("%w: %s secret key has been zeroized", ErrInvalidKeyState, k.params)
	}

	sig := secp256k1ecdsa.Sign(k.key, k.params.digest(message))
	r := sig.R()
	s := sig.S()
	rBytes := r.Bytes()
	sBytes := s.Bytes()

	out := make(Signature, 2*secp256k1ScalarSize)
	copy(out[:secp256k1ScalarSize], rBytes[:])
	copy(out[secp256k1ScalarSize:], sBytes[:])
	return out, nil
}

func (k *secp256k1SecretKey) Equal(other SecretKey) bool {
	return equalSecret(k, other)
}

// ExposeSecret returns a copy of the 32-byte scalar.
func (k *secp256k1SecretKey) ExposeSecret() []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return nil
	}
	return k.key.Serialize()
}

// Zeroize overwrites the private scalar with zeros.
func (k *secp256k1SecretKey) Zeroize() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key == nil {
		return
	}
	k.key.Zero()
	k.key = nil
}

var (
	_ PublicKey = (*secp256k1PublicKey)(nil)
	_ SecretKey = (*secp256k1SecretKey)(nil)
)
