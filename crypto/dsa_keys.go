package crypto

import (
	"crypto/dsa" //nolint:staticcheck // DSA is one of the supported key families.
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync"
)

// dsaFamily binds DS key classes to crypto/dsa. Keys share the fixed group of
// their class; the digest is truncated to the byte length of q before the
// signature transform.
type dsaFamily struct{}

var bigOne = big.NewInt(1)

func (dsaFamily) generate(p *Params, random io.Reader) (SecretKey, error) {
	key := &dsa.PrivateKey{PublicKey: dsa.PublicKey{Parameters: *p.group}}
	if err := dsa.GenerateKey(key, random); err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", p, err)
	}
	return newDSASecretKey(p, key), nil
}

func (dsaFamily) publicKey(p *Params, m material) (PublicKey, error) {
	pub, err := dsaPublicMaterial(p, m)
	if err != nil {
		return nil, err
	}
	return newDSAPublicKey(p, pub), nil
}

func (dsaFamily) secretKey(p *Params, m material) (SecretKey, error) {
	pub, err := dsaPublicMaterial(p, m)
	if err != nil {
		return nil, err
	}
	x := m["x"]
	if x.Sign() <= 0 || x.Cmp(pub.Q) >= 0 {
		return nil, fmt.Errorf("%w: %s: secret exponent out of range", ErrMalformedKey, p)
	}
	if new(big.Int).Exp(pub.G, x, pub.P).Cmp(pub.Y) != 0 {
		return nil, fmt.Errorf("%w: %s: public value does not match secret exponent", ErrMalformedKey, p)
	}
	key := &dsa.PrivateKey{PublicKey: *pub, X: new(big.Int).Set(x)}
	return newDSASecretKey(p, key), nil
}

func (dsaFamily) signatureSize(p *Params) int {
	return 2 * dsaScalarSize(p.group)
}

func dsaScalarSize(group *dsa.Parameters) int {
	return (group.Q.BitLen() + 7) / 8
}

// dsaPublicMaterial validates the group and y, reusing the class group when
// the decoded one is identical to it.
func dsaPublicMaterial(p *Params, m material) (*dsa.PublicKey, error) {
	gp, gq, gg, y := m["p"], m["q"], m["g"], m["y"]

	var params dsa.Parameters
	if sameDSAGroup(p.group, gp, gq, gg) {
		params = *p.group
	} else {
		if gp.BitLen() != p.group.P.BitLen() || gq.BitLen() != p.group.Q.BitLen() {
			return nil, fmt.Errorf("%w: %s: group is L=%d N=%d, want L=%d N=%d", ErrMalformedKey, p,
				gp.BitLen(), gq.BitLen(), p.group.P.BitLen(), p.group.Q.BitLen())
		}
		if err := checkDSAGroup(gp, gq, gg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedKey, p, err)
		}
		params = dsa.Parameters{P: new(big.Int).Set(gp), Q: new(big.Int).Set(gq), G: new(big.Int).Set(gg)}
	}

	if y.Cmp(bigOne) <= 0 || y.Cmp(params.P) >= 0 {
		return nil, fmt.Errorf("%w: %s: public value out of range", ErrMalformedKey, p)
	}
	if new(big.Int).Exp(y, params.Q, params.P).Cmp(bigOne) != 0 {
		return nil, fmt.Errorf("%w: %s: public value is not in the subgroup", ErrMalformedKey, p)
	}
	return &dsa.PublicKey{Parameters: params, Y: new(big.Int).Set(y)}, nil
}

// checkDSAGroup verifies the structure of a DSA domain: q prime and dividing
// p-1, p prime, and g a generator of the order-q subgroup.
func checkDSAGroup(p, q, g *big.Int) error {
	if p.Bit(0) == 0 || !q.ProbablyPrime(20) || !p.ProbablyPrime(10) {
		return fmt.Errorf("group moduli are not prime")
	}
	pm1 := new(big.Int).Sub(p, bigOne)
	if new(big.Int).Mod(pm1, q).Sign() != 0 {
		return fmt.Errorf("q does not divide p-1")
	}
	if g.Cmp(bigOne) <= 0 || g.Cmp(p) >= 0 {
		return fmt.Errorf("generator out of range")
	}
	if new(big.Int).Exp(g, q, p).Cmp(bigOne) != 0 {
		return fmt.Errorf("generator does not have order q")
	}
	return nil
}

// dsaPublicKey implements PublicKey for the DS family.
type dsaPublicKey struct {
	params  *Params
	key     *dsa.PublicKey
	encoded string
}

func newDSAPublicKey(p *Params, key *dsa.PublicKey) *dsaPublicKey {
	k := &dsaPublicKey{params: p, key: key}
	k.encoded = encodeKey(p, p.publicFields, material{
		"p": key.P, "q": key.Q, "g": key.G, "y": key.Y,
	})
	return k
}

func (k *dsaPublicKey) Algorithm() Algorithm { return k.params.algorithm }
func (k *dsaPublicKey) KeySize() int         { return k.params.keySize }
func (k *dsaPublicKey) Params() *Params      { return k.params }
func (k *dsaPublicKey) Serialize() string    { return k.encoded }
func (k *dsaPublicKey) String() string       { return k.encoded }

// Verify checks an r || s signature.
// Complexity: O(n) for hashing plus two modular exponentiations.
func (k *dsaPublicKey) Verify(message []byte, sig Signature) (bool, error) {
	size := dsaScalarSize(&k.key.Parameters)
	if err := sig.checkSize(k.params, 2*size); err != nil {
		observeMalformedSignature(k.params)
		return false, err
	}
	r, s := decodeRS(sig)
	valid := dsa.Verify(k.key, dsaDigest(k.params, size, message), r, s)
	observeVerify(k.params, valid)
	return valid, nil
}

func (k *dsaPublicKey) Equal(other PublicKey) bool {
	if other == nil {
		return false
	}
	return equalSerialized(k.encoded, other.Serialize())
}

// dsaDigest hashes message and keeps the leftmost size bytes.
func dsaDigest(p *Params, size int, message []byte) []byte {
	d := p.digest(message)
	if len(d) > size {
		d = d[:size]
	}
	return d
}

// dsaSecretKey implements SecretKey for the DS family.
type dsaSecretKey struct {
	params *Params
	public *dsaPublicKey

	mu  sync.RWMutex
	key *dsa.PrivateKey // nil after Zeroize
}

func newDSASecretKey(p *Params, key *dsa.PrivateKey) *dsaSecretKey {
	pub := key.PublicKey
	return &dsaSecretKey{
		params: p,
		public: newDSAPublicKey(p, &pub),
		key:    key,
	}
}

func (k *dsaSecretKey) Algorithm() Algorithm { return k.params.algorithm }
func (k *dsaSecretKey) KeySize() int         { return k.params.keySize }
func (k *dsaSecretKey) Params() *Params      { return k.params }
func (k *dsaSecretKey) PublicKey() PublicKey { return k.public }
func (k *dsaSecretKey) String() string       { return redacted(k.params) }
func (k *dsaSecretKey) GoString() string     { return redacted(k.params) }

// Serialize returns the canonical form including x.
// Returns the empty string after Zeroize.
func (k *dsaSecretKey) Serialize() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return ""
	}
	return encodeKey(k.params, k.params.secretFields, material{
		"p": k.key.P, "q": k.key.Q, "g": k.key.G, "y": k.key.Y, "x": k.key.X,
	})
}

// Sign produces an r || s signature over the truncated class digest.
func (k *dsaSecretKey) Sign(message []byte) (Signature, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return nil, fmt.Errorf("%w: %s secret key has been zeroized", ErrInvalidKeyState, k.params)
	}
	size := dsaScalarSize(&k.key.Parameters)
	r, s, err := dsa.Sign(rand.Reader, k.key, dsaDigest(k.params, size, message))
	if err != nil {
		return nil, fmt.Errorf("%s signing failed: %w", k.params, err)
	}
	return encodeRS(r, s, size), nil
}

func (k *dsaSecretKey) Equal(other SecretKey) bool {
	return equalSecret(k, other)
}

// ExposeSecret returns a copy of the secret exponent x.
func (k *dsaSecretKey) ExposeSecret() []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return nil
	}
	return k.key.X.FillBytes(make([]byte, dsaScalarSize(&k.key.Parameters)))
}

// Zeroize overwrites x. The shared group values are left alone.
func (k *dsaSecretKey) Zeroize() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key == nil {
		return
	}
	zeroizeInt(k.key.X)
	k.key = nil
}

var (
	_ PublicKey = (*dsaPublicKey)(nil)
	_ SecretKey = (*dsaSecretKey)(nil)
)
