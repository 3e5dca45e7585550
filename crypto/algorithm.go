// Package crypto implements the jwcrypto key model: an algorithm registry,
// DSA, RSA and secp256k1 key pairs, a portable textual key encoding, and
// signing and verification on top of Go's cryptographic primitives.
package crypto

import (
	gocrypto "crypto"
	"crypto/dsa" //nolint:staticcheck // DSA is one of the supported key families.
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Algorithm is the short code naming a key family.
// Complexity: All operations O(1)
type Algorithm string

const (
	// AlgorithmDSA is the DSA family (FIPS 186). Keysize classes 128 and 256.
	AlgorithmDSA Algorithm = "DS"

	// AlgorithmRSA is the RSA family with PKCS #1 v1.5 signatures.
	// Keysize classes 128, 256 and 512.
	AlgorithmRSA Algorithm = "RS"

	// AlgorithmSecp256k1 is ECDSA over secp256k1. Keysize class 256.
	AlgorithmSecp256k1 Algorithm = "ES"
)

// String returns the algorithm code.
func (a Algorithm) String() string {
	return string(a)
}

// IsValid returns true if the algorithm code is in the registry.
func (a Algorithm) IsValid() bool {
	_, ok := registry[a]
	return ok
}

// MarshalJSON implements json.Marshaler.
func (a Algorithm) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Algorithm) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("algorithm must be a string: %w", err)
	}
	alg := Algorithm(s)
	if !alg.IsValid() {
		return fmt.Errorf("%w: unknown algorithm code %q", ErrUnsupportedAlgorithm, s)
	}
	*a = alg
	return nil
}

// Params is the resolved, read-only description of one (algorithm, keysize)
// class. Every key holds a pointer to the Params it was built for, so the
// family is chosen once and never looked up again per operation.
type Params struct {
	algorithm   Algorithm
	keySize     int
	hash        gocrypto.Hash
	modulusBits int
	group       *dsa.Parameters

	publicFields []string
	secretFields []string

	family family
}

// family is the per-algorithm implementation bound into Params.
type family interface {
	generate(p *Params, random io.Reader) (SecretKey, error)
	publicKey(p *Params, m material) (PublicKey, error)
	secretKey(p *Params, m material) (SecretKey, error)
	signatureSize(p *Params) int
}

// material holds decoded numeric key fields by name.
type material map[string]*big.Int

// Algorithm returns the algorithm code.
func (p *Params) Algorithm() Algorithm { return p.algorithm }

// KeySize returns the keysize class.
func (p *Params) KeySize() int { return p.keySize }

// Hash returns the message digest used by sign and verify.
func (p *Params) Hash() gocrypto.Hash { return p.hash }

// ModulusBits returns the RSA modulus size in bits, or zero for other families.
func (p *Params) ModulusBits() int { return p.modulusBits }

// DSAParameters returns a copy of the DSA group, or nil for other families.
func (p *Params) DSAParameters() *dsa.Parameters {
	if p.group == nil {
		return nil
	}
	return &dsa.Parameters{
		P: new(big.Int).Set(p.group.P),
		Q: new(big.Int).Set(p.group.Q),
		G: new(big.Int).Set(p.group.G),
	}
}

// PublicFields returns the material field names of a serialized public key,
// in encoding order.
func (p *Params) PublicFields() []string { return slices.Clone(p.publicFields) }

// SecretFields returns the material field names of a serialized secret key,
// in encoding order.
func (p *Params) SecretFields() []string { return slices.Clone(p.secretFields) }

// SignatureSize returns the exact byte length of a signature for this class.
func (p *Params) SignatureSize() int { return p.family.signatureSize(p) }

// digest hashes message with the class digest.
func (p *Params) digest(message []byte) []byte {
	h := p.hash.New()
	h.Write(message)
	return h.Sum(nil)
}

// String returns the algorithm code followed by the keysize, e.g. "RS256".
func (p *Params) String() string {
	return string(p.algorithm) + strconv.Itoa(p.keySize)
}

var (
	rsaPublicFields = []string{"n", "e"}
	rsaSecretFields = []string{"n", "e", "d", "p", "q"}
	dsaPublicFields = []string{"p", "q", "g", "y"}
	dsaSecretFields = []string{"p", "q", "g", "y", "x"}
	ecPublicFields  = []string{"x", "y"}
	ecSecretFields  = []string{"x", "y", "d"}
)

// registry maps algorithm code and keysize class to parameters. It is built
// once at package initialisation and never modified.
var registry = buildRegistry(
	&Params{algorithm: AlgorithmDSA, keySize: 128, hash: gocrypto.SHA1, group: dsaGroup1024,
		publicFields: dsaPublicFields, secretFields: dsaSecretFields, family: dsaFamily{}},
	&Params{algorithm: AlgorithmDSA, keySize: 256, hash: gocrypto.SHA256, group: dsaGroup2048,
		publicFields: dsaPublicFields, secretFields: dsaSecretFields, family: dsaFamily{}},
	&Params{algorithm: AlgorithmRSA, keySize: 128, hash: gocrypto.SHA256, modulusBits: 1024,
		publicFields: rsaPublicFields, secretFields: rsaSecretFields, family: rsaFamily{}},
	&Params{algorithm: AlgorithmRSA, keySize: 256, hash: gocrypto.SHA256, modulusBits: 2048,
		publicFields: rsaPublicFields, secretFields: rsaSecretFields, family: rsaFamily{}},
	&Params{algorithm: AlgorithmRSA, keySize: 512, hash: gocrypto.SHA512, modulusBits: 4096,
		publicFields: rsaPublicFields, secretFields: rsaSecretFields, family: rsaFamily{}},
	&Params{algorithm: AlgorithmSecp256k1, keySize: 256, hash: gocrypto.SHA256,
		publicFields: ecPublicFields, secretFields: ecSecretFields, family: secp256k1Family{}},
)

func buildRegistry(params ...*Params) map[Algorithm]map[int]*Params {
	r := make(map[Algorithm]map[int]*Params)
	for _, p := range params {
		if r[p.algorithm] == nil {
			r[p.algorithm] = make(map[int]*Params)
		}
		r[p.algorithm][p.keySize] = p
	}
	return r
}

// Resolve looks up the parameters for an algorithm code and keysize class.
// It is a pure lookup and never performs key material computation.
//
// An unknown code and an unknown keysize for a known code both fail with
// ErrUnsupportedAlgorithm, with messages that tell the two cases apart.
func Resolve(alg Algorithm, keySize int) (*Params, error) {
	sizes, ok := registry[alg]
	if !ok {
		return nil, fmt.Errorf("%w: unknown algorithm code %q", ErrUnsupportedAlgorithm, string(alg))
	}
	p, ok := sizes[keySize]
	if !ok {
		return nil, fmt.Errorf("%w: %s does not support keysize %d (supported: %s)",
			ErrUnsupportedAlgorithm, alg, keySize, joinInts(SupportedKeySizes(alg)))
	}
	return p, nil
}

// Algorithms returns every registered algorithm code in sorted order.
func Algorithms() []Algorithm {
	algs := make([]Algorithm, 0, len(registry))
	for a := range registry {
		algs = append(algs, a)
	}
	sort.Slice(algs, func(i, j int) bool { return algs[i] < algs[j] })
	return algs
}

// SupportedKeySizes returns the keysize classes offered for alg in ascending
// order, or nil if alg is unknown.
func SupportedKeySizes(alg Algorithm) []int {
	sizes, ok := registry[alg]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(sizes))
	for ks := range sizes {
		out = append(out, ks)
	}
	sort.Ints(out)
	return out
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
