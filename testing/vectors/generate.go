package vectors

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/blockberries/jwcrypto/crypto"
)

// Messages are the fixed messages every signature vector class signs.
var Messages = [][]byte{
	[]byte("testing!"),
	{},
	[]byte("The quick brown fox jumps over the lazy dog"),
}

// KeyClass names one (algorithm, keysize) pair covered by the vectors.
type KeyClass struct {
	Algorithm crypto.Algorithm
	KeySize   int
}

func (c KeyClass) String() string {
	return fmt.Sprintf("%s%d", c.Algorithm, c.KeySize)
}

// Classes are the key classes covered by the vectors.
var Classes = []KeyClass{
	{crypto.AlgorithmDSA, 128},
	{crypto.AlgorithmDSA, 256},
	{crypto.AlgorithmRSA, 128},
	{crypto.AlgorithmRSA, 256},
	{crypto.AlgorithmSecp256k1, 256},
}

// seedFor returns SHA-256 of the class seed string, the deterministic source
// for DS and ES test keys.
func seedFor(c KeyClass) []byte {
	var s string
	switch c.Algorithm {
	case crypto.AlgorithmSecp256k1:
		s = "jwcrypto-test-vector-seed-secp256k1"
	default:
		s = fmt.Sprintf("jwcrypto-test-vector-seed-%s", c)
	}
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

// WellKnownSecretKey returns the fixed test key for c.
//
// DS keys use the class's fixed group with x = SHA-256(seed) mod (q-1) + 1.
// ES keys use d = SHA-256(seed). RS keys cannot be derived reproducibly from a
// seed, so they are the records carried by the reference file.
//
// SECURITY: These keys are for testing ONLY. Never use in production.
func WellKnownSecretKey(c KeyClass) (crypto.SecretKey, error) {
	p, err := crypto.Resolve(c.Algorithm, c.KeySize)
	if err != nil {
		return nil, err
	}
	seed := new(big.Int).SetBytes(seedFor(c))

	switch c.Algorithm {
	case crypto.AlgorithmDSA:
		group := p.DSAParameters()
		qMinus1 := new(big.Int).Sub(group.Q, big.NewInt(1))
		x := new(big.Int).Mod(seed, qMinus1)
		x.Add(x, big.NewInt(1))
		y := new(big.Int).Exp(group.G, x, group.P)
		return secretFromMaterial(p, map[string]*big.Int{
			"p": group.P, "q": group.Q, "g": group.G, "y": y, "x": x,
		})

	case crypto.AlgorithmSecp256k1:
		priv := secp256k1.PrivKeyFromBytes(seedFor(c))
		pub := priv.PubKey()
		return secretFromMaterial(p, map[string]*big.Int{
			"x": pub.X(), "y": pub.Y(), "d": seed,
		})

	case crypto.AlgorithmRSA:
		ref, err := Reference()
		if err != nil {
			return nil, err
		}
		for _, v := range ref.ByCategory(CategorySignature) {
			if v.Input.Algorithm == string(c.Algorithm) && v.Input.KeySize == c.KeySize && v.Input.SecretKey != "" {
				return crypto.DeserializeSecretKey(v.Input.SecretKey)
			}
		}
		return nil, fmt.Errorf("no reference key for %s", c)
	}
	return nil, fmt.Errorf("no well-known key for %s", c)
}

func secretFromMaterial(p *crypto.Params, values map[string]*big.Int) (crypto.SecretKey, error) {
	sk := crypto.SerializedKey{
		Algorithm: p.Algorithm(),
		KeySize:   p.KeySize(),
		Material:  make(map[string]string, len(values)),
	}
	for name, v := range values {
		sk.Material[name] = v.Text(16)
	}
	return crypto.SecretKeyFromSerialized(sk)
}

// GenerateTestVectors builds a vector file from this module's signer using the
// well-known keys. DS signatures are randomized, so only RS and ES signature
// bytes are reproducible between runs.
func GenerateTestVectors() (*TestVectorFile, error) {
	var vectors []TestVector
	for _, c := range Classes {
		classVectors, err := generateClassVectors(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c, err)
		}
		vectors = append(vectors, classVectors...)
	}

	keyVectors, err := generateKeyVectors()
	if err != nil {
		return nil, err
	}
	vectors = append(vectors, keyVectors...)

	return &TestVectorFile{
		Version:     "1.0",
		Generated:   time.Now().UTC(),
		Description: "Test vectors for jwcrypto keys and signatures",
		Vectors:     vectors,
	}, nil
}

// generateClassVectors signs every message with the class key and derives
// the negative cases from the signature over the first message.
func generateClassVectors(c KeyClass) ([]TestVector, error) {
	sk, err := WellKnownSecretKey(c)
	if err != nil {
		return nil, err
	}
	base := TestVectorInput{
		Algorithm: string(c.Algorithm),
		KeySize:   c.KeySize,
		PublicKey: sk.PublicKey().Serialize(),
		SecretKey: sk.Serialize(),
	}
	prefix := strings.ToLower(c.String())

	var vectors []TestVector
	for i, msg := range Messages {
		sig, err := sk.Sign(msg)
		if err != nil {
			return nil, err
		}
		in := base
		in.MessageHex = fmt.Sprintf("%x", msg)
		in.SignatureHex = sig.String()
		vectors = append(vectors, TestVector{
			Name:        fmt.Sprintf("%s_sign_%d", prefix, i),
			Description: fmt.Sprintf("%s/%d signature over a fixed message", c.Algorithm, c.KeySize),
			Category:    CategorySignature,
			Input:       in,
			Expected:    TestVectorExpected{Valid: true},
		})
	}

	sig, err := sk.Sign(Messages[0])
	if err != nil {
		return nil, err
	}
	negative := func(name, desc, msg, sigHex, errKind string) TestVector {
		in := base
		in.MessageHex = fmt.Sprintf("%x", msg)
		in.SignatureHex = sigHex
		return TestVector{
			Name:        prefix + "_" + name,
			Description: desc,
			Category:    CategorySignature,
			Input:       in,
			Expected:    TestVectorExpected{Error: errKind},
		}
	}

	flipped := append(crypto.Signature(nil), sig...)
	flipped[len(flipped)/2] ^= 0x01
	hexSig := sig.String()

	vectors = append(vectors,
		negative("tampered_message", `signature over "testing!" checked against "tampered"`, "tampered", hexSig, ""),
		negative("flipped_bit", "single bit flipped in the signature", string(Messages[0]), flipped.String(), ""),
		negative("truncated_signature", "signature one byte short", string(Messages[0]), sig[:len(sig)-1].String(), ErrorMalformedSignature),
		negative("odd_hex_signature", "signature hex with an odd number of digits", string(Messages[0]), hexSig[:len(hexSig)-1], ErrorMalformedSignature),
	)
	return vectors, nil
}

// generateKeyVectors covers decoding of canonical and malformed records.
func generateKeyVectors() ([]TestVector, error) {
	rs, err := WellKnownSecretKey(KeyClass{crypto.AlgorithmRSA, 128})
	if err != nil {
		return nil, err
	}
	pub := rs.PublicKey().Serialize()

	key := func(name, desc, record, kind, errKind, canonical string) TestVector {
		return TestVector{
			Name:        name,
			Description: desc,
			Category:    CategoryKey,
			Input:       TestVectorInput{Record: record, Kind: kind},
			Expected:    TestVectorExpected{Error: errKind, Canonical: canonical},
		}
	}
	return []TestVector{
		key("rs128_public_canonical", "canonical RS public record decodes and re-encodes unchanged", pub, "public", "", pub),
		key("rs128_unknown_field_ignored", "unknown fields are ignored", pub[:len(pub)-1]+`,"kid":"abc"}`, "public", "", pub),
		key("rs128_missing_field", "record without the modulus", `{"algorithm":"RS","keysize":128,"e":"10001"}`, "public", ErrorMalformedKey, ""),
		key("rs128_secret_missing_d", "secret record without the private exponent", pub, "secret", ErrorMalformedKey, ""),
		key("unknown_algorithm", "unknown algorithm code", `{"algorithm":"XX","keysize":256,"n":"ff","e":"3"}`, "public", ErrorMalformedKey, ""),
	}, nil
}

// Write encodes f as indented JSON.
func Write(w io.Writer, f *TestVectorFile) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}
