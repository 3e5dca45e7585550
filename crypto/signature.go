package crypto

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Signature is an opaque signature produced by SecretKey.Sign.
//
// Shapes by family:
//   - RS: PKCS #1 v1.5, exactly the modulus byte length
//   - DS: r || s, each left-padded to the byte length of q
//   - ES: r || s, 32 bytes each, low-S
type Signature []byte

// String returns the lower-case hexadecimal form.
func (s Signature) String() string {
	return hex.EncodeToString(s)
}

// ParseSignature decodes the hexadecimal form of a signature.
// Returns ErrMalformedSignature for empty or non-hex input.
func ParseSignature(s string) (Signature, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty signature", ErrMalformedSignature)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return Signature(b), nil
}

// checkSize returns ErrMalformedSignature unless len(sig) is want.
func (s Signature) checkSize(p *Params, want int) error {
	if len(s) != want {
		return fmt.Errorf("%w: %s signature must be %d bytes, got %d", ErrMalformedSignature, p, want, len(s))
	}
	return nil
}

// encodeRS packs r and s as two big-endian halves of size bytes each.
func encodeRS(r, s *big.Int, size int) Signature {
	sig := make([]byte, 2*size)
	r.FillBytes(sig[:size])
	s.FillBytes(sig[size:])
	return sig
}

// decodeRS splits a signature produced by encodeRS.
func decodeRS(sig Signature) (r, s *big.Int) {
	half := len(sig) / 2
	return new(big.Int).SetBytes(sig[:half]), new(big.Int).SetBytes(sig[half:])
}

// Low-S normalization for secp256k1.
//
// ECDSA signatures are malleable: for any valid signature (r, s), the
// signature (r, n-s) is also valid where n is the curve order. Sign produces
// the low-S form (s <= n/2). Verify accepts both forms; use these helpers to
// check or normalize external signatures.
var (
	// secp256k1N is the order of the secp256k1 curve.
	secp256k1N = secp256k1.Params().N

	// secp256k1HalfN is n/2, used for low-S checks.
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// IsLowS reports whether a 64-byte ES signature has s in the lower half of
// the curve order. Returns false for any other length.
//
// Complexity: O(1)
func IsLowS(sig Signature) bool {
	if len(sig) != 64 {
		return false
	}
	s := new(big.Int).SetBytes(sig[32:])
	return s.Cmp(secp256k1HalfN) <= 0
}

// NormalizeLowS returns a copy of a 64-byte ES signature in low-S form.
// Returns nil for any other length.
func NormalizeLowS(sig Signature) Signature {
	if len(sig) != 64 {
		return nil
	}
	r, s := decodeRS(sig)
	if s.Cmp(secp256k1HalfN) > 0 {
		s.Sub(secp256k1N, s)
	}
	return encodeRS(r, s, 32)
}
