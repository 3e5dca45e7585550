package crypto

import (
	gocrypto "crypto"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// JSON Web Key interop (RFC 7517) for the RS family. The keysize class is
// recovered from the modulus size; "alg" carries the JWA name of the class
// digest and "kid" the RFC 7638 thumbprint.

// PublicKeyJWK converts an RS public key to a JWK.
func PublicKeyJWK(pub PublicKey) (jwk.Key, error) {
	k, ok := pub.(*rsaPublicKey)
	if !ok {
		return nil, noJWKMapping(pub.Algorithm())
	}
	key, err := jwk.FromRaw(k.key)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWK: %w", err)
	}
	return decorateJWK(k.params, key)
}

// SecretKeyJWK converts an RS secret key to a private JWK.
// WARNING: the result carries the secret exponent and primes.
func SecretKeyJWK(sk SecretKey) (jwk.Key, error) {
	k, ok := sk.(*rsaSecretKey)
	if !ok {
		return nil, noJWKMapping(sk.Algorithm())
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return nil, fmt.Errorf("%w: %s secret key has been zeroized", ErrInvalidKeyState, k.params)
	}
	key, err := jwk.FromRaw(k.key)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWK: %w", err)
	}
	return decorateJWK(k.params, key)
}

// ParsePublicKeyJWK parses an RSA JWK (public or private) into an RS public key.
func ParsePublicKeyJWK(data []byte) (PublicKey, error) {
	key, raw, err := parseRSAJWK(data)
	if err != nil {
		return nil, err
	}
	var pub *rsa.PublicKey
	switch v := raw.(type) {
	case *rsa.PublicKey:
		pub = v
	case *rsa.PrivateKey:
		pub = &v.PublicKey
		defer zeroizeRSA(v)
	}
	p, err := rsaParamsForJWK(key, pub.N.BitLen())
	if err != nil {
		return nil, err
	}
	return rsaFamily{}.publicKey(p, material{"n": pub.N, "e": big.NewInt(int64(pub.E))})
}

// ParseSecretKeyJWK parses a private RSA JWK into an RS secret key.
func ParseSecretKeyJWK(data []byte) (SecretKey, error) {
	key, raw, err := parseRSAJWK(data)
	if err != nil {
		return nil, err
	}
	priv, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: JWK does not contain a private key", ErrMalformedKey)
	}
	defer zeroizeRSA(priv)
	if len(priv.Primes) != 2 {
		return nil, fmt.Errorf("%w: multi-prime RSA keys are not supported", ErrMalformedKey)
	}
	p, err := rsaParamsForJWK(key, priv.N.BitLen())
	if err != nil {
		return nil, err
	}
	return rsaFamily{}.secretKey(p, material{
		"n": priv.N,
		"e": big.NewInt(int64(priv.E)),
		"d": priv.D,
		"p": priv.Primes[0],
		"q": priv.Primes[1],
	})
}

func parseRSAJWK(data []byte) (jwk.Key, any, error) {
	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if key.KeyType() != jwa.RSA {
		return nil, nil, fmt.Errorf("%w: no JWK mapping for key type %s", ErrUnsupportedAlgorithm, key.KeyType())
	}
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	switch raw.(type) {
	case *rsa.PublicKey, *rsa.PrivateKey:
		return key, raw, nil
	default:
		return nil, nil, fmt.Errorf("%w: unexpected JWK material %T", ErrMalformedKey, raw)
	}
}

// rsaParamsForJWK finds the RS class with the given modulus size and checks
// it against the JWK "alg" parameter when present.
func rsaParamsForJWK(key jwk.Key, modulusBits int) (*Params, error) {
	var p *Params
	for _, candidate := range registry[AlgorithmRSA] {
		if candidate.modulusBits == modulusBits {
			p = candidate
			break
		}
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no RS keysize class has a %d-bit modulus", ErrUnsupportedAlgorithm, modulusBits)
	}
	if alg, ok := key.Get(jwk.AlgorithmKey); ok {
		if want := jwaAlgorithm(p).String(); fmt.Sprint(alg) != want {
			return nil, fmt.Errorf("%w: JWK alg %v does not match %s (%s)", ErrUnsupportedAlgorithm, alg, p, want)
		}
	}
	return p, nil
}

func decorateJWK(p *Params, key jwk.Key) (jwk.Key, error) {
	if err := key.Set(jwk.AlgorithmKey, jwaAlgorithm(p)); err != nil {
		return nil, fmt.Errorf("failed to set JWK alg: %w", err)
	}
	if err := jwk.AssignKeyID(key); err != nil {
		return nil, fmt.Errorf("failed to assign JWK kid: %w", err)
	}
	return key, nil
}

func jwaAlgorithm(p *Params) jwa.SignatureAlgorithm {
	if p.hash == gocrypto.SHA512 {
		return jwa.RS512
	}
	return jwa.RS256
}

func noJWKMapping(alg Algorithm) error {
	return fmt.Errorf("%w: no JWK mapping for %s keys", ErrUnsupportedAlgorithm, alg)
}
