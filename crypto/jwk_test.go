package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicKeyJWKRoundTrip(t *testing.T) {
	kp := mustGenerate(t, AlgorithmRSA, 128)

	key, err := PublicKeyJWK(kp.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, jwa.RSA, key.KeyType())
	assert.NotEmpty(t, key.KeyID())
	alg, ok := key.Get(jwk.AlgorithmKey)
	require.True(t, ok)
	assert.Equal(t, "RS256", fmt.Sprint(alg))

	data, err := json.Marshal(key)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"d"`)

	pub, err := ParsePublicKeyJWK(data)
	require.NoError(t, err)
	assert.True(t, pub.Equal(kp.PublicKey()))
	assert.Equal(t, 128, pub.KeySize())
}

func TestSecretKeyJWKRoundTrip(t *testing.T) {
	kp := mustGenerate(t, AlgorithmRSA, 128)

	key, err := SecretKeyJWK(kp.SecretKey())
	require.NoError(t, err)
	data, err := json.Marshal(key)
	require.NoError(t, err)

	sk, err := ParseSecretKeyJWK(data)
	require.NoError(t, err)
	assert.True(t, sk.Equal(kp.SecretKey()))

	// A private JWK also yields the public key.
	pub, err := ParsePublicKeyJWK(data)
	require.NoError(t, err)
	assert.True(t, pub.Equal(kp.PublicKey()))

	msg := []byte("testing!")
	sig, err := sk.Sign(msg)
	require.NoError(t, err)
	ok, err := kp.PublicKey().Verify(msg, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJWKThumbprintIsStable(t *testing.T) {
	kp := mustGenerate(t, AlgorithmRSA, 128)
	a, err := PublicKeyJWK(kp.PublicKey())
	require.NoError(t, err)
	b, err := SecretKeyJWK(kp.SecretKey())
	require.NoError(t, err)
	assert.Equal(t, a.KeyID(), b.KeyID())
}

func TestJWKUnsupportedFamilies(t *testing.T) {
	for _, tc := range []keyClass{{AlgorithmDSA, 128}, {AlgorithmSecp256k1, 256}} {
		t.Run(tc.String(), func(t *testing.T) {
			kp := mustGenerate(t, tc.alg, tc.keySize)
			_, err := PublicKeyJWK(kp.PublicKey())
			assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
			_, err = SecretKeyJWK(kp.SecretKey())
			assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
		})
	}
}

func TestSecretKeyJWKAfterZeroize(t *testing.T) {
	sk := mustGenerate(t, AlgorithmRSA, 128).SecretKey()
	sk.Zeroize()
	_, err := SecretKeyJWK(sk)
	assert.ErrorIs(t, err, ErrInvalidKeyState)
}

func TestParseJWKErrors(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecJWK, err := jwk.FromRaw(ecKey)
	require.NoError(t, err)
	ecData, err := json.Marshal(ecJWK)
	require.NoError(t, err)

	rs := mustGenerate(t, AlgorithmRSA, 128)
	pubJWK, err := PublicKeyJWK(rs.PublicKey())
	require.NoError(t, err)
	pubData, err := json.Marshal(pubJWK)
	require.NoError(t, err)

	mismatched, err := PublicKeyJWK(rs.PublicKey())
	require.NoError(t, err)
	require.NoError(t, mismatched.Set(jwk.AlgorithmKey, jwa.RS512))
	mismatchedData, err := json.Marshal(mismatched)
	require.NoError(t, err)

	t.Run("not JSON", func(t *testing.T) {
		_, err := ParsePublicKeyJWK([]byte("not a key"))
		assert.ErrorIs(t, err, ErrMalformedKey)
	})
	t.Run("EC key", func(t *testing.T) {
		_, err := ParsePublicKeyJWK(ecData)
		assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
		_, err = ParseSecretKeyJWK(ecData)
		assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
	})
	t.Run("public JWK as secret", func(t *testing.T) {
		_, err := ParseSecretKeyJWK(pubData)
		require.ErrorIs(t, err, ErrMalformedKey)
		assert.Contains(t, err.Error(), "does not contain a private key")
	})
	t.Run("alg mismatch", func(t *testing.T) {
		_, err := ParsePublicKeyJWK(mismatchedData)
		require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
		assert.Contains(t, err.Error(), "does not match RS128")
	})
}

func TestParseJWKUnknownModulusSize(t *testing.T) {
	// No RS class has a 1536-bit modulus.
	raw, err := generateRawRSA(1536)
	require.NoError(t, err)
	key, err := jwk.FromRaw(&raw.PublicKey)
	require.NoError(t, err)
	data, err := json.Marshal(key)
	require.NoError(t, err)

	_, err = ParsePublicKeyJWK(data)
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
	assert.Contains(t, err.Error(), "1536-bit modulus")
}
