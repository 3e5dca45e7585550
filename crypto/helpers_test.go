package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

type keyClass struct {
	alg     Algorithm
	keySize int
}

func (c keyClass) String() string {
	return string(c.alg) + strconv.Itoa(c.keySize)
}

// testClasses covers every family. RS512 is exercised separately because
// generating a 4096-bit modulus is slow.
var testClasses = []keyClass{
	{AlgorithmDSA, 128},
	{AlgorithmDSA, 256},
	{AlgorithmRSA, 128},
	{AlgorithmRSA, 256},
	{AlgorithmSecp256k1, 256},
}

func mustGenerate(t testing.TB, alg Algorithm, keySize int) *KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair(alg, keySize)
	require.NoError(t, err)
	require.NotNil(t, kp)
	return kp
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func generateRawRSA(bits int) (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, bits)
}
