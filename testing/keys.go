// Package testing provides test helpers for code that produces or consumes
// jwcrypto keys.
package testing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/jwcrypto/crypto"
)

// Serializer is anything with a canonical textual form.
type Serializer interface {
	Serialize() string
}

// AssertSerializationDeterminism checks that key.Serialize returns the same
// text on every one of iterations calls.
//
// Usage:
//
//	kp, _ := crypto.GenerateKeyPair(crypto.AlgorithmRSA, 128)
//	jwtesting.AssertSerializationDeterminism(t, kp.PublicKey(), 100)
func AssertSerializationDeterminism(t *testing.T, key Serializer, iterations int) {
	t.Helper()

	if iterations < 2 {
		t.Fatal("AssertSerializationDeterminism requires at least 2 iterations")
	}

	first := key.Serialize()
	require.NotEmpty(t, first, "Serialize() returned an empty string")

	for i := 1; i < iterations; i++ {
		if got := key.Serialize(); got != first {
			t.Fatalf("Serialize() returned different text on iteration %d.\n"+
				"First:  %s\n"+
				"Got:    %s",
				i, first, got)
		}
	}
}

// AssertSerializationDeterminismConcurrent is AssertSerializationDeterminism
// run from several goroutines at once. A pass does not prove thread safety;
// run with -race for that.
func AssertSerializationDeterminismConcurrent(t *testing.T, key Serializer, goroutines, iterationsPerGoroutine int) {
	t.Helper()

	if goroutines < 1 {
		t.Fatal("AssertSerializationDeterminismConcurrent requires at least 1 goroutine")
	}
	if iterationsPerGoroutine < 1 {
		t.Fatal("AssertSerializationDeterminismConcurrent requires at least 1 iteration per goroutine")
	}

	reference := key.Serialize()
	require.NotEmpty(t, reference, "Serialize() returned an empty string")

	results := make(chan concurrentResult, goroutines*iterationsPerGoroutine)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			for i := 0; i < iterationsPerGoroutine; i++ {
				results <- concurrentResult{
					data:        key.Serialize(),
					goroutineID: goroutineID,
					iteration:   i,
				}
			}
		}(g)
	}
	wg.Wait()
	close(results)

	for r := range results {
		if r.data != reference {
			t.Fatalf("Serialize() returned different text in goroutine %d, iteration %d.\n"+
				"Reference: %s\n"+
				"Got:       %s",
				r.goroutineID, r.iteration, reference, r.data)
		}
	}
}

type concurrentResult struct {
	data        string
	goroutineID int
	iteration   int
}

// AssertRoundTrip checks that both halves of kp survive Serialize followed by
// Deserialize unchanged, and that the secret key's public half matches.
func AssertRoundTrip(t *testing.T, kp *crypto.KeyPair) {
	t.Helper()

	pub, err := crypto.DeserializePublicKey(kp.PublicKey().Serialize())
	require.NoError(t, err, "DeserializePublicKey failed")
	assert.True(t, pub.Equal(kp.PublicKey()), "public key changed after round trip")
	assert.Equal(t, kp.PublicKey().Serialize(), pub.Serialize())

	sk, err := crypto.DeserializeSecretKey(kp.SecretKey().Serialize())
	require.NoError(t, err, "DeserializeSecretKey failed")
	assert.True(t, sk.Equal(kp.SecretKey()), "secret key changed after round trip")
	assert.Equal(t, kp.SecretKey().Serialize(), sk.Serialize())
	assert.True(t, sk.PublicKey().Equal(kp.PublicKey()), "decoded secret key has a different public key")
}

// AssertSignVerify signs message with kp's secret key and checks the
// signature against the original and the round-tripped public key. It also
// checks that the same signature is rejected for a different message.
func AssertSignVerify(t *testing.T, kp *crypto.KeyPair, message []byte) {
	t.Helper()

	sig, err := kp.SecretKey().Sign(message)
	require.NoError(t, err, "Sign failed")
	require.Len(t, sig, kp.Params().SignatureSize(), "unexpected signature size")

	ok, err := kp.PublicKey().Verify(message, sig)
	require.NoError(t, err)
	assert.True(t, ok, "signature did not verify against the original public key")

	pub, err := crypto.DeserializePublicKey(kp.PublicKey().Serialize())
	require.NoError(t, err)
	ok, err = pub.Verify(message, sig)
	require.NoError(t, err)
	assert.True(t, ok, "signature did not verify against the decoded public key")

	tampered := append([]byte("tampered:"), message...)
	ok, err = pub.Verify(tampered, sig)
	require.NoError(t, err)
	assert.False(t, ok, "signature verified for a different message")
}
