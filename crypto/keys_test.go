package crypto

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRoundTrip(t *testing.T) {
	for _, tc := range testClasses {
		t.Run(tc.String(), func(t *testing.T) {
			kp := mustGenerate(t, tc.alg, tc.keySize)
			assert.Equal(t, tc.alg, kp.Algorithm())
			assert.Equal(t, tc.keySize, kp.KeySize())
			assert.Equal(t, tc.alg, kp.PublicKey().Algorithm())
			assert.Equal(t, tc.keySize, kp.SecretKey().KeySize())

			pubText := kp.PublicKey().Serialize()
			pub, err := DeserializePublicKey(pubText)
			require.NoError(t, err)
			assert.Equal(t, pubText, pub.Serialize())
			assert.True(t, pub.Equal(kp.PublicKey()))

			secText := kp.SecretKey().Serialize()
			sec, err := DeserializeSecretKey(secText)
			require.NoError(t, err)
			assert.Equal(t, secText, sec.Serialize())
			assert.True(t, sec.Equal(kp.SecretKey()))
			assert.Equal(t, pubText, sec.PublicKey().Serialize())
		})
	}
}

func TestSignVerify(t *testing.T) {
	messages := [][]byte{
		[]byte("testing!"),
		{},
		[]byte(strings.Repeat("a", 10000)),
	}

	for _, tc := range testClasses {
		t.Run(tc.String(), func(t *testing.T) {
			kp := mustGenerate(t, tc.alg, tc.keySize)
			other := mustGenerate(t, tc.alg, tc.keySize)

			for _, msg := range messages {
				sig, err := kp.SecretKey().Sign(msg)
				require.NoError(t, err)
				assert.Len(t, sig, kp.Params().SignatureSize())

				ok, err := kp.PublicKey().Verify(msg, sig)
				require.NoError(t, err)
				assert.True(t, ok)

				// Wrong message.
				ok, err = kp.PublicKey().Verify(append([]byte("x"), msg...), sig)
				require.NoError(t, err)
				assert.False(t, ok)

				// Wrong key.
				ok, err = other.PublicKey().Verify(msg, sig)
				require.NoError(t, err)
				assert.False(t, ok)

				// Flipped bit.
				tampered := append(Signature(nil), sig...)
				tampered[len(tampered)/2] ^= 0x01
				ok, err = kp.PublicKey().Verify(msg, tampered)
				require.NoError(t, err)
				assert.False(t, ok)
			}
		})
	}
}

func TestSignVerifyAfterDeserialize(t *testing.T) {
	for _, tc := range testClasses {
		t.Run(tc.String(), func(t *testing.T) {
			kp := mustGenerate(t, tc.alg, tc.keySize)
			sec, err := DeserializeSecretKey(kp.SecretKey().Serialize())
			require.NoError(t, err)
			pub, err := DeserializePublicKey(kp.PublicKey().Serialize())
			require.NoError(t, err)

			msg := []byte("testing!")
			sig, err := sec.Sign(msg)
			require.NoError(t, err)

			ok, err := pub.Verify(msg, sig)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = kp.PublicKey().Verify(msg, sig)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRS512(t *testing.T) {
	if testing.Short() {
		t.Skip("4096-bit RSA generation is slow")
	}
	kp := mustGenerate(t, AlgorithmRSA, 512)
	assert.Equal(t, 4096, kp.Params().ModulusBits())

	sig, err := kp.SecretKey().Sign([]byte("testing!"))
	require.NoError(t, err)
	assert.Len(t, sig, 512)

	pub, err := DeserializePublicKey(kp.PublicKey().Serialize())
	require.NoError(t, err)
	ok, err := pub.Verify([]byte("testing!"), sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyMalformedSignature(t *testing.T) {
	for _, tc := range testClasses {
		t.Run(tc.String(), func(t *testing.T) {
			kp := mustGenerate(t, tc.alg, tc.keySize)
			size := kp.Params().SignatureSize()

			for _, n := range []int{0, 1, size - 1, size + 1, 2 * size} {
				ok, err := kp.PublicKey().Verify([]byte("testing!"), make(Signature, n))
				require.ErrorIs(t, err, ErrMalformedSignature, "length %d", n)
				assert.False(t, ok)
			}
		})
	}
}

func TestVerifyZeroSignature(t *testing.T) {
	// A correctly sized but meaningless signature is a verification failure,
	// not a parse failure.
	for _, tc := range testClasses {
		t.Run(tc.String(), func(t *testing.T) {
			kp := mustGenerate(t, tc.alg, tc.keySize)
			ok, err := kp.PublicKey().Verify([]byte("testing!"), make(Signature, kp.Params().SignatureSize()))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestVerifyOverflowingESSignature(t *testing.T) {
	kp := mustGenerate(t, AlgorithmSecp256k1, 256)
	sig := make(Signature, 64)
	for i := range sig {
		sig[i] = 0xff
	}
	ok, err := kp.PublicKey().Verify([]byte("testing!"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecretKeyRedaction(t *testing.T) {
	for _, tc := range testClasses {
		t.Run(tc.String(), func(t *testing.T) {
			kp := mustGenerate(t, tc.alg, tc.keySize)
			sk := kp.SecretKey()

			want := tc.String() + " secret key [redacted]"
			assert.Equal(t, want, sk.String())
			assert.Equal(t, want, fmt.Sprintf("%v", sk))
			assert.Equal(t, want, fmt.Sprintf("%#v", sk))
			assert.Equal(t, tc.String()+" key pair", kp.String())

			secret := sk.ExposeSecret()
			require.NotEmpty(t, secret)
			assert.NotContains(t, fmt.Sprintf("%+v", sk), fmt.Sprintf("%x", secret))
		})
	}
}

func TestExposeSecretReturnsCopy(t *testing.T) {
	for _, tc := range testClasses {
		t.Run(tc.String(), func(t *testing.T) {
			sk := mustGenerate(t, tc.alg, tc.keySize).SecretKey()
			a := sk.ExposeSecret()
			Zeroize(a)
			b := sk.ExposeSecret()
			assert.NotEqual(t, a, b)

			msg := []byte("still works")
			sig, err := sk.Sign(msg)
			require.NoError(t, err)
			ok, err := sk.PublicKey().Verify(msg, sig)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestZeroize(t *testing.T) {
	for _, tc := range testClasses {
		t.Run(tc.String(), func(t *testing.T) {
			kp := mustGenerate(t, tc.alg, tc.keySize)
			sk := kp.SecretKey()
			pubText := kp.PublicKey().Serialize()

			sk.Zeroize()
			sk.Zeroize() // idempotent

			_, err := sk.Sign([]byte("testing!"))
			assert.ErrorIs(t, err, ErrInvalidKeyState)
			assert.Empty(t, sk.Serialize())
			assert.Nil(t, sk.ExposeSecret())

			// The public half is unaffected.
			assert.Equal(t, pubText, sk.PublicKey().Serialize())
			_, err = DeserializePublicKey(pubText)
			assert.NoError(t, err)
		})
	}
}

func TestZeroizeDoesNotTouchSharedDSAGroup(t *testing.T) {
	kp := mustGenerate(t, AlgorithmDSA, 128)
	kp.SecretKey().Zeroize()

	other := mustGenerate(t, AlgorithmDSA, 128)
	sig, err := other.SecretKey().Sign([]byte("testing!"))
	require.NoError(t, err)
	ok, err := other.PublicKey().Verify([]byte("testing!"), sig)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, checkDSAGroup(dsaGroup1024.P, dsaGroup1024.Q, dsaGroup1024.G))
}

func TestConcurrentSignAndZeroize(t *testing.T) {
	sk := mustGenerate(t, AlgorithmSecp256k1, 256).SecretKey()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sig, err := sk.Sign([]byte("testing!"))
				if err != nil {
					assert.ErrorIs(t, err, ErrInvalidKeyState)
					return
				}
				assert.Len(t, sig, 64)
			}
		}()
	}
	sk.Zeroize()
	wg.Wait()
}

func TestEqual(t *testing.T) {
	a := mustGenerate(t, AlgorithmSecp256k1, 256)
	b := mustGenerate(t, AlgorithmSecp256k1, 256)
	c := mustGenerate(t, AlgorithmDSA, 128)

	assert.True(t, a.PublicKey().Equal(a.PublicKey()))
	assert.False(t, a.PublicKey().Equal(b.PublicKey()))
	assert.False(t, a.PublicKey().Equal(c.PublicKey()))
	assert.False(t, a.PublicKey().Equal(nil))

	assert.True(t, a.SecretKey().Equal(a.SecretKey()))
	assert.False(t, a.SecretKey().Equal(b.SecretKey()))
	assert.False(t, a.SecretKey().Equal(c.SecretKey()))
	assert.False(t, a.SecretKey().Equal(nil))
}

func TestDeserializeSecretAsPublic(t *testing.T) {
	// A secret record carries every public field, so it decodes as a public key.
	for _, tc := range testClasses {
		t.Run(tc.String(), func(t *testing.T) {
			kp := mustGenerate(t, tc.alg, tc.keySize)
			pub, err := DeserializePublicKey(kp.SecretKey().Serialize())
			require.NoError(t, err)
			assert.Equal(t, kp.PublicKey().Serialize(), pub.Serialize())
		})
	}
}

func TestDeserializePublicAsSecretFails(t *testing.T) {
	for _, tc := range testClasses {
		t.Run(tc.String(), func(t *testing.T) {
			kp := mustGenerate(t, tc.alg, tc.keySize)
			_, err := DeserializeSecretKey(kp.PublicKey().Serialize())
			require.ErrorIs(t, err, ErrMalformedKey)
			assert.Contains(t, err.Error(), "missing field")
		})
	}
}

func TestDeserializeIgnoresUnknownFields(t *testing.T) {
	for _, tc := range testClasses {
		t.Run(tc.String(), func(t *testing.T) {
			kp := mustGenerate(t, tc.alg, tc.keySize)
			text := kp.PublicKey().Serialize()
			extended := strings.TrimSuffix(text, "}") + `,"kid":"abc","use":{"sig":true},"n2":12}`

			pub, err := DeserializePublicKey(extended)
			require.NoError(t, err)
			assert.Equal(t, text, pub.Serialize())
		})
	}
}

func TestInconsistentSecretKeys(t *testing.T) {
	rs := mustGenerate(t, AlgorithmRSA, 128)
	rsOther := mustGenerate(t, AlgorithmRSA, 128)
	ds := mustGenerate(t, AlgorithmDSA, 128)
	dsOther := mustGenerate(t, AlgorithmDSA, 128)
	es := mustGenerate(t, AlgorithmSecp256k1, 256)
	esOther := mustGenerate(t, AlgorithmSecp256k1, 256)

	tests := []struct {
		name        string
		base        *KeyPair
		donor       *KeyPair
		field       string
		errContains string
	}{
		{"RS foreign d", rs, rsOther, "d", "RS128"},
		{"RS foreign p", rs, rsOther, "p", "RS128"},
		{"DS foreign x", ds, dsOther, "x", "public value does not match secret exponent"},
		{"DS foreign y", ds, dsOther, "y", "public value does not match secret exponent"},
		{"ES foreign d", es, esOther, "d", "public point does not match secret scalar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, err := ParseSerializedKey([]byte(tt.base.SecretKey().Serialize()))
			require.NoError(t, err)
			donor, err := ParseSerializedKey([]byte(tt.donor.SecretKey().Serialize()))
			require.NoError(t, err)

			base.Material[tt.field] = donor.Material[tt.field]
			_, err = SecretKeyFromSerialized(base)
			require.ErrorIs(t, err, ErrMalformedKey)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestDSAPublicKeyValidation(t *testing.T) {
	kp := mustGenerate(t, AlgorithmDSA, 128)
	base, err := ParseSerializedKey([]byte(kp.PublicKey().Serialize()))
	require.NoError(t, err)

	tests := []struct {
		name        string
		field       string
		value       string
		errContains string
	}{
		{"y is one", "y", "1", "public value out of range"},
		{"y equals p", "y", base.Material["p"], "public value out of range"},
		{"y outside subgroup", "y", "2", "public value is not in the subgroup"},
		{"wrong group size", "q", "3", "group is L=1024 N=2"},
		{"generator of wrong order", "g", "2", "generator does not have order q"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := make(map[string]string, len(base.Material))
			for k, v := range base.Material {
				m[k] = v
			}
			m[tt.field] = tt.value
			_, err := PublicKeyFromSerialized(SerializedKey{Algorithm: AlgorithmDSA, KeySize: 128, Material: m})
			require.ErrorIs(t, err, ErrMalformedKey)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestDSAKeyWithWrongClassGroup(t *testing.T) {
	kp := mustGenerate(t, AlgorithmDSA, 256)
	sk, err := ParseSerializedKey([]byte(kp.PublicKey().Serialize()))
	require.NoError(t, err)
	sk.KeySize = 128

	_, err = PublicKeyFromSerialized(sk)
	require.ErrorIs(t, err, ErrMalformedKey)
	assert.Contains(t, err.Error(), "group is L=2048 N=256")
}

func TestESPublicKeyNotOnCurve(t *testing.T) {
	kp := mustGenerate(t, AlgorithmSecp256k1, 256)
	sk, err := ParseSerializedKey([]byte(kp.PublicKey().Serialize()))
	require.NoError(t, err)
	sk.Material["y"] = "1"

	_, err = PublicKeyFromSerialized(sk)
	assert.ErrorIs(t, err, ErrMalformedKey)

	sk.Material["y"] = strings.Repeat("f", 65)
	_, err = PublicKeyFromSerialized(sk)
	require.ErrorIs(t, err, ErrMalformedKey)
	assert.Contains(t, err.Error(), "coordinate too large")
}

func TestZeroizeBytes(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Zeroize(b)
	assert.Equal(t, []byte{0, 0, 0, 0}, b)
	Zeroize(nil)
}

func TestSigner(t *testing.T) {
	kp := mustGenerate(t, AlgorithmDSA, 128)
	signer := NewSigner(kp.SecretKey())
	assert.Equal(t, AlgorithmDSA, signer.Algorithm())
	assert.Equal(t, 128, signer.KeySize())
	assert.True(t, signer.PublicKey().Equal(kp.PublicKey()))

	sig, err := signer.Sign([]byte("testing!"))
	require.NoError(t, err)
	ok, err := VerifySignature(kp.PublicKey(), []byte("testing!"), sig.String())
	require.NoError(t, err)
	assert.True(t, ok)

	signer.Zeroize()
	_, err = signer.Sign([]byte("testing!"))
	assert.ErrorIs(t, err, ErrInvalidKeyState)
}
