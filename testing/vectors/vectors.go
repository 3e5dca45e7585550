// Package vectors provides cross-implementation test vectors for jwcrypto
// keys and signatures.
//
// The embedded reference file was produced by an independent implementation:
// its serialized keys must decode to the same canonical text, its valid
// signatures must verify, and its negative cases must fail the documented way.
// GenerateTestVectors produces the same shape of file from this module, so the
// two can be diffed or fed to another implementation.
//
// SECURITY: Test vectors use well-known test keys. NEVER use these keys in production.
package vectors

import (
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Vector categories.
const (
	CategorySignature = "signature"
	CategoryKey       = "key"
)

// Expected error kinds.
const (
	ErrorMalformedKey       = "malformed_key"
	ErrorMalformedSignature = "malformed_signature"
)

//go:embed testdata/vectors.json
var referenceJSON []byte

// TestVectorFile is the root structure of the test vector JSON file.
type TestVectorFile struct {
	// Version of the test vector format.
	Version string `json:"version"`

	// Generated timestamp in RFC3339 format.
	Generated time.Time `json:"generated"`

	// Description of this test vector file.
	Description string `json:"description"`

	// Vectors is the list of test vectors.
	Vectors []TestVector `json:"vectors"`
}

// TestVector represents a single test case for cross-implementation testing.
type TestVector struct {
	// Name is a unique identifier for this test vector.
	Name string `json:"name"`

	// Description explains what this test vector tests.
	Description string `json:"description"`

	// Category is CategorySignature or CategoryKey.
	Category string `json:"category"`

	// Input contains the vector inputs.
	Input TestVectorInput `json:"input"`

	// Expected contains the expected outcome.
	Expected TestVectorExpected `json:"expected"`
}

// TestVectorInput holds the inputs. Signature vectors use the key, message
// and signature fields; key vectors use Record and Kind.
type TestVectorInput struct {
	Algorithm    string `json:"algorithm,omitempty"`
	KeySize      int    `json:"keysize,omitempty"`
	PublicKey    string `json:"public_key,omitempty"`
	SecretKey    string `json:"secret_key,omitempty"`
	MessageHex   string `json:"message_hex,omitempty"`
	SignatureHex string `json:"signature_hex,omitempty"`

	// Record is a serialized key to decode.
	Record string `json:"record,omitempty"`

	// Kind is "public" or "secret" and selects the decoder for Record.
	Kind string `json:"kind,omitempty"`
}

// Message decodes MessageHex.
func (in TestVectorInput) Message() ([]byte, error) {
	return hex.DecodeString(in.MessageHex)
}

// TestVectorExpected is the expected outcome.
type TestVectorExpected struct {
	// Valid is the expected verification result for signature vectors.
	Valid bool `json:"valid,omitempty"`

	// Error is the expected error kind, empty when none is expected.
	Error string `json:"error,omitempty"`

	// Canonical is the expected re-serialization of a decoded key record.
	Canonical string `json:"canonical,omitempty"`
}

// Reference returns the embedded reference vectors.
func Reference() (*TestVectorFile, error) {
	return Parse(referenceJSON)
}

// Parse decodes a test vector file.
func Parse(data []byte) (*TestVectorFile, error) {
	var f TestVectorFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse test vectors: %w", err)
	}
	if len(f.Vectors) == 0 {
		return nil, fmt.Errorf("parse test vectors: no vectors")
	}
	return &f, nil
}

// ByCategory returns the vectors in category.
func (f *TestVectorFile) ByCategory(category string) []TestVector {
	var out []TestVector
	for _, v := range f.Vectors {
		if v.Category == category {
			out = append(out, v)
		}
	}
	return out
}
