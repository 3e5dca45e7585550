// Package keystore holds optional, caller-chosen storage adapters for
// serialized jwcrypto keys, an authenticated public-key directory, and a
// keyring of named signing keys built on top of them.
//
// Nothing in package crypto stores keys on its own; which adapter to use, and
// whether to use one at all, is up to the caller.
package keystore

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/blockberries/jwcrypto/crypto"
)

// MaxKeyNameLength is the maximum key name length in bytes after normalisation.
const MaxKeyNameLength = 255

// KeyStore provides storage for serialized keys.
// Implementations must be thread-safe.
type KeyStore interface {
	// Store saves an entry under name.
	// Returns ErrKeyExists if the name is taken and ErrKeyNameMismatch if
	// entry.Name differs from name.
	Store(name string, entry Entry) error

	// Load retrieves an entry by name.
	// Returns ErrKeyNotFound if the key doesn't exist.
	// The caller owns the returned entry and should Wipe it after use.
	Load(name string) (Entry, error)

	// Delete removes an entry.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Delete(name string) error

	// List returns all key names.
	// Complexity: O(n) where n is number of keys.
	List() ([]string, error)

	// Has returns true if a key exists.
	Has(name string) (bool, error)

	// Close releases resources. Operations after Close return ErrKeyStoreClosed.
	Close() error
}

// Entry is a stored key: the serialized public key and, optionally, the
// serialized secret key.
type Entry struct {
	// Name is the unique identifier for this key.
	Name string `json:"name"`

	// Algorithm is the key's algorithm code.
	Algorithm crypto.Algorithm `json:"algorithm"`

	// KeySize is the key's keysize class.
	KeySize int `json:"keysize"`

	// PublicKey is the serialized public key.
	PublicKey string `json:"public_key"`

	// SecretKey is the serialized secret key, or nil for public-only entries.
	SecretKey []byte `json:"secret_key,omitempty"`
}

// String formats the entry with the secret key redacted.
func (e Entry) String() string {
	secret := "none"
	if e.HasSecret() {
		secret = "[redacted]"
	}
	return fmt.Sprintf("Entry{Name:%q Algorithm:%s KeySize:%d PublicKey:%s SecretKey:%s}",
		e.Name, e.Algorithm, e.KeySize, e.PublicKey, secret)
}

// GoString keeps %#v from printing the secret key.
func (e Entry) GoString() string {
	return e.String()
}

// NewEntry builds an entry holding both halves of a key pair.
func NewEntry(name string, kp *crypto.KeyPair) Entry {
	return NewSecretEntry(name, kp.SecretKey())
}

// NewSecretEntry builds an entry from a secret key.
func NewSecretEntry(name string, sk crypto.SecretKey) Entry {
	return Entry{
		Name:      name,
		Algorithm: sk.Algorithm(),
		KeySize:   sk.KeySize(),
		PublicKey: sk.PublicKey().Serialize(),
		SecretKey: []byte(sk.Serialize()),
	}
}

// NewPublicEntry builds a public-only entry.
func NewPublicEntry(name string, pub crypto.PublicKey) Entry {
	return Entry{
		Name:      name,
		Algorithm: pub.Algorithm(),
		KeySize:   pub.KeySize(),
		PublicKey: pub.Serialize(),
	}
}

// Clone creates a deep copy of the Entry.
// Prevents external mutation of stored keys.
// Complexity: O(n) where n is total byte size.
func (e Entry) Clone() Entry {
	clone := e
	if e.SecretKey != nil {
		clone.SecretKey = make([]byte, len(e.SecretKey))
		copy(clone.SecretKey, e.SecretKey)
	}
	return clone
}

// Wipe zeroizes the serialized secret key.
func (e *Entry) Wipe() {
	crypto.Zeroize(e.SecretKey)
	e.SecretKey = nil
}

// HasSecret reports whether the entry carries a secret key.
func (e Entry) HasSecret() bool {
	return len(e.SecretKey) > 0
}

// PublicKeyObject decodes the public key and checks it against the entry's
// algorithm and keysize.
func (e Entry) PublicKeyObject() (crypto.PublicKey, error) {
	pub, err := crypto.DeserializePublicKey(e.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidEntry, e.Name, err)
	}
	if pub.Algorithm() != e.Algorithm || pub.KeySize() != e.KeySize {
		return nil, fmt.Errorf("%w: %q: public key is %s, entry says %s%d",
			ErrInvalidEntry, e.Name, pub.Params(), e.Algorithm, e.KeySize)
	}
	return pub, nil
}

// SecretKeyObject decodes the secret key and checks that it matches the
// entry's public key. Returns ErrNoSecretKey for public-only entries.
func (e Entry) SecretKeyObject() (crypto.SecretKey, error) {
	if !e.HasSecret() {
		return nil, fmt.Errorf("%w: %q", ErrNoSecretKey, e.Name)
	}
	pub, err := e.PublicKeyObject()
	if err != nil {
		return nil, err
	}
	sk, err := crypto.DeserializeSecretKey(string(e.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidEntry, e.Name, err)
	}
	if !sk.PublicKey().Equal(pub) {
		sk.Zeroize()
		return nil, fmt.Errorf("%w: %q: secret key does not match public key", ErrInvalidEntry, e.Name)
	}
	return sk, nil
}

// validate checks the entry against the name it is being stored under and
// returns the normalised name.
func (e Entry) validate(name string) (string, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return "", err
	}
	entryName, err := NormalizeKeyName(e.Name)
	if err != nil || entryName != normalized {
		return "", fmt.Errorf("%w: %q vs %q", ErrKeyNameMismatch, name, e.Name)
	}
	if _, err := crypto.Resolve(e.Algorithm, e.KeySize); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidEntry, name, err)
	}
	if e.PublicKey == "" {
		return "", fmt.Errorf("%w: %q: missing public key", ErrInvalidEntry, name)
	}
	return normalized, nil
}

// NormalizeKeyName returns the NFC form of name after checking that it is
// safe for use as a key identifier and file name.
func NormalizeKeyName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: name cannot be empty", ErrInvalidKeyName)
	}
	name = norm.NFC.String(name)
	if len(name) > MaxKeyNameLength {
		return "", fmt.Errorf("%w: name too long (max %d bytes)", ErrInvalidKeyName, MaxKeyNameLength)
	}

	// Prevent path traversal attacks
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: name cannot contain path separators", ErrInvalidKeyName)
	}
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: name cannot contain '..'", ErrInvalidKeyName)
	}

	// Prevent hidden files on Unix
	if strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: name cannot start with '.'", ErrInvalidKeyName)
	}

	for _, r := range name {
		if unicode.IsControl(r) || r == unicode.ReplacementChar || r == ',' {
			return "", fmt.Errorf("%w: name contains invalid characters", ErrInvalidKeyName)
		}
	}
	return name, nil
}
