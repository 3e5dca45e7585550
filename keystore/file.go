package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/blockberries/jwcrypto/crypto"
)

const (
	// PBKDF2 parameters - these are critical security settings.
	// 100,000 iterations is the minimum acceptable in 2024.
	pbkdf2Iterations = 100_000
	pbkdf2KeyLen     = 32 // AES-256 requires 32-byte key
	saltLen          = 16 // 128-bit salt

	// AES-GCM parameters
	aesGCMNonceLen = 12 // 96-bit nonce (recommended for GCM)

	keyFileExtension = ".key"

	// File permissions - restrictive: owner read/write only
	keyFilePermissions = 0600
	keyDirPermissions  = 0700
)

// FileKeyStore implements KeyStore with one JSON file per key. Public keys
// are stored in the clear; secret keys are encrypted using AES-256-GCM with
// PBKDF2-derived keys and the key name as additional data.
// Thread-safe via RWMutex.
//
// On case-insensitive file systems, names that differ only in case share a
// file. Store of the second name returns ErrKeyExists and Load of it returns
// ErrKeyNotFound, since each file records the name it was stored under.
type FileKeyStore struct {
	dir      string
	password []byte // kept for encryption operations
	mu       sync.RWMutex
	closed   bool
}

// fileKeyData is the JSON structure stored on disk.
type fileKeyData struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
	KeySize   int    `json:"keysize"`
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key,omitempty"` // base64, encrypted
	Salt      string `json:"salt,omitempty"`       // base64
	Nonce     string `json:"nonce,omitempty"`      // base64
}

// NewFileKeyStore creates a FileKeyStore that stores keys in dir, creating
// the directory if needed. The password is used to derive encryption keys
// via PBKDF2.
//
// Security notes:
// - Password is kept in memory until Close
// - Each key uses a unique salt and nonce
// - Files are created with mode 0600 (owner read/write only)
func NewFileKeyStore(dir string, password string) (*FileKeyStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: directory path is empty", ErrKeyStoreIO)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrKeyStoreIO)
	}

	if err := os.MkdirAll(dir, keyDirPermissions); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory: %v", ErrKeyStoreIO, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat directory: %v", ErrKeyStoreIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: path is not a directory", ErrKeyStoreIO)
	}

	return &FileKeyStore{
		dir:      dir,
		password: []byte(password),
	}, nil
}

// Store encrypts the secret key, if any, and writes the entry to disk.
func (fs *FileKeyStore) Store(name string, entry Entry) error {
	normalized, err := entry.validate(name)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkClosed(); err != nil {
		return err
	}

	filePath := fs.keyFilePath(normalized)
	if _, err := os.Stat(filePath); err == nil {
		return ErrKeyExists
	}

	data := fileKeyData{
		Name:      normalized,
		Algorithm: entry.Algorithm.String(),
		KeySize:   entry.KeySize,
		PublicKey: entry.PublicKey,
	}

	if entry.HasSecret() {
		salt := make([]byte, saltLen)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("%w: failed to generate salt: %v", ErrKeyStoreIO, err)
		}
		nonce := make([]byte, aesGCMNonceLen)
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return fmt.Errorf("%w: failed to generate nonce: %v", ErrKeyStoreIO, err)
		}

		derivedKey := pbkdf2.Key(fs.password, salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
		defer crypto.Zeroize(derivedKey)

		ciphertext, err := encryptAESGCM(derivedKey, nonce, entry.SecretKey, []byte(normalized))
		if err != nil {
			return fmt.Errorf("%w: encryption failed: %v", ErrKeyStoreIO, err)
		}
		data.SecretKey = base64.StdEncoding.EncodeToString(ciphertext)
		data.Salt = base64.StdEncoding.EncodeToString(salt)
		data.Nonce = base64.StdEncoding.EncodeToString(nonce)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal key data: %v", ErrKeyStoreIO, err)
	}

	// O_EXCL closes the window between the Stat above and the write.
	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFilePermissions)
	if errors.Is(err, os.ErrExist) {
		return ErrKeyExists
	}
	if err != nil {
		return fmt.Errorf("%w: failed to create key file: %v", ErrKeyStoreIO, err)
	}
	if _, err := f.Write(jsonData); err != nil {
		f.Close()
		os.Remove(filePath)
		return fmt.Errorf("%w: failed to write key file: %v", ErrKeyStoreIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(filePath)
		return fmt.Errorf("%w: failed to close key file: %v", ErrKeyStoreIO, err)
	}
	return nil
}

// Load reads and decrypts an entry from disk.
// Returns ErrKeyNotFound if the file records a different name and
// ErrInvalidPassword if the secret key fails authentication.
func (fs *FileKeyStore) Load(name string) (Entry, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return Entry{}, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if err := fs.checkClosed(); err != nil {
		return Entry{}, err
	}

	jsonData, err := os.ReadFile(fs.keyFilePath(normalized))
	if os.IsNotExist(err) {
		return Entry{}, ErrKeyNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: failed to read key file: %v", ErrKeyStoreIO, err)
	}

	var data fileKeyData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return Entry{}, fmt.Errorf("%w: failed to parse key file: %v", ErrKeyStoreIO, err)
	}
	if recorded, err := NormalizeKeyName(data.Name); err != nil || recorded != normalized {
		return Entry{}, ErrKeyNotFound
	}

	alg := crypto.Algorithm(data.Algorithm)
	if !alg.IsValid() {
		return Entry{}, fmt.Errorf("%w: unknown algorithm %q", ErrKeyStoreIO, data.Algorithm)
	}

	entry := Entry{
		Name:      data.Name,
		Algorithm: alg,
		KeySize:   data.KeySize,
		PublicKey: data.PublicKey,
	}
	if data.SecretKey == "" {
		return entry, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(data.SecretKey)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: invalid secret key encoding: %v", ErrKeyStoreIO, err)
	}
	salt, err := base64.StdEncoding.DecodeString(data.Salt)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: invalid salt encoding: %v", ErrKeyStoreIO, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(data.Nonce)
	if err != nil || len(nonce) != aesGCMNonceLen {
		return Entry{}, fmt.Errorf("%w: invalid nonce encoding", ErrKeyStoreIO)
	}

	derivedKey := pbkdf2.Key(fs.password, salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	defer crypto.Zeroize(derivedKey)

	plaintext, err := decryptAESGCM(derivedKey, nonce, ciphertext, []byte(normalized))
	if err != nil {
		// Authentication failure means wrong password or tampered data
		return Entry{}, ErrInvalidPassword
	}
	entry.SecretKey = plaintext
	return entry, nil
}

// Delete removes a key file from disk.
func (fs *FileKeyStore) Delete(name string) error {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkClosed(); err != nil {
		return err
	}

	err = os.Remove(fs.keyFilePath(normalized))
	if os.IsNotExist(err) {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: failed to delete key file: %v", ErrKeyStoreIO, err)
	}
	return nil
}

// List returns all key names in the store in sorted order.
func (fs *FileKeyStore) List() ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if err := fs.checkClosed(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read directory: %v", ErrKeyStoreIO, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(entry.Name(), keyFileExtension); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Has reports whether a key file exists for name.
func (fs *FileKeyStore) Has(name string) (bool, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return false, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if err := fs.checkClosed(); err != nil {
		return false, err
	}

	_, err = os.Stat(fs.keyFilePath(normalized))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: failed to stat key file: %v", ErrKeyStoreIO, err)
	}
	return true, nil
}

// Close marks the store as closed and zeroizes the password.
// Safe to call multiple times; subsequent calls are no-ops.
func (fs *FileKeyStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.closed {
		return nil
	}
	fs.closed = true
	crypto.Zeroize(fs.password)
	fs.password = nil
	return nil
}

// checkClosed returns ErrKeyStoreClosed if the store is closed.
// Must be called with at least a read lock held.
func (fs *FileKeyStore) checkClosed() error {
	if fs.closed {
		return ErrKeyStoreClosed
	}
	return nil
}

func (fs *FileKeyStore) keyFilePath(name string) string {
	return filepath.Join(fs.dir, name+keyFileExtension)
}

// encryptAESGCM encrypts plaintext using AES-256-GCM.
// The additionalData provides authenticated but unencrypted context.
func encryptAESGCM(key, nonce, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, additionalData), nil
}

// decryptAESGCM decrypts ciphertext using AES-256-GCM.
// Returns error if authentication fails (wrong password or tampered data).
func decryptAESGCM(key, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

var _ KeyStore = (*FileKeyStore)(nil)
