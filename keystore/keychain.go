package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/blockberries/jwcrypto/crypto"
)

const (
	// keychainKeyPrefix is prepended to key names to namespace them within the service.
	keychainKeyPrefix = "key:"
	// keychainListKey stores the list of all key names.
	// Keychain APIs don't provide a native "list all" operation, so we maintain an index.
	keychainListKey = "_keylist"
)

// KeychainStore implements KeyStore using the OS keychain:
//   - macOS: Keychain
//   - Windows: Credential Store
//   - Linux: Secret Service (libsecret)
//
// Entries are stored as JSON; the keychain provides encryption.
// Thread-safe via RWMutex.
//
// Size limits are platform-dependent (about 2KB on macOS, 2560 bytes on
// Windows). DS and ES secret keys fit; RS secret keys above keysize 128 may
// not, in which case Store fails with ErrKeyStoreIO.
type KeychainStore struct {
	serviceName string
	mu          sync.RWMutex
	closed      bool
}

// keychainKeyData is the JSON structure stored in the keychain.
type keychainKeyData struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
	KeySize   int    `json:"keysize"`
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key,omitempty"` // plaintext, keychain handles encryption
}

// NewKeychainStore creates a KeychainStore. serviceName identifies this
// application's keys in the keychain.
//
// Returns ErrKeychainUnavailable if the keychain cannot be accessed.
func NewKeychainStore(serviceName string) (*KeychainStore, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("%w: service name cannot be empty", ErrKeyStoreIO)
	}

	// Catches missing D-Bus or secret service on Linux.
	_, err := keyring.Get(serviceName, keychainListKey)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrKeychainUnavailable, err)
	}

	return &KeychainStore{serviceName: serviceName}, nil
}

// Store saves an entry to the OS keychain.
// Complexity: O(1) + keychain IPC (~1-5ms typical)
func (ks *KeychainStore) Store(name string, entry Entry) error {
	normalized, err := entry.validate(name)
	if err != nil {
		return err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if err := ks.checkClosed(); err != nil {
		return err
	}

	keychainKey := keychainKeyPrefix + normalized

	_, err = keyring.Get(ks.serviceName, keychainKey)
	if err == nil {
		return ErrKeyExists
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: failed to check existing key: %v", ErrKeyStoreIO, err)
	}

	data := keychainKeyData{
		Name:      normalized,
		Algorithm: entry.Algorithm.String(),
		KeySize:   entry.KeySize,
		PublicKey: entry.PublicKey,
		SecretKey: string(entry.SecretKey),
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal key data: %v", ErrKeyStoreIO, err)
	}

	if err := keyring.Set(ks.serviceName, keychainKey, string(jsonData)); err != nil {
		return fmt.Errorf("%w: failed to store key in keychain: %v", ErrKeyStoreIO, err)
	}

	if err := ks.addToKeyList(normalized); err != nil {
		// Rollback: delete the key we just stored
		_ = keyring.Delete(ks.serviceName, keychainKey)
		return err
	}
	return nil
}

// Load retrieves an entry from the OS keychain.
func (ks *KeychainStore) Load(name string) (Entry, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return Entry{}, err
	}

	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if err := ks.checkClosed(); err != nil {
		return Entry{}, err
	}

	jsonStr, err := keyring.Get(ks.serviceName, keychainKeyPrefix+normalized)
	if errors.Is(err, keyring.ErrNotFound) {
		return Entry{}, ErrKeyNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: failed to load key from keychain: %v", ErrKeyStoreIO, err)
	}

	var data keychainKeyData
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		return Entry{}, fmt.Errorf("%w: failed to parse key data: %v", ErrKeyStoreIO, err)
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
	if data.SecretKey != "" {
		entry.SecretKey = []byte(data.SecretKey)
	}
	return entry, nil
}

// Delete removes an entry from the OS keychain.
func (ks *KeychainStore) Delete(name string) error {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if err := ks.checkClosed(); err != nil {
		return err
	}

	err = keyring.Delete(ks.serviceName, keychainKeyPrefix+normalized)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: failed to delete key from keychain: %v", ErrKeyStoreIO, err)
	}

	// The key is gone; a stale index entry is dropped by the next List.
	_ = ks.removeFromKeyList(normalized)
	return nil
}

// List returns all key names stored in the keychain, sorted.
// Complexity: O(1) + keychain IPC (uses maintained index)
func (ks *KeychainStore) List() ([]string, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if err := ks.checkClosed(); err != nil {
		return nil, err
	}

	names, err := ks.readKeyList()
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(names))
	for _, name := range names {
		_, err := keyring.Get(ks.serviceName, keychainKeyPrefix+name)
		if errors.Is(err, keyring.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to check key %q: %v", ErrKeyStoreIO, name, err)
		}
		result = append(result, name)
	}
	sort.Strings(result)
	return result, nil
}

// Has reports whether name is stored in the keychain.
func (ks *KeychainStore) Has(name string) (bool, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return false, err
	}

	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if err := ks.checkClosed(); err != nil {
		return false, err
	}

	_, err = keyring.Get(ks.serviceName, keychainKeyPrefix+normalized)
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: failed to check key: %v", ErrKeyStoreIO, err)
	}
	return true, nil
}

// Close marks the store as closed.
// Safe to call multiple times; subsequent calls are no-ops.
func (ks *KeychainStore) Close() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.closed = true
	return nil
}

// checkClosed returns ErrKeyStoreClosed if the store is closed.
// Must be called with at least a read lock held.
func (ks *KeychainStore) checkClosed() error {
	if ks.closed {
		return ErrKeyStoreClosed
	}
	return nil
}

func (ks *KeychainStore) readKeyList() ([]string, error) {
	listStr, err := keyring.Get(ks.serviceName, keychainListKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read key list: %v", ErrKeyStoreIO, err)
	}
	if listStr == "" {
		return nil, nil
	}
	var names []string
	for _, n := range strings.Split(listStr, ",") {
		if n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

// addToKeyList adds a key name to the index.
// Must be called with write lock held.
func (ks *KeychainStore) addToKeyList(name string) error {
	names, err := ks.readKeyList()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	names = append(names, name)
	if err := keyring.Set(ks.serviceName, keychainListKey, strings.Join(names, ",")); err != nil {
		return fmt.Errorf("%w: failed to update key list: %v", ErrKeyStoreIO, err)
	}
	return nil
}

// removeFromKeyList removes a key name from the index.
// Must be called with write lock held.
func (ks *KeychainStore) removeFromKeyList(name string) error {
	names, err := ks.readKeyList()
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(names))
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	if err := keyring.Set(ks.serviceName, keychainListKey, strings.Join(kept, ",")); err != nil {
		return fmt.Errorf("%w: failed to update key list: %v", ErrKeyStoreIO, err)
	}
	return nil
}

var _ KeyStore = (*KeychainStore)(nil)
