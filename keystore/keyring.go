package keystore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"cosmossdk.io/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/blockberries/jwcrypto/crypto"
)

// MaxSignDataLength is the maximum message length Keyring.Sign accepts.
const MaxSignDataLength = 64 * 1024 * 1024

// Keyring manages named signing keys on top of a KeyStore.
// All methods are thread-safe.
type Keyring interface {
	// NewKey generates a key pair for (alg, keySize) and stores it under name.
	// Returns ErrKeyExists if the name is taken and crypto.ErrUnsupportedAlgorithm
	// for an unknown pair.
	NewKey(name string, alg crypto.Algorithm, keySize int) (crypto.Signer, error)

	// ImportKey stores a serialized secret key under name.
	// Returns ErrKeyExists if the name is taken and crypto.ErrMalformedKey if
	// the record does not decode.
	ImportKey(name string, serializedSecret string) (crypto.Signer, error)

	// ExportKey returns the serialized secret key stored under name.
	// Returns ErrNoSecretKey for public-only entries.
	ExportKey(name string) (string, error)

	// GetKey returns a signer for name, loading it from the store on a cache miss.
	// A cached signer is zeroized when it is evicted, deleted or the keyring is
	// closed; Sign on it then fails with crypto.ErrInvalidKeyState.
	GetKey(name string) (crypto.Signer, error)

	// PublicKey returns the public key stored under name.
	PublicKey(name string) (crypto.PublicKey, error)

	// ListKeys returns all key names.
	ListKeys() ([]string, error)

	// DeleteKey zeroizes any cached signer and removes name from the store.
	// Once it returns, no signer for the deleted key is cached, including one
	// a concurrent GetKey loaded before the delete.
	DeleteKey(name string) error

	// Sign signs message with the named key.
	// Returns ErrDataTooLarge if message exceeds MaxSignDataLength.
	Sign(name string, message []byte) (crypto.Signature, error)

	// Verify checks sig over message against the named public key.
	Verify(name string, message []byte, sig crypto.Signature) (bool, error)

	// Close zeroizes all cached signers and closes the store. Stored keys are
	// left in place. Safe to call multiple times.
	Close() error
}

// defaultKeyring implements Keyring with an LRU signer cache over a KeyStore.
type defaultKeyring struct {
	store     KeyStore
	generator *crypto.Generator
	logger    log.Logger

	// mu protects cache membership and the closed flag. Sign holds it for
	// reading so that no cached signer is zeroized mid-signature.
	mu        sync.RWMutex
	cache     *lru.Cache[string, *crypto.BasicSigner]
	cacheSize int
	closed    bool

	// deletes counts DeleteKey calls. It only changes with mu held for
	// writing, so addToCache can tell whether a delete raced its load.
	deletes atomic.Uint64
}

// KeyringOption configures a Keyring.
type KeyringOption func(*defaultKeyring)

// WithCacheSize sets the maximum number of cached signers.
// Default is 100. Set to 0 to disable caching.
func WithCacheSize(size int) KeyringOption {
	return func(k *defaultKeyring) {
		k.cacheSize = size
	}
}

// WithKeyringLogger sets the logger. Defaults to a no-op logger.
func WithKeyringLogger(logger log.Logger) KeyringOption {
	return func(k *defaultKeyring) {
		k.logger = logger
	}
}

// WithGenerator sets the generator NewKey uses.
func WithGenerator(g *crypto.Generator) KeyringOption {
	return func(k *defaultKeyring) {
		k.generator = g
	}
}

// NewKeyring creates a keyring over store.
func NewKeyring(store KeyStore, opts ...KeyringOption) (Keyring, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	kr := &defaultKeyring{
		store:     store,
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(kr)
	}
	if kr.logger == nil {
		kr.logger = log.NewNopLogger()
	}
	if kr.generator == nil {
		kr.generator = crypto.NewGenerator(crypto.WithLogger(kr.logger))
	}
	if kr.cacheSize > 0 {
		cache, err := lru.NewWithEvict(kr.cacheSize, func(_ string, s *crypto.BasicSigner) {
			s.Zeroize()
		})
		if err != nil {
			return nil, err
		}
		kr.cache = cache
	}
	return kr, nil
}

// NewKey generates and stores a new key.
func (kr *defaultKeyring) NewKey(name string, alg crypto.Algorithm, keySize int) (crypto.Signer, error) {
	normalized, err := kr.prepareNew(name)
	if err != nil {
		return nil, err
	}

	kp, err := kr.generator.Generate(alg, keySize)
	if err != nil {
		return nil, err
	}
	return kr.storeSecret(normalized, kp.SecretKey())
}

// ImportKey decodes and stores a serialized secret key.
func (kr *defaultKeyring) ImportKey(name string, serializedSecret string) (crypto.Signer, error) {
	normalized, err := kr.prepareNew(name)
	if err != nil {
		return nil, err
	}

	sk, err := crypto.DeserializeSecretKey(serializedSecret)
	if err != nil {
		return nil, err
	}
	return kr.storeSecret(normalized, sk)
}

// prepareNew validates name and checks that it is free.
func (kr *defaultKeyring) prepareNew(name string) (string, error) {
	if err := kr.checkOpen(); err != nil {
		return "", err
	}
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return "", err
	}
	exists, err := kr.store.Has(normalized)
	if err != nil {
		return "", err
	}
	if exists {
		return "", ErrKeyExists
	}
	return normalized, nil
}

func (kr *defaultKeyring) storeSecret(name string, sk crypto.SecretKey) (crypto.Signer, error) {
	gen := kr.deletes.Load()
	entry := NewSecretEntry(name, sk)
	defer entry.Wipe()
	if err := kr.store.Store(name, entry); err != nil {
		sk.Zeroize()
		return nil, err
	}
	kr.logger.Info("stored key", "name", name, "algorithm", sk.Algorithm(), "keysize", sk.KeySize())

	return kr.addToCache(name, crypto.NewSigner(sk), gen)
}

// ExportKey returns the serialized secret key. The returned string cannot be
// zeroized; callers that need that should use GetKey instead.
func (kr *defaultKeyring) ExportKey(name string) (string, error) {
	if err := kr.checkOpen(); err != nil {
		return "", err
	}
	entry, err := kr.store.Load(name)
	if err != nil {
		return "", err
	}
	defer entry.Wipe()
	if !entry.HasSecret() {
		return "", fmt.Errorf("%w: %q", ErrNoSecretKey, entry.Name)
	}
	return string(entry.SecretKey), nil
}

// GetKey retrieves a signer by name.
// Between the cache miss and addToCache another goroutine may load the same
// key or delete it; addToCache keeps the first signer, zeroizes duplicates
// and refuses signers whose key was deleted in the meantime.
func (kr *defaultKeyring) GetKey(name string) (crypto.Signer, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return nil, err
	}

	kr.mu.RLock()
	if kr.closed {
		kr.mu.RUnlock()
		return nil, ErrKeyringClosed
	}
	if signer, ok := kr.cached(normalized); ok {
		kr.mu.RUnlock()
		return signer, nil
	}
	gen := kr.deletes.Load()
	kr.mu.RUnlock()

	signer, err := kr.load(normalized)
	if err != nil {
		return nil, err
	}
	return kr.addToCache(normalized, signer, gen)
}

// PublicKey returns the public key stored under name.
func (kr *defaultKeyring) PublicKey(name string) (crypto.PublicKey, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return nil, err
	}

	kr.mu.RLock()
	if kr.closed {
		kr.mu.RUnlock()
		return nil, ErrKeyringClosed
	}
	if signer, ok := kr.cached(normalized); ok {
		kr.mu.RUnlock()
		return signer.PublicKey(), nil
	}
	kr.mu.RUnlock()

	entry, err := kr.store.Load(normalized)
	if err != nil {
		return nil, err
	}
	defer entry.Wipe()
	return entry.PublicKeyObject()
}

// ListKeys returns all key names.
func (kr *defaultKeyring) ListKeys() ([]string, error) {
	if err := kr.checkOpen(); err != nil {
		return nil, err
	}
	return kr.store.List()
}

// DeleteKey removes a key. The cache is invalidated before the store so a
// failed store delete never leaves a stale signer behind. The store delete
// runs under the write lock so addToCache sees it complete.
func (kr *defaultKeyring) DeleteKey(name string) error {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return err
	}

	kr.mu.Lock()
	defer kr.mu.Unlock()
	if kr.closed {
		return ErrKeyringClosed
	}
	kr.deletes.Add(1)
	if kr.cache != nil {
		kr.cache.Remove(normalized)
	}
	if err := kr.store.Delete(normalized); err != nil {
		return err
	}
	kr.logger.Info("deleted key", "name", normalized)
	return nil
}

// Sign signs message with the named key.
// The read lock is held for the whole signature so Close cannot zeroize the
// signer underneath it.
func (kr *defaultKeyring) Sign(name string, message []byte) (crypto.Signature, error) {
	if len(message) > MaxSignDataLength {
		return nil, ErrDataTooLarge
	}
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return nil, err
	}

	kr.mu.RLock()
	defer kr.mu.RUnlock()
	if kr.closed {
		return nil, ErrKeyringClosed
	}

	if signer, ok := kr.cached(normalized); ok {
		return signer.Sign(message)
	}

	// Caching needs the write lock, so sign with a throwaway signer and let
	// the next GetKey populate the cache.
	signer, err := kr.load(normalized)
	if err != nil {
		return nil, err
	}
	defer signer.Zeroize()
	return signer.Sign(message)
}

// Verify checks sig against the named public key.
func (kr *defaultKeyring) Verify(name string, message []byte, sig crypto.Signature) (bool, error) {
	pub, err := kr.PublicKey(name)
	if err != nil {
		return false, err
	}
	return pub.Verify(message, sig)
}

// Close zeroizes cached signers and closes the store.
func (kr *defaultKeyring) Close() error {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	if kr.closed {
		return nil
	}
	kr.closed = true
	if kr.cache != nil {
		kr.cache.Purge()
	}
	return kr.store.Close()
}

func (kr *defaultKeyring) checkOpen() error {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	if kr.closed {
		return ErrKeyringClosed
	}
	return nil
}

// cached looks name up and marks it recently used. Must be called with mu
// held; the LRU has its own lock for the recency update.
func (kr *defaultKeyring) cached(name string) (*crypto.BasicSigner, bool) {
	if kr.cache == nil {
		return nil, false
	}
	return kr.cache.Get(name)
}

// load builds a fresh signer from the stored entry.
func (kr *defaultKeyring) load(name string) (*crypto.BasicSigner, error) {
	entry, err := kr.store.Load(name)
	if err != nil {
		return nil, err
	}
	defer entry.Wipe()

	sk, err := entry.SecretKeyObject()
	if err != nil {
		return nil, err
	}
	return crypto.NewSigner(sk), nil
}

// addToCache caches signer and returns the signer callers should use. If
// another goroutine cached name first, signer is zeroized and the existing
// one is returned. gen is the delete count observed before signer was built;
// if a DeleteKey ran since, the store is consulted again and a signer for a
// deleted or replaced key is zeroized and refused with ErrKeyNotFound.
func (kr *defaultKeyring) addToCache(name string, signer *crypto.BasicSigner, gen uint64) (crypto.Signer, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	if kr.closed {
		return signer, nil
	}
	if kr.deletes.Load() != gen {
		if err := kr.stillStored(name, signer); err != nil {
			signer.Zeroize()
			return nil, err
		}
	}
	if kr.cache == nil {
		return signer, nil
	}
	if existing, ok := kr.cache.Get(name); ok {
		signer.Zeroize()
		return existing, nil
	}
	kr.cache.Add(name, signer)
	return signer, nil
}

// stillStored checks that the store still holds signer's key under name.
// Must be called with mu held for writing.
func (kr *defaultKeyring) stillStored(name string, signer *crypto.BasicSigner) error {
	entry, err := kr.store.Load(name)
	if err != nil {
		return err
	}
	defer entry.Wipe()

	pub, err := entry.PublicKeyObject()
	if err != nil {
		return err
	}
	if !pub.Equal(signer.PublicKey()) {
		return fmt.Errorf("%w: %q was replaced", ErrKeyNotFound, name)
	}
	return nil
}

var _ Keyring = (*defaultKeyring)(nil)
