package keystore

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of entries CachingKeyStore keeps when no
// positive capacity is given.
const DefaultCacheSize = 100

// CachingKeyStore wraps a KeyStore with a read-through, write-through LRU
// cache. Use it in front of slow backends (keychain IPC, PBKDF2 on every
// file load).
//
// Cached entries are wiped when evicted, invalidated, or when the store is
// closed. Callers always receive copies.
type CachingKeyStore struct {
	backend  KeyStore
	capacity int
	cache    *lru.Cache[string, Entry]

	hits   atomic.Uint64
	misses atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewCachingKeyStore creates a caching layer over backend holding up to
// capacity entries.
func NewCachingKeyStore(backend KeyStore, capacity int) (*CachingKeyStore, error) {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	cache, err := lru.NewWithEvict(capacity, func(_ string, e Entry) {
		e.Wipe()
	})
	if err != nil {
		return nil, err
	}
	return &CachingKeyStore{
		backend:  backend,
		capacity: capacity,
		cache:    cache,
	}, nil
}

// Load returns the cached entry or loads it from the backend.
// Complexity: O(1) on hit; backend cost on miss.
func (c *CachingKeyStore) Load(name string) (Entry, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return Entry{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return Entry{}, ErrKeyStoreClosed
	}

	if entry, ok := c.cache.Get(normalized); ok {
		c.hits.Add(1)
		return entry.Clone(), nil
	}
	c.misses.Add(1)

	entry, err := c.backend.Load(normalized)
	if err != nil {
		return Entry{}, err
	}
	c.cache.Add(normalized, entry.Clone())
	return entry, nil
}

// Store writes through to the backend, then caches the entry.
func (c *CachingKeyStore) Store(name string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrKeyStoreClosed
	}

	if err := c.backend.Store(name, entry); err != nil {
		return err
	}
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return err
	}
	cached := entry.Clone()
	cached.Name = normalized
	c.cache.Add(normalized, cached)
	return nil
}

// Delete invalidates the cached entry and deletes from the backend.
func (c *CachingKeyStore) Delete(name string) error {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return err
	}

	// Exclusive so an in-flight Load cannot re-cache the deleted entry.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrKeyStoreClosed
	}

	c.cache.Remove(normalized)
	return c.backend.Delete(normalized)
}

// List delegates to the backend.
func (c *CachingKeyStore) List() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrKeyStoreClosed
	}
	return c.backend.List()
}

// Has answers from the cache when possible.
func (c *CachingKeyStore) Has(name string) (bool, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, ErrKeyStoreClosed
	}
	if c.cache.Contains(normalized) {
		return true, nil
	}
	return c.backend.Has(normalized)
}

// Close wipes every cached entry and closes the backend.
// Safe to call multiple times; subsequent calls are no-ops.
func (c *CachingKeyStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cache.Purge()
	return c.backend.Close()
}

// Stats returns cache statistics.
func (c *CachingKeyStore) Stats() (hits, misses uint64, hitRate float64) {
	hits = c.hits.Load()
	misses = c.misses.Load()
	total := hits + misses
	if total == 0 {
		return hits, misses, 0.0
	}
	return hits, misses, float64(hits) / float64(total)
}

// Len returns the number of cached entries.
func (c *CachingKeyStore) Len() int {
	return c.cache.Len()
}

// Capacity returns the maximum number of cached entries.
func (c *CachingKeyStore) Capacity() int {
	return c.capacity
}

// Invalidate drops name from the cache without touching the backend.
func (c *CachingKeyStore) Invalidate(name string) {
	if normalized, err := NormalizeKeyName(name); err == nil {
		c.cache.Remove(normalized)
	}
}

// InvalidateAll drops every cached entry.
func (c *CachingKeyStore) InvalidateAll() {
	c.cache.Purge()
}

var _ KeyStore = (*CachingKeyStore)(nil)
