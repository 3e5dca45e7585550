package keystore

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how often the backend is asked to load.
type countingStore struct {
	KeyStore
	loads atomic.Int32
}

func (c *countingStore) Load(name string) (Entry, error) {
	c.loads.Add(1)
	return c.KeyStore.Load(name)
}

func newCountingCache(t *testing.T, capacity int) (*CachingKeyStore, *countingStore) {
	t.Helper()
	backend := &countingStore{KeyStore: NewMemoryKeyStore()}
	cache, err := NewCachingKeyStore(backend, capacity)
	require.NoError(t, err)
	return cache, backend
}

func TestCachingKeyStore(t *testing.T) {
	testKeyStore(t, func(t *testing.T) KeyStore {
		cache, err := NewCachingKeyStore(NewMemoryKeyStore(), 4)
		require.NoError(t, err)
		return cache
	})
}

func TestCachingKeyStoreDefaultCapacity(t *testing.T) {
	cache, err := NewCachingKeyStore(NewMemoryKeyStore(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheSize, cache.Capacity())
}

func TestCachingKeyStoreReadThrough(t *testing.T) {
	cache, backend := newCountingCache(t, 4)
	defer cache.Close()

	// Entries stored directly in the backend are loaded once, then served
	// from the cache.
	require.NoError(t, backend.Store("alice", newESEntry(t, "alice")))
	for i := 0; i < 3; i++ {
		_, err := cache.Load("alice")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), backend.loads.Load())

	hits, misses, rate := cache.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)
}

func TestCachingKeyStoreWriteThrough(t *testing.T) {
	cache, backend := newCountingCache(t, 4)
	defer cache.Close()

	require.NoError(t, cache.Store("alice", newESEntry(t, "alice")))
	has, err := backend.Has("alice")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = cache.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, int32(0), backend.loads.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestCachingKeyStoreReturnsCopies(t *testing.T) {
	cache, _ := newCountingCache(t, 4)
	defer cache.Close()

	require.NoError(t, cache.Store("alice", newESEntry(t, "alice")))
	first, err := cache.Load("alice")
	require.NoError(t, err)
	first.Wipe()

	second, err := cache.Load("alice")
	require.NoError(t, err)
	_, err = second.SecretKeyObject()
	assert.NoError(t, err)
}

func TestCachingKeyStoreEviction(t *testing.T) {
	cache, backend := newCountingCache(t, 2)
	defer cache.Close()

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Store(name, newESEntry(t, name)))
	}
	assert.Equal(t, 2, cache.Len())

	// "a" was evicted and has to come from the backend.
	_, err := cache.Load("a")
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.loads.Load())
}

func TestCachingKeyStoreEvictionWipes(t *testing.T) {
	cache, _ := newCountingCache(t, 1)
	defer cache.Close()

	require.NoError(t, cache.Store("a", newESEntry(t, "a")))
	cached, ok := cache.cache.Peek("a")
	require.True(t, ok)
	backing := cached.SecretKey

	require.NoError(t, cache.Store("b", newESEntry(t, "b")))
	for _, b := range backing {
		assert.Zero(t, b)
	}
}

func TestCachingKeyStoreDeleteInvalidates(t *testing.T) {
	cache, backend := newCountingCache(t, 4)
	defer cache.Close()

	require.NoError(t, cache.Store("alice", newESEntry(t, "alice")))
	require.NoError(t, cache.Delete("alice"))
	assert.Equal(t, 0, cache.Len())

	has, err := cache.Has("alice")
	require.NoError(t, err)
	assert.False(t, has)
	has, err = backend.Has("alice")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCachingKeyStoreInvalidate(t *testing.T) {
	cache, backend := newCountingCache(t, 4)
	defer cache.Close()

	require.NoError(t, cache.Store("alice", newESEntry(t, "alice")))
	require.NoError(t, cache.Store("bob", newESEntry(t, "bob")))

	cache.Invalidate("alice")
	assert.Equal(t, 1, cache.Len())
	_, err := cache.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.loads.Load())

	cache.Invalidate("../bad") // ignored
	cache.InvalidateAll()
	assert.Equal(t, 0, cache.Len())

	// Invalidation never touches the backend.
	names, err := cache.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestCachingKeyStoreBackendErrors(t *testing.T) {
	cache, _ := newCountingCache(t, 4)
	defer cache.Close()

	_, err := cache.Load("nobody")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, 0, cache.Len())

	require.NoError(t, cache.Store("alice", newESEntry(t, "alice")))
	err = cache.Store("alice", newESEntry(t, "alice"))
	assert.True(t, errors.Is(err, ErrKeyExists))
}

func TestCachingKeyStoreCloseClosesBackend(t *testing.T) {
	cache, backend := newCountingCache(t, 4)
	require.NoError(t, cache.Store("alice", newESEntry(t, "alice")))
	require.NoError(t, cache.Close())

	assert.Equal(t, 0, cache.Len())
	_, err := backend.List()
	assert.ErrorIs(t, err, ErrKeyStoreClosed)
}

func BenchmarkCachingKeyStoreLoad(b *testing.B) {
	backend, err := NewFileKeyStore(b.TempDir(), testPassword)
	require.NoError(b, err)
	cache, err := NewCachingKeyStore(backend, 8)
	require.NoError(b, err)
	defer cache.Close()
	require.NoError(b, cache.Store("alice", newESEntry(b, "alice")))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		entry, err := cache.Load("alice")
		if err != nil {
			b.Fatal(err)
		}
		entry.Wipe()
	}
}
