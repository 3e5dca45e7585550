package keystore

import (
	"sort"
	"sync"
)

// MemoryKeyStore keeps entries in process memory. Entries are deep-copied
// on the way in and out, and secret keys are wiped on Delete and Close.
// Thread-safe via RWMutex.
type MemoryKeyStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	closed  bool
}

// NewMemoryKeyStore creates an empty in-memory store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		entries: make(map[string]Entry),
	}
}

// Store saves a copy of entry.
// Complexity: O(n) where n is the entry size.
func (ms *MemoryKeyStore) Store(name string, entry Entry) error {
	normalized, err := entry.validate(name)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return ErrKeyStoreClosed
	}
	if _, ok := ms.entries[normalized]; ok {
		return ErrKeyExists
	}

	stored := entry.Clone()
	stored.Name = normalized
	ms.entries[normalized] = stored
	return nil
}

// Load returns a copy of the entry stored under name.
func (ms *MemoryKeyStore) Load(name string) (Entry, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return Entry{}, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return Entry{}, ErrKeyStoreClosed
	}
	entry, ok := ms.entries[normalized]
	if !ok {
		return Entry{}, ErrKeyNotFound
	}
	return entry.Clone(), nil
}

// Delete removes the entry and wipes its secret key.
func (ms *MemoryKeyStore) Delete(name string) error {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return ErrKeyStoreClosed
	}
	entry, ok := ms.entries[normalized]
	if !ok {
		return ErrKeyNotFound
	}
	entry.Wipe()
	delete(ms.entries, normalized)
	return nil
}

// List returns all key names in sorted order.
func (ms *MemoryKeyStore) List() ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return nil, ErrKeyStoreClosed
	}
	names := make([]string, 0, len(ms.entries))
	for name := range ms.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Has reports whether name is stored.
func (ms *MemoryKeyStore) Has(name string) (bool, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return false, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return false, ErrKeyStoreClosed
	}
	_, ok := ms.entries[normalized]
	return ok, nil
}

// Close wipes every secret key and marks the store closed.
// Safe to call multiple times; subsequent calls are no-ops.
func (ms *MemoryKeyStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return nil
	}
	ms.closed = true
	for name, entry := range ms.entries {
		entry.Wipe()
		delete(ms.entries, name)
	}
	return nil
}

var _ KeyStore = (*MemoryKeyStore)(nil)
