package keystore

import (
	"fmt"
	"sync"

	"cosmossdk.io/log"
	dbm "github.com/cosmos/cosmos-db"
	ics23 "github.com/cosmos/ics23/go"
	"github.com/cosmos/iavl"

	"github.com/blockberries/jwcrypto/crypto"
)

// directoryKeyPrefix namespaces public keys inside the tree.
const directoryKeyPrefix = "pk/"

// Directory is an authenticated directory of public keys backed by an IAVL
// tree. Each Commit produces a root hash; Prove returns an ICS-23 membership
// proof that a name maps to a serialized public key under that root, which
// anyone holding the root can check with VerifyDirectoryProof.
//
// Directory holds public keys only. Thread-safe via RWMutex.
type Directory struct {
	mu      sync.RWMutex
	tree    *iavl.MutableTree
	logger  log.Logger
	root    []byte
	version int64
	closed  bool
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*directoryConfig)

type directoryConfig struct {
	logger    log.Logger
	cacheSize int
}

// WithDirectoryLogger sets the logger passed to the IAVL tree and used for
// commit logging. Defaults to a no-op logger.
func WithDirectoryLogger(logger log.Logger) DirectoryOption {
	return func(c *directoryConfig) {
		c.logger = logger
	}
}

// WithDirectoryCacheSize sets the IAVL node cache size.
func WithDirectoryCacheSize(size int) DirectoryOption {
	return func(c *directoryConfig) {
		c.cacheSize = size
	}
}

// NewDirectory opens a directory on db, loading the latest committed version
// if there is one.
func NewDirectory(db dbm.DB, opts ...DirectoryOption) (*Directory, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	cfg := directoryConfig{logger: log.NewNopLogger(), cacheSize: 1000}
	for _, opt := range opts {
		opt(&cfg)
	}

	tree := iavl.NewMutableTree(db, cfg.cacheSize, false, cfg.logger)
	version, err := tree.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree: %w", err)
	}

	d := &Directory{
		tree:    tree,
		logger:  cfg.logger,
		version: version,
	}
	if version > 0 {
		d.root = tree.Hash()
	}
	return d, nil
}

// Register adds a public key under name. The change is visible to Lookup
// immediately and becomes provable after the next Commit.
// Returns ErrKeyExists if name is already registered.
func (d *Directory) Register(name string, pub crypto.PublicKey) error {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDirectoryClosed
	}

	key := directoryKey(normalized)
	has, err := d.tree.Has(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyStoreIO, err)
	}
	if has {
		return ErrKeyExists
	}
	if _, err := d.tree.Set(key, []byte(pub.Serialize())); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyStoreIO, err)
	}
	return nil
}

// Lookup returns the public key registered under name, including
// registrations not yet committed.
func (d *Directory) Lookup(name string) (crypto.PublicKey, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDirectoryClosed
	}

	value, err := d.tree.Get(directoryKey(normalized))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreIO, err)
	}
	if value == nil {
		return nil, ErrKeyNotFound
	}
	pub, err := crypto.DeserializePublicKey(string(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidEntry, normalized, err)
	}
	return pub, nil
}

// Names returns every registered name in ascending order.
func (d *Directory) Names() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDirectoryClosed
	}

	start := []byte(directoryKeyPrefix)
	end := prefixEnd(start)
	iter, err := d.tree.Iterator(start, end, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreIO, err)
	}
	defer iter.Close()

	var names []string
	for ; iter.Valid(); iter.Next() {
		names = append(names, string(iter.Key()[len(directoryKeyPrefix):]))
	}
	return names, nil
}

// Commit saves the pending registrations as a new version and returns the
// root hash and version number.
func (d *Directory) Commit() ([]byte, int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, 0, ErrDirectoryClosed
	}

	hash, version, err := d.tree.SaveVersion()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to save version: %w", err)
	}
	d.root = append([]byte(nil), hash...)
	d.version = version
	d.logger.Info("committed key directory", "version", version, "root", fmt.Sprintf("%X", hash))
	return append([]byte(nil), hash...), version, nil
}

// Root returns the root hash of the latest committed version, or nil before
// the first commit.
func (d *Directory) Root() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]byte(nil), d.root...)
}

// Version returns the latest committed version, or zero before the first commit.
func (d *Directory) Version() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Prove returns a membership proof for name at the latest committed version.
// Returns ErrNotCommitted before the first commit and ErrKeyNotFound if name
// was not registered in that version.
func (d *Directory) Prove(name string) (*ics23.CommitmentProof, error) {
	normalized, err := NormalizeKeyName(name)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDirectoryClosed
	}
	if d.version == 0 {
		return nil, ErrNotCommitted
	}

	proof, err := d.tree.GetVersionedProof(directoryKey(normalized), d.version)
	if err != nil {
		return nil, fmt.Errorf("failed to get proof: %w", err)
	}
	if proof.GetExist() == nil {
		return nil, ErrKeyNotFound
	}
	return proof, nil
}

// Close marks the directory closed. The underlying database is owned by the
// caller.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// VerifyDirectoryProof checks that proof shows name mapping to the serialized
// public key under root.
func VerifyDirectoryProof(root []byte, name string, serializedPublicKey string, proof *ics23.CommitmentProof) bool {
	normalized, err := NormalizeKeyName(name)
	if err != nil || proof == nil {
		return false
	}
	return ics23.VerifyMembership(ics23.IavlSpec, root, proof, directoryKey(normalized), []byte(serializedPublicKey))
}

func directoryKey(name string) []byte {
	return []byte(directoryKeyPrefix + name)
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
