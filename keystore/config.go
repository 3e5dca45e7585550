package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Backend names a KeyStore implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendKeychain Backend = "keychain"
)

// Config selects and configures a KeyStore backend for Open.
//
// Example:
//
//	{"backend": "file", "dir": "/var/lib/app/keys", "cache_size": 64}
//
// Password is never read from JSON; set it from a secret source after loading.
type Config struct {
	Backend   Backend `json:"backend"`
	Dir       string  `json:"dir,omitempty"`
	Password  string  `json:"-"`
	Service   string  `json:"service,omitempty"`
	CacheSize int     `json:"cache_size,omitempty"`
}

// LoadConfigFile reads a JSON Config from path. The result still needs a
// Password for the file backend, so it is not validated here.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("keystore: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("keystore: parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the fields the selected backend needs are present.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Dir == "" {
			return errors.New("keystore: file backend requires dir")
		}
		if c.Password == "" {
			return errors.New("keystore: file backend requires password")
		}
	case BackendKeychain:
		if c.Service == "" {
			return errors.New("keystore: keychain backend requires service")
		}
	case "":
		return errors.New("keystore: backend is required")
	default:
		return fmt.Errorf("keystore: unknown backend %q", c.Backend)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("keystore: cache_size must not be negative, got %d", c.CacheSize)
	}
	return nil
}

// Open builds the configured backend, wrapped in a CachingKeyStore when
// CacheSize is positive.
func Open(cfg Config) (KeyStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store KeyStore
		err   error
	)
	switch cfg.Backend {
	case BackendMemory:
		store = NewMemoryKeyStore()
	case BackendFile:
		store, err = NewFileKeyStore(cfg.Dir, cfg.Password)
	case BackendKeychain:
		store, err = NewKeychainStore(cfg.Service)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize == 0 {
		return store, nil
	}
	cached, err := NewCachingKeyStore(store, cfg.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return cached, nil
}
