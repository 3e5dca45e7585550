package keystore

import "errors"

// KeyStore errors
var (
	// ErrKeyNotFound is returned when a key is not found in the store.
	ErrKeyNotFound = errors.New("key not found in store")

	// ErrKeyExists is returned when attempting to store a key that already exists.
	ErrKeyExists = errors.New("key already exists in store")

	// ErrKeyStoreIO is returned when an I/O error occurs during store operations.
	ErrKeyStoreIO = errors.New("key store I/O error")

	// ErrInvalidKeyName is returned when a key name fails validation.
	ErrInvalidKeyName = errors.New("invalid key name")

	// ErrInvalidEntry is returned when an entry is incomplete or its keys do
	// not decode.
	ErrInvalidEntry = errors.New("invalid key entry")

	// ErrKeyNameMismatch is returned when the name parameter differs from Entry.Name.
	ErrKeyNameMismatch = errors.New("key name parameter does not match Entry.Name")

	// ErrInvalidPassword is returned when decryption fails due to wrong password.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrKeyStoreClosed is returned when operations are attempted on a closed store.
	ErrKeyStoreClosed = errors.New("key store is closed")

	// ErrKeychainUnavailable is returned when the OS keychain cannot be accessed.
	// Common causes:
	//   - Linux: D-Bus not running, or no secret service daemon (gnome-keyring, ksecretservice)
	//   - Headless environments: No GUI session for authentication prompts
	ErrKeychainUnavailable = errors.New("keychain unavailable")
)

// Keyring errors
var (
	// ErrDataTooLarge is returned when a message exceeds MaxSignDataLength.
	ErrDataTooLarge = errors.New("data exceeds maximum sign length")

	// ErrKeyringClosed is returned when operations are attempted on a closed keyring.
	ErrKeyringClosed = errors.New("keyring is closed")

	// ErrNoSecretKey is returned when a signing operation finds only a public key.
	ErrNoSecretKey = errors.New("entry has no secret key")
)

// Directory errors
var (
	// ErrDirectoryClosed is returned when operations are attempted on a closed directory.
	ErrDirectoryClosed = errors.New("directory is closed")

	// ErrNotCommitted is returned when a proof is requested before the first commit.
	ErrNotCommitted = errors.New("directory has no committed version")
)
