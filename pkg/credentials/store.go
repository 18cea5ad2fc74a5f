// Package credentials provides durable token storage with an OS keychain
// backend and a file fallback. The keychain is tried first; the first write
// failure flips a process-wide flag and all subsequent operations go to the
// file store instead.
package credentials

import (
	"errors"
	"fmt"
	"os"

	"github.com/Christopher-Schulze/googlepicz/config"
	"github.com/Christopher-Schulze/googlepicz/util"
	"github.com/Christopher-Schulze/googlepicz/util/log"
	"github.com/zalando/go-keyring"
)

// Well-known entry keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenExpiry  = "token_expiry"
)

// UseFileStoreEnv is set to "1" once the session has fallen back to the file
// store, so child processes skip the keychain probe.
const UseFileStoreEnv = "USE_FILE_STORE"

// Test hooks recognized by Default.
const (
	mockKeyringEnv      = "MOCK_KEYRING"
	mockKeyringFailEnv  = "MOCK_KEYRING_FAIL"
	mockAccessTokenEnv  = "MOCK_ACCESS_TOKEN"
	mockRefreshTokenEnv = "MOCK_REFRESH_TOKEN"
)

// ErrNotFound is returned by Load when no entry exists for the key. Optional
// reads treat it as absence, not failure.
var ErrNotFound = errors.New("credentials: entry not found")

// BackendError reports a failure of the underlying storage backend.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("credentials backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Store is the token storage abstraction shared by the auth service and the
// supervisor tasks.
type Store interface {
	// Store persists secret under key.
	Store(key, secret string) error
	// Load returns the secret for key, or ErrNotFound.
	Load(key string) (string, error)
	// Clear removes the entry for key. Clearing a missing entry is not an
	// error.
	Clear(key string) error
}

// fileStoreActive is the process-wide fallback flag: set once on the first
// keychain write failure, read on every subsequent operation.
var fileStoreActive = util.NewSafeFlag()

// Default returns the store for this process, honoring the MOCK_KEYRING*
// test hooks: MOCK_KEYRING selects the in-memory mock seeded from
// MOCK_ACCESS_TOKEN / MOCK_REFRESH_TOKEN, MOCK_KEYRING_FAIL selects a
// keychain whose writes always fail so the file fallback engages.
func Default() Store {
	if os.Getenv(mockKeyringEnv) != "" {
		return newMockStore()
	}
	if os.Getenv(UseFileStoreEnv) == "1" {
		fileStoreActive.Set(true)
	}
	var primary Store = &keyringStore{}
	if os.Getenv(mockKeyringFailEnv) != "" {
		primary = failingStore{}
	}
	return &fallbackStore{
		keychain: primary,
		file:     newFileStore(),
	}
}

// ResetFallback clears the process-wide fallback flag. Test helper.
func ResetFallback() {
	fileStoreActive.Set(false)
	os.Unsetenv(UseFileStoreEnv)
}

// keyringStore stores secrets in the OS keychain under the application
// service name.
type keyringStore struct{}

func (keyringStore) Store(key, secret string) error {
	if err := keyring.Set(config.KeyringService, key, secret); err != nil {
		return &BackendError{Op: "set", Err: err}
	}
	return nil
}

func (keyringStore) Load(key string) (string, error) {
	secret, err := keyring.Get(config.KeyringService, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", &BackendError{Op: "get", Err: err}
	}
	return secret, nil
}

func (keyringStore) Clear(key string) error {
	err := keyring.Delete(config.KeyringService, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return &BackendError{Op: "delete", Err: err}
	}
	return nil
}

// failingStore simulates a broken keychain (MOCK_KEYRING_FAIL).
type failingStore struct{}

var errKeyringUnavailable = errors.New("keyring unavailable")

func (failingStore) Store(string, string) error {
	return &BackendError{Op: "set", Err: errKeyringUnavailable}
}

func (failingStore) Load(string) (string, error) {
	return "", &BackendError{Op: "get", Err: errKeyringUnavailable}
}

func (failingStore) Clear(string) error {
	return &BackendError{Op: "delete", Err: errKeyringUnavailable}
}

// fallbackStore tries the keychain first and permanently switches the
// session to the file store when a keychain write fails.
type fallbackStore struct {
	keychain Store
	file     Store
}

func (s *fallbackStore) activateFileStore(cause error) {
	if !fileStoreActive.Value() {
		log.Printf("Keychain unavailable (%v); falling back to file store for this session", cause)
	}
	fileStoreActive.Set(true)
	os.Setenv(UseFileStoreEnv, "1")
}

func (s *fallbackStore) Store(key, secret string) error {
	if !fileStoreActive.Value() {
		err := s.keychain.Store(key, secret)
		if err == nil {
			return nil
		}
		s.activateFileStore(err)
	}
	return s.file.Store(key, secret)
}

func (s *fallbackStore) Load(key string) (string, error) {
	if fileStoreActive.Value() {
		return s.file.Load(key)
	}
	return s.keychain.Load(key)
}

func (s *fallbackStore) Clear(key string) error {
	if fileStoreActive.Value() {
		return s.file.Clear(key)
	}
	return s.keychain.Clear(key)
}
