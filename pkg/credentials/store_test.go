package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Christopher-Schulze/googlepicz/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStoreSeededFromEnv(t *testing.T) {
	t.Setenv("MOCK_KEYRING", "1")
	t.Setenv("MOCK_ACCESS_TOKEN", "key_token")
	t.Setenv("MOCK_REFRESH_TOKEN", "key_refresh")

	store := Default()

	tok, err := store.Load(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "key_token", tok)

	tok, err = store.Load(KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "key_refresh", tok)

	_, err = store.Load(KeyTokenExpiry)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockStoreRoundTrip(t *testing.T) {
	t.Setenv("MOCK_KEYRING", "1")

	store := Default()
	require.NoError(t, store.Store(KeyAccessToken, "abc"))

	tok, err := store.Load(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	require.NoError(t, store.Clear(KeyAccessToken))
	_, err = store.Load(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackToFileStoreWhenKeyringFails(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("MOCK_KEYRING_FAIL", "1")
	ResetFallback()
	t.Cleanup(ResetFallback)

	store := Default()
	require.NoError(t, store.Store(KeyAccessToken, "file_token"))
	require.NoError(t, store.Store(KeyRefreshToken, "file_refresh"))

	// The fallback file exists with restrictive permissions.
	path := filepath.Join(dir, config.CacheDirName, config.TokensFileName)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// The session flag is visible to child processes.
	assert.Equal(t, "1", os.Getenv(UseFileStoreEnv))

	// Reads follow the flag to the file store.
	tok, err := store.Load(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "file_token", tok)

	tok, err = store.Load(KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "file_refresh", tok)
}

func TestFileStoreClearMissingEntry(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	fs := newFileStore()
	assert.NoError(t, fs.Clear("nope"))

	_, err := fs.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackendErrorWrapping(t *testing.T) {
	err := &BackendError{Op: "set", Err: errKeyringUnavailable}
	assert.ErrorIs(t, err, errKeyringUnavailable)
	assert.Contains(t, err.Error(), "set")
}
