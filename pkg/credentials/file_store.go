package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/Christopher-Schulze/googlepicz/config"
)

// fileStore keeps secrets in a JSON document under the user's cache
// directory, created with restrictive permissions. It is the fallback for
// sessions without a usable OS keychain.
type fileStore struct {
	mu   sync.Mutex
	path string
}

func newFileStore() *fileStore {
	return &fileStore{path: filepath.Join(config.CacheDir(), config.TokensFileName)}
}

func (s *fileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, &BackendError{Op: "read", Err: err}
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &BackendError{Op: "decode", Err: err}
	}
	return entries, nil
}

func (s *fileStore) write(entries map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return &BackendError{Op: "mkdir", Err: err}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return &BackendError{Op: "encode", Err: err}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return &BackendError{Op: "write", Err: err}
	}
	return nil
}

func (s *fileStore) Store(key, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return err
	}
	entries[key] = secret
	return s.write(entries)
}

func (s *fileStore) Load(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return "", err
	}
	secret, ok := entries[key]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (s *fileStore) Clear(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return s.write(entries)
}
