package flatstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every item in a single JSON object file.
// Each mutation rewrites the whole file through a temporary file and rename,
// so a failed write never leaves a half-written store behind.
type FileStore struct {
	mu    sync.Mutex
	path  string
	quota int64
	items map[string]string
}

// OpenFileStore loads the store at path, creating an empty one if the file does not exist.
func OpenFileStore(path string, quota int64) (*FileStore, error) {
	s := &FileStore{
		path:  path,
		quota: quota,
		items: make(map[string]string),
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read flat store %s: %w", path, err)
	}
	if len(content) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(content, &s.items); err != nil {
		return nil, fmt.Errorf("decode flat store %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStore) GetItem(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *FileStore) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkQuota(s.items, s.quota, key, value); err != nil {
		return err
	}

	next := make(map[string]string, len(s.items)+1)
	for k, v := range s.items {
		next[k] = v
	}
	next[key] = value
	if err := s.persist(next); err != nil {
		return err
	}
	s.items = next
	return nil
}

func (s *FileStore) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return nil
	}
	next := make(map[string]string, len(s.items))
	for k, v := range s.items {
		if k != key {
			next[k] = v
		}
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.items = next
	return nil
}

func (s *FileStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.items), nil
}

func (s *FileStore) Usage() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return usage(s.items), nil
}

func (s *FileStore) Quota() int64 {
	return s.quota
}

// Path returns the file backing the store.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) persist(items map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create flat store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary flat store file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	encoder := json.NewEncoder(tmp)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(items); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode flat store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync flat store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temporary flat store file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace flat store %s: %w", s.path, err)
	}
	return nil
}
