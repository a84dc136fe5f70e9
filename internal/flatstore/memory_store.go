package flatstore

import "sync"

// MemoryStore is an in-memory Store with the same quota accounting as FileStore.
type MemoryStore struct {
	mu    sync.Mutex
	quota int64
	items map[string]string
}

// NewMemoryStore returns an empty store. A quota of 0 disables the ceiling.
func NewMemoryStore(quota int64) *MemoryStore {
	return &MemoryStore{
		quota: quota,
		items: make(map[string]string),
	}
}

func (s *MemoryStore) GetItem(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *MemoryStore) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkQuota(s.items, s.quota, key, value); err != nil {
		return err
	}
	s.items[key] = value
	return nil
}

func (s *MemoryStore) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.items), nil
}

func (s *MemoryStore) Usage() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return usage(s.items), nil
}

func (s *MemoryStore) Quota() int64 {
	return s.quota
}

// SetQuota changes the ceiling; existing items are kept even if they exceed it.
func (s *MemoryStore) SetQuota(quota int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quota = quota
}

// Snapshot returns a copy of every item.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}
