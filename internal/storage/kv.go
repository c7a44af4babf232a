package storage

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/kimhsiao/mdreader/core/internal/logging"
)

// KVStore is a small durable key/value store for session state (current
// workspace, cursor positions, feature flags). When the backing file cannot
// be written (quota exceeded, restricted profile) it degrades to an
// in-memory map for the rest of the session instead of surfacing errors;
// offline-first editing must keep working.
type KVStore struct {
	path     string
	mu       sync.Mutex
	items    map[string]string
	degraded bool
	loaded   bool
}

// NewKVStore creates a KVStore backed by the given file path.
func NewKVStore(path string) *KVStore {
	return &KVStore{
		path:  path,
		items: make(map[string]string),
	}
}

// Degraded reports whether the store has fallen back to memory.
func (s *KVStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *KVStore) loadLocked() {
	if s.loaded || s.degraded {
		return
	}
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var items map[string]string
	if err := json.Unmarshal(data, &items); err != nil {
		logging.Warn("kv store file corrupt, starting empty",
			map[string]interface{}{"path": s.path})
		return
	}
	s.items = items
}

// GetItem returns the value for key and whether it was present.
func (s *KVStore) GetItem(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked()
	value, ok := s.items[key]
	return value, ok
}

// SetItem stores a value. Persistence failures switch the store to the
// in-memory fallback; the value is kept for the session either way.
func (s *KVStore) SetItem(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked()
	s.items[key] = value

	if s.degraded {
		return
	}
	if err := s.persistLocked(); err != nil {
		s.degraded = true
		logging.Warn("local storage unavailable, falling back to memory",
			map[string]interface{}{"path": s.path, "error": err.Error()})
	}
}

// RemoveItem deletes a key.
func (s *KVStore) RemoveItem(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked()
	delete(s.items, key)

	if s.degraded {
		return
	}
	if err := s.persistLocked(); err != nil {
		s.degraded = true
		logging.Warn("local storage unavailable, falling back to memory",
			map[string]interface{}{"path": s.path, "error": err.Error()})
	}
}

func (s *KVStore) persistLocked() error {
	data, err := json.Marshal(s.items)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
