package engine

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultQuota bounds keys plus values. It holds a full 50 MiB file archive
// after base64 expansion (about 67 MiB) with room for the message log.
const DefaultQuota int64 = 80 << 20

// Persister mirrors every committed write to durable storage.
type Persister interface {
	LoadAll() (map[string]string, error)
	SaveKey(key, val string) error
	DeleteKey(key string) error
}

// MemStore is the thread-safe in-memory store.
// Writes go through the persister before they become visible.
type MemStore struct {
	mu        sync.RWMutex
	data      map[string]string
	used      int64
	quota     int64
	persister Persister
}

// NewMemStore initializes a store.
// It accepts existing data (from LoadAll) and a persister; both may be nil.
func NewMemStore(initialData map[string]string, p Persister) *MemStore {
	data := make(map[string]string, len(initialData))
	var used int64
	for k, v := range initialData {
		data[k] = v
		used += entrySize(k, v)
	}
	return &MemStore{
		data:      data,
		used:      used,
		quota:     DefaultQuota,
		persister: p,
	}
}

// SetQuota sets the byte budget for keys plus values. Zero disables the limit.
func (m *MemStore) SetQuota(quota int64) {
	m.mu.Lock()
	m.quota = quota
	m.mu.Unlock()
}

// Used reports how many bytes the stored keys and values occupy.
func (m *MemStore) Used() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

func (m *MemStore) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return val, nil
}

func (m *MemStore) Set(key, val string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.used + entrySize(key, val)
	if old, ok := m.data[key]; ok {
		next -= entrySize(key, old)
	}
	if m.quota > 0 && next > m.quota {
		return fmt.Errorf("set %s: %w (%d of %d bytes)", key, ErrStorageFull, next, m.quota)
	}

	if m.persister != nil {
		if err := m.persister.SaveKey(key, val); err != nil {
			return fmt.Errorf("persist %s: %w", key, err)
		}
	}

	m.data[key] = val
	m.used = next
	return nil
}

func (m *MemStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.data[key]
	if !ok {
		return nil
	}

	if m.persister != nil {
		if err := m.persister.DeleteKey(key); err != nil {
			return fmt.Errorf("persist delete %s: %w", key, err)
		}
	}

	delete(m.data, key)
	m.used -= entrySize(key, old)
	return nil
}

func (m *MemStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.data))
	for k := range m.data {
		list = append(list, k)
	}
	sort.Strings(list)
	return list, nil
}

func entrySize(key, val string) int64 {
	return int64(len(key) + len(val))
}
