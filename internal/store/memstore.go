package store

import (
	"encoding/json"
	"sync"
)

// MemStore is an in-process KVStore backed by a map. It never fails, which
// makes it useful both for tests and as the fallback a host can reach for
// when it has no durable medium (the association controller degrades the
// same way on either store: losing "at"/"ac" just resets the activity
// table, per spec.md §7).
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemStore returns a ready-to-use in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(key string, v any) (bool, error) {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MemStore) Set(key string, v any) error {
	raw, err := MarshalValue(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}
