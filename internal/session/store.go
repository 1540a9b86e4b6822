package session

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when the key has no value
var ErrNotFound = errors.New("session value not found")

// Store defines durable key/value persistence for the active scan flow
type Store interface {
	// Put stores value under key, replacing any previous value
	Put(key, value string) error

	// Get returns the value for key or ErrNotFound
	Get(key string) (string, error)

	// Clear removes every value for the flow
	Clear() error
}

// MemoryStore implements Store in memory. Values do not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
	return nil
}
