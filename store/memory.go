package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the table in process. Useful for tests and dry runs.
type MemoryStore struct {
	mu     sync.Mutex
	values map[Key]float64
	saved  bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(_ context.Context) (map[Key]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return nil, ErrNotFound
	}
	return clone(m.values), nil
}

func (m *MemoryStore) Save(_ context.Context, values map[Key]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = clone(values)
	m.saved = true
	return nil
}
