package testutils

import (
	"context"
	"sync"

	"github.com/evdnx/gotsrl/store"
)

// MockStore is an in-memory store.Store with failure injection.
type MockStore struct {
	mu      sync.Mutex
	values  map[store.Key]float64
	saved   bool
	LoadErr error
	SaveErr error
	Saves   int
	Loads   int
}

func NewMockStore() *MockStore { return &MockStore{} }

func (m *MockStore) Load(_ context.Context) (map[store.Key]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Loads++
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if !m.saved {
		return nil, store.ErrNotFound
	}
	out := make(map[store.Key]float64, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *MockStore) Save(_ context.Context, values map[store.Key]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.values = make(map[store.Key]float64, len(values))
	for k, v := range values {
		m.values[k] = v
	}
	m.saved = true
	return nil
}

// Values returns a copy of the last saved table.
func (m *MockStore) Values() map[store.Key]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[store.Key]float64, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// SaveCount returns the number of Save calls.
func (m *MockStore) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Saves
}
