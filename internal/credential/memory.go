package credential

import (
	"context"
	"sync"
)

// MemoryStore keeps the blob in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	vals  map[string]string
	saves int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) (Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fromValues(m.vals)
}

func (m *MemoryStore) Save(ctx context.Context, b Blob) error {
	vals, err := toValues(b)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.vals = vals
	m.saves++
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.vals = nil
	m.mu.Unlock()
	return nil
}

// SaveCount returns how many times Save succeeded.
func (m *MemoryStore) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
