package blobstore

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/swiss"
)

// MemoryStore keeps blobs in process memory. It is used by tests and by grids
// that swap to memory outside the controlled budget.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs *swiss.Map[string, []byte]
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: swiss.New[string, []byte](16)}
}

func (m *MemoryStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs.Get(name)
	if !ok {
		return nil, ErrNotFound
	}
	// Stored slices are never mutated, so handing one out is safe.
	return &bytesBlob{data: data}, nil
}

func (m *MemoryStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	copied := make([]byte, len(data))
	copy(copied, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs.Put(name, copied)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs.Delete(name)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	m.blobs.All(func(name string, _ []byte) bool {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return true
	})
	return names, nil
}

// Bytes returns the total size of all stored blobs.
func (m *MemoryStore) Bytes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	m.blobs.All(func(_ string, data []byte) bool {
		total += int64(len(data))
		return true
	})
	return total
}
