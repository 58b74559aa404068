package blobstore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
)

// Entry describes one stored blob.
type Entry struct {
	Name     string
	Encoding string
	Size     int64
	// Checksum is the xxhash64 of the uncompressed payload.
	Checksum uint64
	// Version starts at 1 and grows by one on every Put.
	Version int64
}

// Manifest is a versioned index of stored blobs.
type Manifest interface {
	Get(ctx context.Context, name string) (Entry, error)
	// Put stores e if e.Version equals the stored version (zero when the
	// entry is new) and returns the entry with its new version. Otherwise it
	// fails with ErrConcurrentModification.
	Put(ctx context.Context, e Entry) (Entry, error)
	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the entries whose name starts with prefix, sorted by name.
	List(ctx context.Context, prefix string) ([]Entry, error)
}

// Upsert writes e over whatever version is currently stored.
func Upsert(ctx context.Context, m Manifest, e Entry) (Entry, error) {
	cur, err := m.Get(ctx, e.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		e.Version = 0
	case err != nil:
		return Entry{}, err
	default:
		e.Version = cur.Version
	}
	return m.Put(ctx, e)
}

// MemoryManifest is an in-process Manifest.
type MemoryManifest struct {
	mu      sync.RWMutex
	entries *swiss.Map[string, Entry]
}

// NewMemoryManifest returns an empty MemoryManifest.
func NewMemoryManifest() *MemoryManifest {
	return &MemoryManifest{entries: swiss.New[string, Entry](16)}
}

func (m *MemoryManifest) Get(_ context.Context, name string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries.Get(name)
	if !ok {
		return Entry{}, errors.Wrapf(ErrNotFound, "manifest entry %s", name)
	}
	return e, nil
}

func (m *MemoryManifest) Put(_ context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if cur, ok := m.entries.Get(e.Name); ok {
		stored = cur.Version
	}
	if e.Version != stored {
		return Entry{}, errors.Wrapf(ErrConcurrentModification,
			"%s: have version %d, stored %d", e.Name, e.Version, stored)
	}
	e.Version++
	m.entries.Put(e.Name, e)
	return e, nil
}

func (m *MemoryManifest) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Delete(name)
	return nil
}

func (m *MemoryManifest) List(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	m.entries.All(func(name string, e Entry) bool {
		if strings.HasPrefix(name, prefix) {
			out = append(out, e)
		}
		return true
	})
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}
