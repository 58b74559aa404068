package swap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/gridstore/blobstore"
	"github.com/hupe1980/gridstore/internal/chunk"
	"github.com/hupe1980/gridstore/internal/memory"
)

// Observer receives one call per swap transfer.
type Observer interface {
	SwapOut(id chunk.ID, bytes int, d time.Duration, err error)
	SwapIn(id chunk.ID, bytes int, d time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) SwapOut(chunk.ID, int, time.Duration, error) {}
func (noopObserver) SwapIn(chunk.ID, int, time.Duration, error)  {}

// Config wires a Manager to its collaborators. Only Store is required.
type Config struct {
	Store blobstore.Store
	// Manifest, when set, records every persisted chunk and is checked on
	// restore.
	Manifest    blobstore.Manifest
	Controller  *memory.Controller
	Compression Compression
	// Prefix namespaces the chunk blobs. Defaults to "chunks".
	Prefix   string
	Logger   *slog.Logger
	Observer Observer
}

// Stats counts swap traffic.
type Stats struct {
	SwapOuts     int64
	SwapIns      int64
	BytesWritten int64
	BytesRead    int64
	Evictions    int64
}

var _ memory.Environment = (*Manager[float64])(nil)

// Manager tracks resident chunks in LRU order and moves them between memory
// and the backing store. It implements memory.Environment.
type Manager[T chunk.Value] struct {
	store       blobstore.Store
	manifest    blobstore.Manifest
	ctrl        *memory.Controller
	compression Compression
	prefix      string
	logger      *slog.Logger
	observer    Observer

	mu        sync.Mutex
	lru       *lru
	chunks    *swiss.Map[chunk.ID, *chunk.Chunk[T]]
	persisted *swiss.Map[chunk.ID, uint64]

	swapOuts, swapIns atomic.Int64
	bytesOut, bytesIn atomic.Int64
	evictions         atomic.Int64
}

// NewManager returns a Manager with no resident chunks.
func NewManager[T chunk.Value](cfg Config) (*Manager[T], error) {
	if cfg.Store == nil {
		return nil, errors.New("swap: store is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "chunks"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	return &Manager[T]{
		store:       cfg.Store,
		manifest:    cfg.Manifest,
		ctrl:        cfg.Controller,
		compression: cfg.Compression,
		prefix:      cfg.Prefix,
		logger:      cfg.Logger,
		observer:    cfg.Observer,
		lru:         newLRU(),
		chunks:      swiss.New[chunk.ID, *chunk.Chunk[T]](64),
		persisted:   swiss.New[chunk.ID, uint64](64),
	}, nil
}

// Key returns the blob name of a chunk.
func (m *Manager[T]) Key(id chunk.ID) string {
	return fmt.Sprintf("%s/%d_%d.chunk", m.prefix, id.Row, id.Col)
}

// Admit registers a resident chunk as most recently used, replacing any
// chunk previously admitted under the same ID.
func (m *Manager[T]) Admit(c *chunk.Chunk[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks.Put(c.ID(), c)
	m.lru.touch(c.ID())
}

// Touch marks a resident chunk as most recently used.
func (m *Manager[T]) Touch(id chunk.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lru.contains(id) {
		m.lru.touch(id)
	}
}

// Forget stops tracking a chunk. Its blob, if any, stays in the store.
func (m *Manager[T]) Forget(id chunk.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.remove(id)
	m.chunks.Delete(id)
}

// Has reports whether a blob of the chunk was written by this manager.
func (m *Manager[T]) Has(id chunk.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.persisted.Get(id)
	return ok
}

// Resident returns the tracked resident chunks, most recently used first.
func (m *Manager[T]) Resident() []chunk.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.ids()
}

// Stats returns the swap counters.
func (m *Manager[T]) Stats() Stats {
	return Stats{
		SwapOuts:     m.swapOuts.Load(),
		SwapIns:      m.swapIns.Load(),
		BytesWritten: m.bytesOut.Load(),
		BytesRead:    m.bytesIn.Load(),
		Evictions:    m.evictions.Load(),
	}
}

func (m *Manager[T]) ClearReserve() { m.ctrl.ClearReserve() }

func (m *Manager[T]) ReplenishReserve() error { return m.ctrl.ReplenishReserve() }

// EvictExcept swaps out the least recently used resident chunk other than
// keep. Stale chunks and chunks never written are persisted first. It returns
// 0 when no chunk can be evicted.
func (m *Manager[T]) EvictExcept(ctx context.Context, keep chunk.ID) (int, error) {
	m.mu.Lock()
	var victim *chunk.Chunk[T]
	id, ok := m.lru.victim(func(id chunk.ID) bool {
		if id == keep {
			return false
		}
		c, _ := m.chunks.Get(id)
		return c != nil && c.Resident()
	})
	if ok {
		victim, _ = m.chunks.Get(id)
		_, written := m.persisted.Get(id)
		ok = written && victim.UpToDate()
	}
	m.mu.Unlock()

	if victim == nil {
		return 0, nil
	}
	if !ok {
		if err := m.Persist(ctx, victim); err != nil {
			m.logger.WarnContext(ctx, "eviction failed", "chunk", id.String(), "error", err)
			return 0, err
		}
	}

	freed := victim.Footprint()
	victim.ClearData()
	m.mu.Lock()
	m.lru.remove(id)
	m.mu.Unlock()
	m.evictions.Add(1)
	m.logger.DebugContext(ctx, "chunk evicted", "chunk", id.String(), "freed_bytes", freed)
	return 1, nil
}

// Persist writes the resident payload of c and marks it up to date.
func (m *Manager[T]) Persist(ctx context.Context, c *chunk.Chunk[T]) (err error) {
	id := c.ID()
	start := time.Now()
	size := 0
	defer func() { m.observer.SwapOut(id, size, time.Since(start), err) }()

	raw, err := c.MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "marshal chunk %s", id)
	}
	frame, h, err := EncodeFrame(raw, c.Encoding(), c.Rows(), c.Cols(), m.compression)
	if err != nil {
		return err
	}
	size = len(frame)
	if err := m.ctrl.AcquireIO(ctx, size); err != nil {
		return err
	}
	key := m.Key(id)
	if err := m.store.Put(ctx, key, frame); err != nil {
		return errors.Wrapf(err, "swap out chunk %s", id)
	}
	if m.manifest != nil {
		if _, err := blobstore.Upsert(ctx, m.manifest, blobstore.Entry{
			Name:     key,
			Encoding: c.Encoding().String(),
			Size:     int64(size),
			Checksum: h.Checksum,
		}); err != nil {
			return errors.Wrapf(err, "record chunk %s", id)
		}
	}

	c.MarkUpToDate()
	m.mu.Lock()
	m.persisted.Put(id, h.Checksum)
	m.mu.Unlock()
	m.swapOuts.Add(1)
	m.bytesOut.Add(int64(size))
	return nil
}

// Restore loads the payload of a non-resident chunk and admits it. The
// chunk's budget is charged, so Restore fails with memory.ErrOutOfMemory
// when the payload does not fit.
func (m *Manager[T]) Restore(ctx context.Context, c *chunk.Chunk[T]) (err error) {
	id := c.ID()
	if c.Resident() {
		m.Admit(c)
		return nil
	}
	start := time.Now()
	size := 0
	defer func() { m.observer.SwapIn(id, size, time.Since(start), err) }()

	key := m.Key(id)
	data, err := blobstore.ReadAll(ctx, m.store, key)
	if err != nil {
		return errors.Wrapf(err, "swap in chunk %s", id)
	}
	size = len(data)
	if err := m.ctrl.AcquireIO(ctx, size); err != nil {
		return err
	}
	h, raw, err := DecodeFrame(data)
	if err != nil {
		return errors.Wrapf(err, "chunk %s", id)
	}
	if m.manifest != nil {
		e, err := m.manifest.Get(ctx, key)
		if err != nil {
			return errors.Wrapf(err, "chunk %s", id)
		}
		if e.Checksum != h.Checksum {
			return errors.Wrapf(ErrChecksum, "chunk %s: manifest %016x, blob %016x", id, e.Checksum, h.Checksum)
		}
	}
	if err := c.UnmarshalBinary(raw); err != nil {
		return err
	}

	m.mu.Lock()
	m.persisted.Put(id, h.Checksum)
	m.mu.Unlock()
	m.Admit(c)
	m.swapIns.Add(1)
	m.bytesIn.Add(int64(size))
	return nil
}

// FlushAll persists every resident chunk that is stale or was never written,
// using up to the controller's background worker count in parallel. It
// returns the number of chunks written.
func (m *Manager[T]) FlushAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	var dirty []*chunk.Chunk[T]
	for _, id := range m.lru.ids() {
		c, _ := m.chunks.Get(id)
		if c == nil || !c.Resident() {
			continue
		}
		if _, written := m.persisted.Get(id); !written || !c.UpToDate() {
			dirty = append(dirty, c)
		}
	}
	m.mu.Unlock()

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.ctrl.MaxBackgroundWorkers())
	for _, c := range dirty {
		g.Go(func() error {
			if err := m.ctrl.AcquireBackground(gctx); err != nil {
				return err
			}
			defer m.ctrl.ReleaseBackground()
			if err := m.Persist(gctx, c); err != nil {
				return err
			}
			written.Add(1)
			return nil
		})
	}
	err := g.Wait()
	n := int(written.Load())
	if err != nil {
		m.logger.ErrorContext(ctx, "flush failed", "written", n, "pending", len(dirty)-n, "error", err)
		return n, err
	}
	m.logger.DebugContext(ctx, "flush completed", "written", n)
	return n, nil
}

// Purge deletes every blob and manifest entry this manager wrote.
func (m *Manager[T]) Purge(ctx context.Context) error {
	m.mu.Lock()
	var ids []chunk.ID
	m.persisted.All(func(id chunk.ID, _ uint64) bool {
		ids = append(ids, id)
		return true
	})
	m.mu.Unlock()

	var errs error
	for _, id := range ids {
		key := m.Key(id)
		if err := m.store.Delete(ctx, key); err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		if m.manifest != nil {
			if err := m.manifest.Delete(ctx, key); err != nil {
				errs = errors.CombineErrors(errs, err)
				continue
			}
		}
		m.mu.Lock()
		m.persisted.Delete(id)
		m.mu.Unlock()
	}
	return errs
}
