package gridstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"

	"github.com/hupe1980/gridstore/internal/chunk"
	"github.com/hupe1980/gridstore/internal/memory"
	"github.com/hupe1980/gridstore/internal/stats"
	"github.com/hupe1980/gridstore/internal/swap"
)

// Value is the set of cell types a Grid can hold.
type Value = chunk.Value

// ChunkID addresses a chunk by chunk-row and chunk-column.
type ChunkID = chunk.ID

// SwapStats counts swap traffic of a grid.
type SwapStats = swap.Stats

// ChunkInfo describes one materialized chunk.
type ChunkInfo struct {
	ID        ChunkID
	Rows      int
	Cols      int
	Encoding  Encoding
	Resident  bool
	UpToDate  bool
	Footprint int64
}

// Grid is a rows x cols raster split into fixed-size chunks. Chunks are
// created on first write, so untouched regions read as no-data without
// using memory. When a memory limit is set, least recently used chunks are
// swapped to the configured store and read back on access.
//
// A Grid is safe for concurrent use; operations are serialized.
type Grid[T Value] struct {
	rows, cols int
	noData     T
	opts       options
	factory    chunk.Factory[T]
	ctrl       *memory.Controller
	swap       *swap.Manager[T]
	logger     *Logger
	metrics    MetricsCollector

	mu     sync.Mutex
	closed bool
	chunks *swiss.Map[chunk.ID, *chunk.Chunk[T]]
}

// New creates a grid in which every cell holds noData.
func New[T Value](rows, cols int, noData T, optFns ...Option) (*Grid[T], error) {
	o := applyOptions(optFns)
	if rows <= 0 || cols <= 0 {
		return nil, &ErrInvalidConfig{Reason: fmt.Sprintf("grid of %dx%d cells", rows, cols)}
	}
	if o.chunkRows <= 0 || o.chunkCols <= 0 {
		return nil, &ErrInvalidConfig{Reason: fmt.Sprintf("chunks of %dx%d cells", o.chunkRows, o.chunkCols)}
	}
	if !slices.Contains(chunk.Encodings, o.encoding) {
		return nil, &ErrInvalidConfig{Reason: fmt.Sprintf("unknown encoding %s", o.encoding)}
	}
	if o.encoding == Packed64 && o.chunkRows*o.chunkCols > chunk.MaxPackedCells {
		return nil, &ErrInvalidConfig{
			Reason: fmt.Sprintf("packed64 chunks of %dx%d cells", o.chunkRows, o.chunkCols),
			cause:  ErrCapacityExceeded,
		}
	}

	ctrl, err := memory.NewController(memory.Config{
		LimitBytes:           o.memoryLimit,
		ReserveBytes:         o.reserve,
		MaxBackgroundWorkers: o.workers,
		IOLimitBytesPerSec:   o.ioLimit,
	})
	if err != nil {
		return nil, &ErrInvalidConfig{Reason: "memory limit", cause: err}
	}

	g := &Grid[T]{
		rows:    rows,
		cols:    cols,
		noData:  noData,
		opts:    o,
		ctrl:    ctrl,
		logger:  o.logger.WithGrid(rows, cols),
		metrics: o.metricsCollector,
		factory: chunk.Factory[T]{
			Encoding: o.encoding,
			Budget:   ctrl,
			Hybrid:   o.hybrid,
		},
		chunks: swiss.New[chunk.ID, *chunk.Chunk[T]](64),
	}
	g.swap, err = swap.NewManager[T](swap.Config{
		Store:       o.store,
		Manifest:    o.manifest,
		Controller:  ctrl,
		Compression: o.compression,
		Prefix:      o.prefix,
		Logger:      g.logger.Logger,
		Observer:    &swapObserver{logger: g.logger, metrics: g.metrics},
	})
	if err != nil {
		return nil, &ErrInvalidConfig{Reason: "swap store", cause: err}
	}
	return g, nil
}

// Rows returns the number of cell rows.
func (g *Grid[T]) Rows() int { return g.rows }

// Cols returns the number of cell columns.
func (g *Grid[T]) Cols() int { return g.cols }

// NoData returns the no-data sentinel.
func (g *Grid[T]) NoData() T { return g.noData }

// ChunkSize returns the configured rows and columns per chunk.
func (g *Grid[T]) ChunkSize() (rows, cols int) { return g.opts.chunkRows, g.opts.chunkCols }

// ChunkLayout returns the number of chunk rows and chunk columns.
func (g *Grid[T]) ChunkLayout() (rows, cols int) {
	return ceilDiv(g.rows, g.opts.chunkRows), ceilDiv(g.cols, g.opts.chunkCols)
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// MemoryUsage returns the bytes charged by resident chunks and the reserve.
func (g *Grid[T]) MemoryUsage() int64 { return g.ctrl.MemoryUsage() }

// SwapStats returns the swap counters.
func (g *Grid[T]) SwapStats() SwapStats { return g.swap.Stats() }

func (g *Grid[T]) locate(row, col int) (id chunk.ID, r, c int, ok bool) {
	if !chunk.InRange(row, col, g.rows, g.cols) {
		return id, 0, 0, false
	}
	id = chunk.ID{Row: int32(row / g.opts.chunkRows), Col: int32(col / g.opts.chunkCols)}
	return id, row % g.opts.chunkRows, col % g.opts.chunkCols, true
}

func (g *Grid[T]) validID(id chunk.ID) bool {
	cr, cc := g.ChunkLayout()
	return chunk.InRange(int(id.Row), int(id.Col), cr, cc)
}

// geometry returns the shape of chunk id; edge chunks are cut to the grid.
func (g *Grid[T]) geometry(id chunk.ID) chunk.Geometry[T] {
	r0 := int(id.Row) * g.opts.chunkRows
	c0 := int(id.Col) * g.opts.chunkCols
	return chunk.Geometry[T]{
		Rows:    min(g.opts.chunkRows, g.rows-r0),
		Cols:    min(g.opts.chunkCols, g.cols-c0),
		NoData:  g.noData,
		Default: g.noData,
	}
}

// retry runs op inside the out-of-memory recovery loop, evicting chunks other
// than keep until op fits.
func retry[T Value, R any](ctx context.Context, g *Grid[T], keep chunk.ID, op func() (R, error)) (R, error) {
	var (
		attempts, evicted int
		hitLimit          bool
	)
	p := memory.Policy{
		MaxAttempts: g.opts.maxAttempts,
		Observer: func(e memory.Event) {
			switch e.State {
			case memory.Attempting:
				attempts = e.Attempt
			case memory.OutOfMemory:
				hitLimit = true
				g.metrics.RecordOutOfMemory()
			case memory.EvictionSucceeded:
				evicted += e.Freed
				g.metrics.RecordEviction(e.Freed, nil)
			case memory.EvictionFailed:
				g.metrics.RecordEviction(0, e.Err)
			}
		},
	}
	res, err := memory.Retry(ctx, g.swap, p, keep, op)
	if hitLimit {
		g.logger.LogRetry(ctx, keep, attempts, evicted, err)
	}
	return res, err
}

// resident returns chunk id with its payload loaded. A chunk that was never
// written is created when create is set and reported as nil otherwise.
func (g *Grid[T]) resident(ctx context.Context, id chunk.ID, create bool) (*chunk.Chunk[T], error) {
	c, ok := g.chunks.Get(id)
	switch {
	case !ok && !create:
		return nil, nil
	case !ok:
		geom := g.geometry(id)
		created, err := retry(ctx, g, id, func() (*chunk.Chunk[T], error) {
			return g.factory.Empty(geom, id)
		})
		if err != nil {
			return nil, err
		}
		g.chunks.Put(id, created)
		g.swap.Admit(created)
		return created, nil
	case !c.Resident():
		if _, err := retry(ctx, g, id, func() (struct{}, error) {
			return struct{}{}, g.swap.Restore(ctx, c)
		}); err != nil {
			return nil, err
		}
		return c, nil
	}
	g.swap.Touch(id)
	return c, nil
}

func (g *Grid[T]) checkOpen() error {
	if g.closed {
		return ErrClosed
	}
	return nil
}

// Cell returns the value at (row, col). Cells outside the grid and cells of
// chunks never written read as no-data.
func (g *Grid[T]) Cell(ctx context.Context, row, col int) (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkOpen(); err != nil {
		return g.noData, err
	}
	id, r, c, ok := g.locate(row, col)
	if !ok {
		return g.noData, nil
	}
	ch, err := g.resident(ctx, id, false)
	if err != nil || ch == nil {
		return g.noData, translateError(err)
	}
	return ch.Cell(r, c), nil
}

// SetCell writes v at (row, col) and returns the previous value. A Uniform
// chunk asked to hold a second value is first re-encoded to the grid's
// encoding.
func (g *Grid[T]) SetCell(ctx context.Context, row, col int, v T) (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkOpen(); err != nil {
		return g.noData, err
	}
	id, r, c, ok := g.locate(row, col)
	if !ok {
		return g.noData, &ErrOutOfBounds{Row: row, Col: col, Rows: g.rows, Cols: g.cols}
	}
	if _, exists := g.chunks.Get(id); !exists && stats.Same(v, g.noData) {
		return g.noData, nil
	}
	ch, err := g.resident(ctx, id, true)
	if err != nil {
		return g.noData, translateError(err)
	}
	set := func() (T, error) { return ch.SetCell(r, c, v) }
	prev, err := retry(ctx, g, id, set)
	if errors.Is(err, chunk.ErrUnsupportedMutation) && g.opts.encoding != Uniform {
		if ch, err = g.reencode(ctx, ch, g.opts.encoding); err != nil {
			return g.noData, translateError(err)
		}
		prev, err = retry(ctx, g, id, set)
	}
	return prev, translateError(err)
}

// reencode replaces c by a copy in encoding enc.
func (g *Grid[T]) reencode(ctx context.Context, c *chunk.Chunk[T], enc Encoding) (*chunk.Chunk[T], error) {
	f := g.factory
	f.Encoding = enc
	from := c.Encoding()
	next, err := retry(ctx, g, c.ID(), func() (*chunk.Chunk[T], error) {
		return f.From(c)
	})
	g.logger.LogReencode(ctx, c.ID(), from, enc, err)
	if err != nil {
		return nil, err
	}
	c.ClearData()
	g.chunks.Put(c.ID(), next)
	g.swap.Admit(next)
	return next, nil
}

// Reencode converts chunk id to enc. Cell values are unchanged.
func (g *Grid[T]) Reencode(ctx context.Context, id ChunkID, enc Encoding) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkOpen(); err != nil {
		return err
	}
	if !g.validID(id) {
		cr, cc := g.ChunkLayout()
		return &ErrOutOfBounds{Row: int(id.Row), Col: int(id.Col), Rows: cr, Cols: cc}
	}
	c, err := g.resident(ctx, id, true)
	if err != nil {
		return translateError(err)
	}
	if c.Encoding() == enc {
		return nil
	}
	_, err = g.reencode(ctx, c, enc)
	return translateError(err)
}

// Optimize re-encodes every materialized chunk to the cheapest encoding for
// its content and returns how many chunks changed.
func (g *Grid[T]) Optimize(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkOpen(); err != nil {
		return 0, err
	}
	changed := 0
	for _, id := range g.ids() {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		c, err := g.resident(ctx, id, false)
		if err != nil {
			return changed, translateError(err)
		}
		enc := chunk.Choose(c)
		if enc == c.Encoding() {
			continue
		}
		if _, err := g.reencode(ctx, c, enc); err != nil {
			return changed, translateError(err)
		}
		changed++
	}
	return changed, nil
}

// ids returns the materialized chunk IDs in row-major order.
func (g *Grid[T]) ids() []chunk.ID {
	ids := make([]chunk.ID, 0, g.chunks.Len())
	g.chunks.All(func(id chunk.ID, _ *chunk.Chunk[T]) bool {
		ids = append(ids, id)
		return true
	})
	slices.SortFunc(ids, func(a, b chunk.ID) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return ids
}

// Chunks describes every materialized chunk in row-major order.
func (g *Grid[T]) Chunks() []ChunkInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	var infos []ChunkInfo
	for _, id := range g.ids() {
		c, _ := g.chunks.Get(id)
		infos = append(infos, ChunkInfo{
			ID:        id,
			Rows:      c.Rows(),
			Cols:      c.Cols(),
			Encoding:  c.Encoding(),
			Resident:  c.Resident(),
			UpToDate:  c.UpToDate(),
			Footprint: c.Footprint(),
		})
	}
	return infos
}

// Flush writes every resident chunk that changed since it was last swapped
// to the swap store and returns how many chunks were written.
func (g *Grid[T]) Flush(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkOpen(); err != nil {
		return 0, err
	}
	return g.flush(ctx)
}

func (g *Grid[T]) flush(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := g.swap.FlushAll(ctx)
	g.metrics.RecordFlush(n, time.Since(start), err)
	g.logger.LogFlush(ctx, n, err)
	return n, translateError(err)
}

// Close releases every chunk. Swapped blobs are deleted unless the grid was
// created WithKeepSwap, in which case all chunks are flushed first.
func (g *Grid[T]) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	var err error
	if g.opts.keepSwap {
		_, err = g.flush(ctx)
	} else {
		err = g.swap.Purge(ctx)
	}
	g.chunks.All(func(id chunk.ID, c *chunk.Chunk[T]) bool {
		c.ClearData()
		g.swap.Forget(id)
		return true
	})
	g.chunks = swiss.New[chunk.ID, *chunk.Chunk[T]](0)
	g.closed = true
	return err
}

// swapObserver forwards swap transfers to the logger and metrics.
type swapObserver struct {
	logger  *Logger
	metrics MetricsCollector
}

func (o *swapObserver) SwapOut(id chunk.ID, bytes int, d time.Duration, err error) {
	o.metrics.RecordSwapOut(bytes, d, err)
	o.logger.LogSwapOut(context.Background(), id, bytes, d, err)
}

func (o *swapObserver) SwapIn(id chunk.ID, bytes int, d time.Duration, err error) {
	o.metrics.RecordSwapIn(bytes, d, err)
	o.logger.LogSwapIn(context.Background(), id, bytes, d, err)
}
