package gridstore

import (
	"context"

	"github.com/hupe1980/gridstore/internal/chunk"
	"github.com/hupe1980/gridstore/internal/stats"
)

// Summary holds the reductions over the non-missing cells of a grid or
// chunk. Min, Max and Mean are meaningful only when Count is positive.
type Summary[T Value] struct {
	Count int64
	Sum   float64
	Min   T
	Max   T
	Mean  float64
}

// Empty reports whether every cell is missing.
func (s Summary[T]) Empty() bool { return s.Count == 0 }

func newSummary[T Value](s stats.Summary[T], precision int32) Summary[T] {
	mean, _ := s.Mean(precision)
	return Summary[T]{
		Count: s.Count,
		Sum:   s.SumFloat(),
		Min:   s.Min,
		Max:   s.Max,
		Mean:  mean,
	}
}

// ChunkSummary extends Summary with the order statistics of one chunk.
type ChunkSummary[T Value] struct {
	Summary[T]
	ID       ChunkID
	Encoding Encoding
	// Mode lists every value reaching the highest frequency, ascending.
	Mode     []T
	Median   float64
	MedianOK bool
	// StdDev is the sample standard deviation; it needs two cells.
	StdDev   float64
	StdDevOK bool
}

// Stats reduces every materialized chunk. Swapped chunks are read back one
// at a time, so the grid never needs to fit in memory at once. Sums are
// exact before the final conversion to float64.
func (g *Grid[T]) Stats(ctx context.Context) (Summary[T], error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkOpen(); err != nil {
		return Summary[T]{}, err
	}
	var total stats.Summary[T]
	for _, id := range g.ids() {
		if err := ctx.Err(); err != nil {
			return Summary[T]{}, err
		}
		c, err := g.resident(ctx, id, false)
		if err != nil {
			return Summary[T]{}, translateError(err)
		}
		total.Merge(c.Summary())
	}
	return newSummary(total, g.opts.precision), nil
}

// ChunkStats reduces a single chunk. A chunk never written is all missing.
func (g *Grid[T]) ChunkStats(ctx context.Context, id ChunkID) (ChunkSummary[T], error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkOpen(); err != nil {
		return ChunkSummary[T]{}, err
	}
	if !g.validID(id) {
		cr, cc := g.ChunkLayout()
		return ChunkSummary[T]{}, &ErrOutOfBounds{Row: int(id.Row), Col: int(id.Col), Rows: cr, Cols: cc}
	}
	c, err := g.resident(ctx, id, false)
	if err != nil {
		return ChunkSummary[T]{}, translateError(err)
	}
	if c == nil {
		return ChunkSummary[T]{ID: id, Encoding: g.opts.encoding}, nil
	}
	return summarizeChunk(c, g.opts.precision), nil
}

func summarizeChunk[T Value](c *chunk.Chunk[T], precision int32) ChunkSummary[T] {
	s := ChunkSummary[T]{
		Summary:  newSummary(c.Summary(), precision),
		ID:       c.ID(),
		Encoding: c.Encoding(),
		Mode:     c.Mode(),
	}
	s.Median, s.MedianOK = c.Median()
	s.StdDev, s.StdDevOK = c.StdDev(precision)
	return s
}
