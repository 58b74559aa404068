package chunk

import (
	"github.com/hupe1980/gridstore/internal/stats"
)

// cellSource exposes a payload to the stats package cell by cell.
type cellSource[T Value] struct {
	p      payload[T]
	n      int
	noData T
}

func (s *cellSource[T]) Len() int   { return s.n }
func (s *cellSource[T]) At(i int) T { return s.p.get(i) }
func (s *cellSource[T]) NoData() T  { return s.noData }

// runSource additionally lets the stats package reduce over runs.
type runSource[T Value] struct {
	cellSource[T]
	r runner[T]
}

func (s *runSource[T]) EachRun(fn func(v T, n int) bool) { s.r.eachRun(fn) }

var _ stats.Runs[float64] = (*runSource[float64])(nil)

// Source returns a stats view of the resident payload. Map encodings reduce
// over runs instead of cells.
func (c *Chunk[T]) Source() stats.Source[T] {
	p := c.mustPayload()
	cs := cellSource[T]{p: p, n: c.geom.Cells(), noData: c.geom.NoData}
	if r, ok := p.(runner[T]); ok {
		return &runSource[T]{cellSource: cs, r: r}
	}
	return &cs
}

// NonMissingCount returns the number of cells not holding no-data.
func (c *Chunk[T]) NonMissingCount() int64 { return stats.Count(c.Source()) }

// Sum returns the exact sum of the non-missing cells as float64.
func (c *Chunk[T]) Sum() float64 { return stats.Sum(c.Source()) }

// Min returns the smallest non-missing value.
func (c *Chunk[T]) Min() (T, bool) { return stats.Min(c.Source()) }

// Max returns the largest non-missing value.
func (c *Chunk[T]) Max() (T, bool) { return stats.Max(c.Source()) }

// Mean returns the mean rounded half-to-even at precision fractional digits.
func (c *Chunk[T]) Mean(precision int32) (float64, bool) {
	return stats.Mean(c.Source(), precision)
}

// Mode returns all most frequent non-missing values, ascending.
func (c *Chunk[T]) Mode() []T { return stats.Mode(c.Source()) }

// Median returns the median of the non-missing values.
func (c *Chunk[T]) Median() (float64, bool) { return stats.Median(c.Source()) }

// StdDev returns the sample standard deviation.
func (c *Chunk[T]) StdDev(precision int32) (float64, bool) {
	return stats.StdDev(c.Source(), precision)
}

// Summary returns the mergeable reductions of the chunk.
func (c *Chunk[T]) Summary() stats.Summary[T] { return stats.Summarize(c.Source()) }

// Histogram returns the non-missing values with their counts, ascending.
func (c *Chunk[T]) Histogram() []stats.Run[T] { return stats.Histogram(c.Source()) }
