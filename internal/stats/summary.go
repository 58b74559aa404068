package stats

import (
	"github.com/cockroachdb/apd/v3"
)

// Summary holds the mergeable reductions of a set of cells. Grids fold the
// summaries of their chunks to get grid-wide figures without materializing
// cells.
type Summary[T Number] struct {
	Count int64
	Sum   *apd.Decimal
	Min   T
	Max   T
}

// Summarize reduces src in a single pass, or over its runs when available.
func Summarize[T Number](src Source[T]) Summary[T] {
	var s Summary[T]
	nd := src.NoData()
	if r, ok := src.(Runs[T]); ok {
		r.EachRun(func(v T, n int) bool {
			if n > 0 && !Same(v, nd) {
				s.add(v, n)
			}
			return true
		})
		return s
	}
	for i := 0; i < src.Len(); i++ {
		if v := src.At(i); !Same(v, nd) {
			s.add(v, 1)
		}
	}
	return s
}

func (s *Summary[T]) add(v T, n int) {
	if s.Count == 0 || compare(v, s.Min) < 0 {
		s.Min = v
	}
	if s.Count == 0 || compare(v, s.Max) > 0 {
		s.Max = v
	}
	s.Count += int64(n)
	d := decimalOf(v)
	if n != 1 {
		_, _ = workCtx.Mul(d, d, apd.New(int64(n), 0))
	}
	s.accumulate(d)
}

// Merge folds o into s.
func (s *Summary[T]) Merge(o Summary[T]) {
	if o.Count == 0 {
		return
	}
	if s.Count == 0 || compare(o.Min, s.Min) < 0 {
		s.Min = o.Min
	}
	if s.Count == 0 || compare(o.Max, s.Max) > 0 {
		s.Max = o.Max
	}
	s.Count += o.Count
	s.accumulate(o.Sum)
}

// accumulate adds d to a sum owned by s, never to one shared with a copy.
func (s *Summary[T]) accumulate(d *apd.Decimal) {
	sum := new(apd.Decimal)
	if s.Sum != nil {
		_, _ = workCtx.Add(sum, s.Sum, d)
	} else {
		sum.Set(d)
	}
	s.Sum = sum
}

// SumFloat returns the sum converted to float64.
func (s *Summary[T]) SumFloat() float64 {
	if s.Sum == nil {
		return 0
	}
	return toFloat(s.Sum)
}

// Mean returns Sum/Count rounded half-to-even at precision fractional digits.
func (s *Summary[T]) Mean(precision int32) (float64, bool) {
	if s.Count == 0 {
		return 0, false
	}
	q := new(apd.Decimal)
	if _, err := workCtx.Quo(q, s.Sum, apd.New(s.Count, 0)); err != nil {
		return 0, false
	}
	return toFloat(quantize(q, precision)), true
}
