package stats

import (
	"slices"

	"github.com/cockroachdb/apd/v3"
)

// Number is the set of cell value types.
type Number interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// Source gives positional access to a fixed block of cells.
type Source[T Number] interface {
	Len() int
	At(i int) T
	NoData() T
}

// Runs is implemented by sources that can enumerate their content as
// (value, count) pairs without touching every cell. Values may repeat and may
// include the no-data sentinel; fn returns false to stop early.
type Runs[T Number] interface {
	EachRun(fn func(v T, n int) bool)
}

// Run is a value together with its number of occurrences.
type Run[T Number] struct {
	Value T
	Count int
}

// Same reports whether a and b are the same cell value. NaN equals NaN.
func Same[T Number](a, b T) bool {
	return a == b || (a != a && b != b)
}

// Histogram returns the non-missing content of src as runs sorted by value,
// one run per distinct value.
func Histogram[T Number](src Source[T]) []Run[T] {
	nd := src.NoData()
	if r, ok := src.(Runs[T]); ok {
		var runs []Run[T]
		r.EachRun(func(v T, n int) bool {
			if n > 0 && !Same(v, nd) {
				runs = append(runs, Run[T]{Value: v, Count: n})
			}
			return true
		})
		slices.SortFunc(runs, func(a, b Run[T]) int { return compare(a.Value, b.Value) })
		return merge(runs)
	}

	vals := make([]T, 0, src.Len())
	for i := 0; i < src.Len(); i++ {
		if v := src.At(i); !Same(v, nd) {
			vals = append(vals, v)
		}
	}
	slices.SortFunc(vals, compare[T])
	runs := make([]Run[T], 0, 8)
	for _, v := range vals {
		if k := len(runs) - 1; k >= 0 && Same(runs[k].Value, v) {
			runs[k].Count++
			continue
		}
		runs = append(runs, Run[T]{Value: v, Count: 1})
	}
	return runs
}

// compare orders values ascending with NaN last.
func compare[T Number](a, b T) int {
	switch {
	case a != a && b != b:
		return 0
	case a != a:
		return 1
	case b != b:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func merge[T Number](runs []Run[T]) []Run[T] {
	out := runs[:0]
	for _, r := range runs {
		if k := len(out) - 1; k >= 0 && Same(out[k].Value, r.Value) {
			out[k].Count += r.Count
			continue
		}
		out = append(out, r)
	}
	return out
}

// Count returns the number of non-missing cells.
func Count[T Number](src Source[T]) int64 {
	return Summarize(src).Count
}

// Sum returns the exact sum of the non-missing cells converted to float64.
// An empty source sums to zero.
func Sum[T Number](src Source[T]) float64 {
	s := Summarize(src)
	return s.SumFloat()
}

// Min returns the smallest non-missing value.
func Min[T Number](src Source[T]) (T, bool) {
	s := Summarize(src)
	return s.Min, s.Count > 0
}

// Max returns the largest non-missing value.
func Max[T Number](src Source[T]) (T, bool) {
	s := Summarize(src)
	return s.Max, s.Count > 0
}

// Mean returns the arithmetic mean rounded half-to-even at precision
// fractional digits.
func Mean[T Number](src Source[T], precision int32) (float64, bool) {
	s := Summarize(src)
	return s.Mean(precision)
}

// Mode returns every value that reaches the highest frequency, ascending.
func Mode[T Number](src Source[T]) []T {
	runs := Histogram(src)
	best := 0
	for _, r := range runs {
		best = max(best, r.Count)
	}
	var modes []T
	for _, r := range runs {
		if r.Count == best {
			modes = append(modes, r.Value)
		}
	}
	return modes
}

// Median returns the middle value of the sorted non-missing cells. For an even
// count it is the average of the two middle values, computed exactly.
func Median[T Number](src Source[T]) (float64, bool) {
	runs := Histogram(src)
	n := total(runs)
	if n == 0 {
		return 0, false
	}
	if n%2 == 1 {
		return toFloat(decimalOf(nth(runs, n/2))), true
	}
	lo, hi := decimalOf(nth(runs, n/2-1)), decimalOf(nth(runs, n/2))
	d := new(apd.Decimal)
	_, _ = workCtx.Add(d, lo, hi)
	_, _ = workCtx.Quo(d, d, apd.New(2, 0))
	return toFloat(d), true
}

// StdDev returns the sample (Bessel-corrected) standard deviation rounded
// half-to-even at precision fractional digits. Fewer than two non-missing
// cells report ok=false.
func StdDev[T Number](src Source[T], precision int32) (float64, bool) {
	runs := Histogram(src)
	n := total(runs)
	if n < 2 {
		return 0, false
	}

	sum := new(apd.Decimal)
	for _, r := range runs {
		term := new(apd.Decimal)
		_, _ = workCtx.Mul(term, decimalOf(r.Value), apd.New(int64(r.Count), 0))
		_, _ = workCtx.Add(sum, sum, term)
	}
	mean := new(apd.Decimal)
	_, _ = workCtx.Quo(mean, sum, apd.New(int64(n), 0))

	acc := new(apd.Decimal)
	for _, r := range runs {
		dev := new(apd.Decimal)
		_, _ = workCtx.Sub(dev, decimalOf(r.Value), mean)
		_, _ = workCtx.Mul(dev, dev, dev)
		_, _ = workCtx.Mul(dev, dev, apd.New(int64(r.Count), 0))
		_, _ = workCtx.Add(acc, acc, dev)
	}
	_, _ = workCtx.Quo(acc, acc, apd.New(int64(n-1), 0))

	sd := new(apd.Decimal)
	if _, err := sqrtCtx.Sqrt(sd, acc); err != nil {
		return toFloat(acc), false
	}
	return toFloat(quantize(sd, precision)), true
}

func total[T Number](runs []Run[T]) int {
	n := 0
	for _, r := range runs {
		n += r.Count
	}
	return n
}

// nth returns the k-th (zero based) value of the expanded runs.
func nth[T Number](runs []Run[T], k int) T {
	for _, r := range runs {
		if k < r.Count {
			return r.Value
		}
		k -= r.Count
	}
	var zero T
	return zero
}
