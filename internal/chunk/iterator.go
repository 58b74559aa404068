package chunk

import (
	"slices"

	"github.com/hupe1980/gridstore/internal/stats"
)

// Iterator walks the values of a chunk once. Next returns ErrIterationDone
// when HasNext is false.
type Iterator[T Value] interface {
	HasNext() bool
	Next() (T, error)
}

// cellIterator reads a dense payload live in row-major order; writes to
// cells not yet visited are observed.
type cellIterator[T Value] struct {
	p   payload[T]
	pos int
	n   int
}

func (it *cellIterator[T]) HasNext() bool { return it.pos < it.n }

func (it *cellIterator[T]) Next() (T, error) {
	if it.pos >= it.n {
		var zero T
		return zero, ErrIterationDone
	}
	v := it.p.get(it.pos)
	it.pos++
	return v, nil
}

// runIterator expands a snapshot of (value, count) runs taken at creation,
// ascending by value with no-data last. Later writes are not observed.
type runIterator[T Value] struct {
	runs []stats.Run[T]
	run  int
	left int
}

func newRunIterator[T Value](r runner[T], noData T) *runIterator[T] {
	var runs []stats.Run[T]
	r.eachRun(func(v T, n int) bool {
		if n > 0 {
			runs = append(runs, stats.Run[T]{Value: v, Count: n})
		}
		return true
	})
	slices.SortStableFunc(runs, func(a, b stats.Run[T]) int {
		an, bn := same(a.Value, noData), same(b.Value, noData)
		switch {
		case an && bn:
			return 0
		case an:
			return 1
		case bn:
			return -1
		case a.Value < b.Value:
			return -1
		case a.Value > b.Value:
			return 1
		}
		return 0
	})
	it := &runIterator[T]{runs: runs}
	if len(runs) > 0 {
		it.left = runs[0].Count
	}
	return it
}

func (it *runIterator[T]) HasNext() bool {
	return it.run < len(it.runs)
}

func (it *runIterator[T]) Next() (T, error) {
	if it.run >= len(it.runs) {
		var zero T
		return zero, ErrIterationDone
	}
	v := it.runs[it.run].Value
	if it.left--; it.left == 0 {
		it.run++
		if it.run < len(it.runs) {
			it.left = it.runs[it.run].Count
		}
	}
	return v, nil
}
