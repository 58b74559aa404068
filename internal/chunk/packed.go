package chunk

import (
	"math/bits"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
)

const (
	// mapEntryOverhead approximates the per-entry cost of a swiss map slot
	// beyond key and value.
	mapEntryOverhead = 16
	packedBase       = 64
)

func packedEntry[T Value]() int64 {
	return mapEntryOverhead + valueSize[T]() + 8
}

// packed maps each distinct value to a word whose bit i is set iff cell i
// holds that value. A position with no bit set holds no-data.
type packed[T Value] struct {
	words  *swiss.Map[T, uint64]
	n      int
	noData T
}

func newPacked[T Value](geom Geometry[T]) (*packed[T], error) {
	n := geom.Cells()
	if n > MaxPackedCells {
		return nil, errors.Wrapf(ErrCapacityExceeded, "%dx%d = %d cells", geom.Rows, geom.Cols, n)
	}
	p := &packed[T]{
		words:  swiss.New[T, uint64](4),
		n:      n,
		noData: geom.NoData,
	}
	if !same(geom.Default, geom.NoData) && n > 0 {
		p.words.Put(geom.Default, fullMask(n))
	}
	return p, nil
}

func (p *packed[T]) encoding() Encoding { return Packed64 }

// lookup scans every entry for the owner of pos.
func (p *packed[T]) lookup(pos int) (T, bool) {
	bit := bitAt(pos)
	var (
		owner T
		found bool
	)
	p.words.All(func(v T, w uint64) bool {
		if w&bit != 0 {
			owner, found = v, true
			return false
		}
		return true
	})
	return owner, found
}

func (p *packed[T]) get(pos int) T {
	if v, ok := p.lookup(pos); ok {
		return v
	}
	return p.noData
}

func (p *packed[T]) set(pos int, v T) (T, error) {
	bit := bitAt(pos)
	prev, found := p.lookup(pos)
	if !found {
		prev = p.noData
	}
	if same(prev, v) {
		return prev, nil
	}
	if found {
		w, _ := p.words.Get(prev)
		if w &^= bit; w == 0 {
			p.words.Delete(prev)
		} else {
			p.words.Put(prev, w)
		}
	}
	if !same(v, p.noData) {
		w, _ := p.words.Get(v)
		p.words.Put(v, w|bit)
	}
	return prev, nil
}

func (p *packed[T]) growth(_ int, v T) int64 {
	if same(v, p.noData) {
		return 0
	}
	if _, ok := p.words.Get(v); ok {
		return 0
	}
	return packedEntry[T]()
}

func (p *packed[T]) footprint() int64 {
	return packedBase + int64(p.words.Len())*packedEntry[T]()
}

// keys returns the stored values in ascending order.
func (p *packed[T]) keys() []T {
	keys := make([]T, 0, p.words.Len())
	p.words.All(func(v T, _ uint64) bool {
		keys = append(keys, v)
		return true
	})
	slices.Sort(keys)
	return keys
}

// eachRun yields (value, popcount) per entry, then the no-data remainder.
func (p *packed[T]) eachRun(fn func(v T, n int) bool) {
	used := 0
	for _, k := range p.keys() {
		w, _ := p.words.Get(k)
		c := bits.OnesCount64(w)
		used += c
		if !fn(k, c) {
			return
		}
	}
	if rest := p.n - used; rest > 0 {
		fn(p.noData, rest)
	}
}
