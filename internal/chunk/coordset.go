package chunk

import (
	"slices"

	"github.com/cockroachdb/swiss"
)

const (
	coordBase      = 64
	locationHeader = 32
)

func locationEntry[T Value]() int64 { return mapEntryOverhead + valueSize[T]() + locationHeader }

// locations holds the positions of one value: a single position while many is
// nil, a sorted set of at least two positions otherwise.
type locations struct {
	one  uint32
	many []uint32
}

func (l *locations) len() int {
	if l.many == nil {
		return 1
	}
	return len(l.many)
}

func (l *locations) contains(pos int) bool {
	if l.many == nil {
		return l.one == uint32(pos)
	}
	_, ok := slices.BinarySearch(l.many, uint32(pos))
	return ok
}

// add promotes a single position to a set on the second distinct position.
func (l *locations) add(pos int) {
	p := uint32(pos)
	if l.many == nil {
		switch {
		case p == l.one:
		case p < l.one:
			l.many = []uint32{p, l.one}
		default:
			l.many = []uint32{l.one, p}
		}
		return
	}
	if i, ok := slices.BinarySearch(l.many, p); !ok {
		l.many = slices.Insert(l.many, i, p)
	}
}

// remove demotes a two-element set back to a single position and reports
// whether no position is left.
func (l *locations) remove(pos int) bool {
	p := uint32(pos)
	if l.many == nil {
		return l.one == p
	}
	if i, ok := slices.BinarySearch(l.many, p); ok {
		l.many = slices.Delete(l.many, i, i+1)
	}
	if len(l.many) == 1 {
		l.one, l.many = l.many[0], nil
	}
	return false
}

func (l *locations) bytes() int64 {
	if l.many == nil {
		return 0
	}
	return int64(len(l.many)) * memberBytes
}

// coordSet maps each non-default value to the positions holding it.
type coordSet[T Value] struct {
	n    int
	def  T
	locs *swiss.Map[T, *locations]
}

func newCoordSet[T Value](geom Geometry[T]) *coordSet[T] {
	return &coordSet[T]{
		n:    geom.Cells(),
		def:  geom.Default,
		locs: swiss.New[T, *locations](4),
	}
}

func (c *coordSet[T]) encoding() Encoding { return CoordSet }

func (c *coordSet[T]) owner(pos int) (T, *locations, bool) {
	var (
		owner T
		loc   *locations
	)
	c.locs.All(func(v T, l *locations) bool {
		if l.contains(pos) {
			owner, loc = v, l
			return false
		}
		return true
	})
	return owner, loc, loc != nil
}

func (c *coordSet[T]) get(pos int) T {
	if v, _, ok := c.owner(pos); ok {
		return v
	}
	return c.def
}

func (c *coordSet[T]) set(pos int, v T) (T, error) {
	prev, loc, found := c.owner(pos)
	if !found {
		prev = c.def
	}
	if same(prev, v) {
		return prev, nil
	}
	if found && loc.remove(pos) {
		c.locs.Delete(prev)
	}
	if !same(v, c.def) {
		if l, ok := c.locs.Get(v); ok {
			l.add(pos)
		} else {
			c.locs.Put(v, &locations{one: uint32(pos)})
		}
	}
	return prev, nil
}

func (c *coordSet[T]) growth(_ int, v T) int64 {
	if same(v, c.def) {
		return 0
	}
	if l, ok := c.locs.Get(v); ok {
		if l.many == nil {
			return 2 * memberBytes
		}
		return memberBytes
	}
	return locationEntry[T]()
}

func (c *coordSet[T]) footprint() int64 {
	total := int64(coordBase)
	c.locs.All(func(_ T, l *locations) bool {
		total += locationEntry[T]() + l.bytes()
		return true
	})
	return total
}

func (c *coordSet[T]) eachRun(fn func(v T, n int) bool) {
	used := 0
	for _, k := range sortedKeys(c.locs) {
		l, _ := c.locs.Get(k)
		used += l.len()
		if !fn(k, l.len()) {
			return
		}
	}
	if rest := c.n - used; rest > 0 {
		fn(c.def, rest)
	}
}
