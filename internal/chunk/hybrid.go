package chunk

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/swiss"
)

// HybridOptions tunes the classification heuristic of Hybrid chunks. Different
// settings or insertion orders can classify the same content differently;
// the cell values are identical either way.
type HybridOptions struct {
	// SparseRatio: a value seen for the first time goes to the coordinate map
	// while fewer than SparseRatio of all cells are classified, otherwise to
	// the offset bitset map.
	SparseRatio float64
	// PromoteAt moves a coordinate list into the offset bitset map once it
	// holds more than PromoteAt positions.
	PromoteAt int
}

// DefaultHybridOptions returns the tuning used when none is given.
func DefaultHybridOptions() HybridOptions {
	return HybridOptions{SparseRatio: 0.125, PromoteAt: 32}
}

func (o HybridOptions) withDefaults() HybridOptions {
	d := DefaultHybridOptions()
	if o.SparseRatio <= 0 {
		o.SparseRatio = d.SparseRatio
	}
	if o.PromoteAt <= 0 {
		o.PromoteAt = d.PromoteAt
	}
	return o
}

const (
	hybridHeader = 96
	offsetHeader = 32
	coordHeader  = 24
	memberBytes  = 4
)

func hybridBase(n int) int64 {
	return hybridHeader + 3*int64(bitsetWords(n))*8
}

func offsetEntry[T Value]() int64 { return mapEntryOverhead + valueSize[T]() + offsetHeader }
func coordEntry[T Value]() int64  { return mapEntryOverhead + valueSize[T]() + coordHeader }

// offsetBits records the positions of one value as a bitmap relative to
// offset. last is an upper bound of the highest position, giving a cheap
// window test before probing the bitmap.
type offsetBits struct {
	offset uint32
	last   uint32
	bm     *roaring.Bitmap
}

func newOffsetBits(pos int) *offsetBits {
	bm := roaring.New()
	bm.Add(0)
	return &offsetBits{offset: uint32(pos), last: uint32(pos), bm: bm}
}

func (o *offsetBits) covers(pos int) bool {
	p := uint32(pos)
	return p >= o.offset && p <= o.last
}

func (o *offsetBits) contains(pos int) bool {
	return o.covers(pos) && o.bm.Contains(uint32(pos)-o.offset)
}

func (o *offsetBits) add(pos int) {
	p := uint32(pos)
	if p < o.offset {
		// Rebase so every member stays non-negative relative to offset.
		shift := o.offset - p
		rebased := roaring.New()
		it := o.bm.Iterator()
		for it.HasNext() {
			rebased.Add(it.Next() + shift)
		}
		o.bm = rebased
		o.offset = p
	}
	o.bm.Add(p - o.offset)
	o.last = max(o.last, p)
}

// remove drops pos and reports whether the set became empty.
func (o *offsetBits) remove(pos int) bool {
	o.bm.Remove(uint32(pos) - o.offset)
	return o.bm.IsEmpty()
}

func (o *offsetBits) cardinality() int {
	return int(o.bm.GetCardinality())
}

// coordList is a sorted list of positions holding one rare value.
type coordList struct {
	pos []uint32
}

func (l *coordList) contains(pos int) bool {
	_, ok := slices.BinarySearch(l.pos, uint32(pos))
	return ok
}

func (l *coordList) add(pos int) {
	if i, ok := slices.BinarySearch(l.pos, uint32(pos)); !ok {
		l.pos = slices.Insert(l.pos, i, uint32(pos))
	}
}

func (l *coordList) remove(pos int) bool {
	if i, ok := slices.BinarySearch(l.pos, uint32(pos)); ok {
		l.pos = slices.Delete(l.pos, i, i+1)
	}
	return len(l.pos) == 0
}

// hybrid classifies every position as exactly one of: no-data, member of an
// offset bitset entry, member of a coordinate list entry, or implicitly the
// default value.
type hybrid[T Value] struct {
	n        int
	noData   T
	def      T
	opts     HybridOptions
	noDataBS *bitset.BitSet
	inBits   *bitset.BitSet
	inCoords *bitset.BitSet
	bits     *swiss.Map[T, *offsetBits]
	coords   *swiss.Map[T, *coordList]
}

func newHybrid[T Value](geom Geometry[T], opts HybridOptions) *hybrid[T] {
	n := uint(geom.Cells())
	return &hybrid[T]{
		n:        geom.Cells(),
		noData:   geom.NoData,
		def:      geom.Default,
		opts:     opts.withDefaults(),
		noDataBS: bitset.New(n),
		inBits:   bitset.New(n),
		inCoords: bitset.New(n),
		bits:     swiss.New[T, *offsetBits](4),
		coords:   swiss.New[T, *coordList](ceilPow2(geom.Cells() / 64)),
	}
}

func (h *hybrid[T]) encoding() Encoding { return Hybrid }

func (h *hybrid[T]) bitsOwner(pos int) (T, *offsetBits, bool) {
	var (
		owner T
		ob    *offsetBits
	)
	h.bits.All(func(v T, o *offsetBits) bool {
		if o.contains(pos) {
			owner, ob = v, o
			return false
		}
		return true
	})
	return owner, ob, ob != nil
}

func (h *hybrid[T]) coordsOwner(pos int) (T, *coordList, bool) {
	var (
		owner T
		cl    *coordList
	)
	h.coords.All(func(v T, l *coordList) bool {
		if l.contains(pos) {
			owner, cl = v, l
			return false
		}
		return true
	})
	return owner, cl, cl != nil
}

func (h *hybrid[T]) get(pos int) T {
	u := uint(pos)
	switch {
	case h.noDataBS.Test(u):
		return h.noData
	case h.inBits.Test(u):
		if v, _, ok := h.bitsOwner(pos); ok {
			return v
		}
	case h.inCoords.Test(u):
		if v, _, ok := h.coordsOwner(pos); ok {
			return v
		}
	}
	return h.def
}

func (h *hybrid[T]) set(pos int, v T) (T, error) {
	prev := h.get(pos)
	if same(prev, v) {
		return prev, nil
	}
	h.unclassify(pos, prev)
	h.classify(pos, v)
	return prev, nil
}

// unclassify removes pos from whichever classification holds it.
func (h *hybrid[T]) unclassify(pos int, prev T) {
	u := uint(pos)
	switch {
	case h.noDataBS.Test(u):
		h.noDataBS.Clear(u)
	case h.inBits.Test(u):
		if ob, ok := h.bits.Get(prev); ok && ob.remove(pos) {
			h.bits.Delete(prev)
		}
		h.inBits.Clear(u)
	case h.inCoords.Test(u):
		if cl, ok := h.coords.Get(prev); ok && cl.remove(pos) {
			h.coords.Delete(prev)
		}
		h.inCoords.Clear(u)
	}
}

// classify records pos as holding v. pos must be unclassified.
func (h *hybrid[T]) classify(pos int, v T) {
	u := uint(pos)
	if same(v, h.def) {
		return
	}
	if same(v, h.noData) {
		h.noDataBS.Set(u)
		return
	}
	if ob, ok := h.bits.Get(v); ok {
		ob.add(pos)
		h.inBits.Set(u)
		return
	}
	if cl, ok := h.coords.Get(v); ok {
		cl.add(pos)
		h.inCoords.Set(u)
		if len(cl.pos) > h.opts.PromoteAt {
			h.promote(v, cl)
		}
		return
	}
	if h.sparse() {
		h.coords.Put(v, &coordList{pos: []uint32{uint32(pos)}})
		h.inCoords.Set(u)
		return
	}
	h.bits.Put(v, newOffsetBits(pos))
	h.inBits.Set(u)
}

// sparse reports whether the chunk still looks dominated by its default.
func (h *hybrid[T]) sparse() bool {
	classified := h.noDataBS.Count() + h.inBits.Count() + h.inCoords.Count()
	return float64(classified) < h.opts.SparseRatio*float64(h.n)
}

// promote moves a grown coordinate list into the offset bitset map.
func (h *hybrid[T]) promote(v T, cl *coordList) {
	ob := newOffsetBits(int(cl.pos[0]))
	for _, p := range cl.pos {
		ob.add(int(p))
		h.inCoords.Clear(uint(p))
		h.inBits.Set(uint(p))
	}
	h.coords.Delete(v)
	h.bits.Put(v, ob)
}

func (h *hybrid[T]) growth(_ int, v T) int64 {
	if same(v, h.def) || same(v, h.noData) {
		return 0
	}
	if _, ok := h.bits.Get(v); ok {
		return memberBytes
	}
	if cl, ok := h.coords.Get(v); ok {
		if len(cl.pos)+1 > h.opts.PromoteAt {
			return memberBytes + offsetEntry[T]() - coordEntry[T]()
		}
		return memberBytes
	}
	return max(offsetEntry[T](), coordEntry[T]()) + memberBytes
}

func (h *hybrid[T]) footprint() int64 {
	total := hybridBase(h.n)
	h.bits.All(func(_ T, o *offsetBits) bool {
		total += offsetEntry[T]() + int64(o.cardinality())*memberBytes
		return true
	})
	h.coords.All(func(_ T, l *coordList) bool {
		total += coordEntry[T]() + int64(len(l.pos))*memberBytes
		return true
	})
	return total
}

// eachRun yields offset bitset values, then coordinate list values, both
// ascending, then the default and no-data remainders.
func (h *hybrid[T]) eachRun(fn func(v T, n int) bool) {
	used := 0
	for _, k := range sortedKeys(h.bits) {
		ob, _ := h.bits.Get(k)
		c := ob.cardinality()
		used += c
		if !fn(k, c) {
			return
		}
	}
	for _, k := range sortedKeys(h.coords) {
		cl, _ := h.coords.Get(k)
		used += len(cl.pos)
		if !fn(k, len(cl.pos)) {
			return
		}
	}
	nd := int(h.noDataBS.Count())
	if rest := h.n - used - nd; rest > 0 {
		if !fn(h.def, rest) {
			return
		}
	}
	if nd > 0 {
		fn(h.noData, nd)
	}
}

func sortedKeys[T Value, V any](m *swiss.Map[T, V]) []T {
	keys := make([]T, 0, m.Len())
	m.All(func(k T, _ V) bool {
		keys = append(keys, k)
		return true
	})
	slices.Sort(keys)
	return keys
}
