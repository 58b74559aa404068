package chunk

import (
	"encoding/binary"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"
)

// Payload blob layout, little endian:
//
//	version u8 | encoding u8 | valueSize u8 | rows u32 | cols u32 |
//	noData value | default value | body
//
// Values take valueSize bytes. Bodies:
//
//	dense:    rows*cols values
//	uniform:  value
//	packed64: n u32, n x (value, word u64)
//	hybrid:   noData bitset (len u32, bytes), n u32, n x (value, offset u32,
//	          last u32, len u32, roaring bytes), m u32, m x (value, k u32, k x pos u32)
//	coordset: n u32, n x (value, k u32, k x pos u32)
const codecVersion = 1

// MarshalBinary encodes the resident payload.
func (c *Chunk[T]) MarshalBinary() ([]byte, error) {
	p := c.mustPayload()
	vs := int(valueSize[T]())
	w := &writer[T]{buf: make([]byte, 0, 16+2*vs+int(p.footprint()))}
	w.u8(codecVersion)
	w.u8(uint8(c.enc))
	w.u8(uint8(vs))
	w.u32(uint32(c.geom.Rows))
	w.u32(uint32(c.geom.Cols))
	w.value(c.geom.NoData)
	w.value(c.geom.Default)

	switch p := p.(type) {
	case *dense[T]:
		for _, v := range p.cells {
			w.value(v)
		}
	case *uniform[T]:
		w.value(p.value)
	case *packed[T]:
		keys := p.keys()
		w.u32(uint32(len(keys)))
		for _, k := range keys {
			word, _ := p.words.Get(k)
			w.value(k)
			w.u64(word)
		}
	case *hybrid[T]:
		nd, err := p.noDataBS.MarshalBinary()
		if err != nil {
			return nil, errors.Wrap(err, "marshal no-data bitset")
		}
		w.bytes(nd)
		keys := sortedKeys(p.bits)
		w.u32(uint32(len(keys)))
		for _, k := range keys {
			ob, _ := p.bits.Get(k)
			raw, err := ob.bm.MarshalBinary()
			if err != nil {
				return nil, errors.Wrapf(err, "marshal offset bitset of %v", k)
			}
			w.value(k)
			w.u32(ob.offset)
			w.u32(ob.last)
			w.bytes(raw)
		}
		keys = sortedKeys(p.coords)
		w.u32(uint32(len(keys)))
		for _, k := range keys {
			cl, _ := p.coords.Get(k)
			w.value(k)
			w.positions(cl.pos)
		}
	case *coordSet[T]:
		keys := sortedKeys(p.locs)
		w.u32(uint32(len(keys)))
		for _, k := range keys {
			l, _ := p.locs.Get(k)
			w.value(k)
			if l.many == nil {
				w.positions([]uint32{l.one})
			} else {
				w.positions(l.many)
			}
		}
	default:
		return nil, errors.AssertionFailedf("unknown payload %T", p)
	}
	return w.buf, nil
}

// UnmarshalBinary replaces the payload with the one encoded in data and
// adopts its encoding. The blob must describe a chunk of the same dimensions
// and no-data sentinel. The restored chunk is up to date.
func (c *Chunk[T]) UnmarshalBinary(data []byte) error {
	r := &reader[T]{buf: data}
	if v := r.u8(); r.err == nil && v != codecVersion {
		return errors.Wrapf(ErrCorrupt, "unsupported version %d", v)
	}
	enc := Encoding(r.u8())
	if vs := r.u8(); r.err == nil && int64(vs) != valueSize[T]() {
		return errors.Wrapf(ErrCorrupt, "value size %d, want %d", vs, valueSize[T]())
	}
	rows, cols := int(r.u32()), int(r.u32())
	noData, def := r.value(), r.value()
	if r.err != nil {
		return r.err
	}
	if rows != c.geom.Rows || cols != c.geom.Cols || !same(noData, c.geom.NoData) {
		return errors.Wrapf(ErrGeometryMismatch, "blob %dx%d nodata %v, chunk %s is %dx%d nodata %v",
			rows, cols, noData, c.id, c.geom.Rows, c.geom.Cols, c.geom.NoData)
	}
	geom := c.geom
	geom.Default = def

	var (
		p   payload[T]
		err error
	)
	switch enc {
	case Dense:
		p, err = decodeDense(r, geom)
	case Uniform:
		u := newUniform(geom)
		u.value = r.value()
		p, err = u, r.err
	case Packed64:
		p, err = decodePacked(r, geom)
	case Hybrid:
		p, err = decodeHybrid(r, geom, c.hybrid)
	case CoordSet:
		p, err = decodeCoordSet(r, geom)
	default:
		return errors.Wrapf(ErrCorrupt, "unknown encoding %d", enc)
	}
	if err != nil {
		return err
	}
	if len(r.buf) != 0 {
		return errors.Wrapf(ErrCorrupt, "%d trailing bytes", len(r.buf))
	}
	if err := c.install(p); err != nil {
		return err
	}
	c.geom = geom
	c.upToDate = true
	return nil
}

func decodeDense[T Value](r *reader[T], geom Geometry[T]) (payload[T], error) {
	d := &dense[T]{cells: make([]T, geom.Cells())}
	for i := range d.cells {
		d.cells[i] = r.value()
	}
	return d, r.err
}

func decodePacked[T Value](r *reader[T], geom Geometry[T]) (payload[T], error) {
	p, err := newPacked(geom)
	if err != nil {
		return nil, err
	}
	p.words.Delete(geom.Default)
	var seen uint64
	for n := r.count(); n > 0 && r.err == nil; n-- {
		k, word := r.value(), r.u64()
		if word&^fullMask(p.n) != 0 || word&seen != 0 || word == 0 || same(k, p.noData) {
			return nil, errors.Wrapf(ErrCorrupt, "packed entry %v", k)
		}
		seen |= word
		p.words.Put(k, word)
	}
	return p, r.err
}

func decodeHybrid[T Value](r *reader[T], geom Geometry[T], opts HybridOptions) (payload[T], error) {
	h := newHybrid(geom, opts)
	if err := h.noDataBS.UnmarshalBinary(r.bytes()); err != nil || r.err != nil {
		return nil, errors.Wrapf(errors.CombineErrors(ErrCorrupt, err), "no-data bitset")
	}
	if h.noDataBS.Len() != uint(h.n) {
		return nil, errors.Wrapf(ErrCorrupt, "no-data bitset of %d bits", h.noDataBS.Len())
	}
	claimed := h.noDataBS.Clone()
	for n := r.count(); n > 0 && r.err == nil; n-- {
		k := r.value()
		if same(k, h.def) || same(k, h.noData) {
			return nil, errors.Wrapf(ErrCorrupt, "offset bitset keyed by %v", k)
		}
		ob := &offsetBits{offset: r.u32(), last: r.u32(), bm: roaring.New()}
		if err := ob.bm.UnmarshalBinary(r.bytes()); err != nil {
			return nil, errors.Wrapf(errors.CombineErrors(ErrCorrupt, err), "offset bitset of %v", k)
		}
		if ob.bm.IsEmpty() || uint64(ob.offset)+uint64(ob.bm.Maximum()) > uint64(ob.last) {
			return nil, errors.Wrapf(ErrCorrupt, "offset bitset of %v", k)
		}
		if err := claim(claimed, h.inBits, ob.bm.ToArray(), ob.offset, h.n); err != nil {
			return nil, err
		}
		h.bits.Put(k, ob)
	}
	for n := r.count(); n > 0 && r.err == nil; n-- {
		k := r.value()
		pos := r.positions()
		if len(pos) == 0 || same(k, h.def) || same(k, h.noData) {
			return nil, errors.Wrapf(ErrCorrupt, "coordinate list of %v", k)
		}
		if err := claim(claimed, h.inCoords, pos, 0, h.n); err != nil {
			return nil, err
		}
		h.coords.Put(k, &coordList{pos: pos})
	}
	return h, r.err
}

func decodeCoordSet[T Value](r *reader[T], geom Geometry[T]) (payload[T], error) {
	c := newCoordSet(geom)
	claimed := bitset.New(uint(c.n))
	for n := r.count(); n > 0 && r.err == nil; n-- {
		k := r.value()
		pos := r.positions()
		if len(pos) == 0 || same(k, c.def) {
			return nil, errors.Wrapf(ErrCorrupt, "coordinate entry %v", k)
		}
		if err := claim(claimed, nil, pos, 0, c.n); err != nil {
			return nil, err
		}
		l := &locations{one: pos[0]}
		if len(pos) > 1 {
			l.many = pos
		}
		c.locs.Put(k, l)
	}
	return c, r.err
}

// claim marks positions (relative to base) in claimed and member, failing on
// positions out of range or already classified.
func claim(claimed, member *bitset.BitSet, pos []uint32, base uint32, n int) error {
	for _, p := range pos {
		abs := uint64(base) + uint64(p)
		if abs >= uint64(n) || claimed.Test(uint(abs)) {
			return errors.Wrapf(ErrCorrupt, "position %d", abs)
		}
		claimed.Set(uint(abs))
		if member != nil {
			member.Set(uint(abs))
		}
	}
	return nil
}

type writer[T Value] struct {
	buf []byte
}

func (w *writer[T]) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer[T]) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer[T]) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *writer[T]) value(v T) {
	switch {
	case valueSize[T]() == 4 && isFloat[T]():
		w.u32(math.Float32bits(float32(v)))
	case valueSize[T]() == 4:
		w.u32(uint32(int32(v)))
	case isFloat[T]():
		w.u64(math.Float64bits(float64(v)))
	default:
		w.u64(uint64(int64(v)))
	}
}

func (w *writer[T]) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer[T]) positions(pos []uint32) {
	w.u32(uint32(len(pos)))
	for _, p := range pos {
		w.u32(p)
	}
}

// reader decodes until the first short read and keeps that error.
type reader[T Value] struct {
	buf []byte
	err error
}

func (r *reader[T]) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf) < n {
		r.err = errors.Wrapf(ErrCorrupt, "short blob: need %d bytes, have %d", n, len(r.buf))
		r.buf = nil
		return nil
	}
	b := r.buf[:n:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader[T]) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader[T]) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader[T]) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader[T]) value() T {
	switch {
	case valueSize[T]() == 4 && isFloat[T]():
		return T(math.Float32frombits(r.u32()))
	case valueSize[T]() == 4:
		return T(int32(r.u32()))
	case isFloat[T]():
		return T(math.Float64frombits(r.u64()))
	}
	return T(int64(r.u64()))
}

// count reads an element count bounded by the remaining bytes.
func (r *reader[T]) count() int {
	n := int(r.u32())
	if r.err == nil && n > len(r.buf) {
		r.err = errors.Wrapf(ErrCorrupt, "count %d exceeds blob", n)
	}
	return n
}

func (r *reader[T]) bytes() []byte {
	return r.take(int(r.u32()))
}

func (r *reader[T]) positions() []uint32 {
	n := r.count()
	pos := make([]uint32, 0, min(n, len(r.buf)/4))
	for i := 0; i < n && r.err == nil; i++ {
		p := r.u32()
		if k := len(pos); k > 0 && p <= pos[k-1] {
			r.err = errors.Wrapf(ErrCorrupt, "unsorted positions")
			return nil
		}
		pos = append(pos, p)
	}
	return pos
}

