package chunk

import (
	"fmt"
	"iter"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/gridstore/internal/stats"
)

// Encoding selects the physical layout of a chunk payload.
type Encoding uint8

const (
	Dense Encoding = iota + 1
	Uniform
	Packed64
	Hybrid
	CoordSet
)

// Encodings lists every encoding in declaration order.
var Encodings = []Encoding{Dense, Uniform, Packed64, Hybrid, CoordSet}

func (e Encoding) String() string {
	switch e {
	case Dense:
		return "dense"
	case Uniform:
		return "uniform"
	case Packed64:
		return "packed64"
	case Hybrid:
		return "hybrid"
	case CoordSet:
		return "coordset"
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

// ParseEncoding is the inverse of Encoding.String.
func ParseEncoding(s string) (Encoding, error) {
	for _, e := range Encodings {
		if e.String() == s {
			return e, nil
		}
	}
	return 0, errors.Newf("chunk: unknown encoding %q", s)
}

// Budget accounts for payload memory. AcquireMemory fails without side
// effects when the bytes are not available.
type Budget interface {
	AcquireMemory(bytes int64) error
	ReleaseMemory(bytes int64)
}

// Geometry is the immutable shape of a chunk.
type Geometry[T Value] struct {
	Rows    int
	Cols    int
	NoData  T
	Default T
}

// Cells returns Rows*Cols.
func (g Geometry[T]) Cells() int {
	return g.Rows * g.Cols
}

// payload is implemented by each encoding. Positions passed in are always in
// range.
type payload[T Value] interface {
	encoding() Encoding
	get(pos int) T
	// set stores v at pos and returns the previous value.
	set(pos int, v T) (T, error)
	// growth is an upper bound of the footprint increase set(pos, v) causes.
	growth(pos int, v T) int64
	footprint() int64
}

// runner is implemented by payloads that can enumerate (value, count) runs
// without visiting every cell.
type runner[T Value] interface {
	eachRun(fn func(v T, n int) bool)
}

// Chunk is a fixed-size rows x cols block of cells.
type Chunk[T Value] struct {
	id       ID
	geom     Geometry[T]
	enc      Encoding
	hybrid   HybridOptions
	p        payload[T] // nil while evicted
	upToDate bool
	budget   Budget
	charged  int64
}

func newChunk[T Value](id ID, geom Geometry[T], enc Encoding, budget Budget, hybrid HybridOptions) *Chunk[T] {
	return &Chunk[T]{
		id:       id,
		geom:     geom,
		enc:      enc,
		hybrid:   hybrid.withDefaults(),
		upToDate: true,
		budget:   budget,
	}
}

// ID returns the chunk identifier.
func (c *Chunk[T]) ID() ID { return c.id }

// Rows returns the number of cell rows.
func (c *Chunk[T]) Rows() int { return c.geom.Rows }

// Cols returns the number of cell columns.
func (c *Chunk[T]) Cols() int { return c.geom.Cols }

// NoData returns the no-data sentinel.
func (c *Chunk[T]) NoData() T { return c.geom.NoData }

// Geometry returns the chunk shape.
func (c *Chunk[T]) Geometry() Geometry[T] { return c.geom }

// Encoding returns the payload encoding.
func (c *Chunk[T]) Encoding() Encoding { return c.enc }

// Resident reports whether the payload is in memory.
func (c *Chunk[T]) Resident() bool { return c.p != nil }

// UpToDate reports whether the backing store copy matches the payload.
func (c *Chunk[T]) UpToDate() bool { return c.upToDate }

// MarkUpToDate records that the payload has just been persisted.
func (c *Chunk[T]) MarkUpToDate() { c.upToDate = true }

// MarkStale forces the next eviction to persist the payload.
func (c *Chunk[T]) MarkStale() { c.upToDate = false }

// Footprint returns the bytes currently charged to the budget.
func (c *Chunk[T]) Footprint() int64 { return c.charged }

func (c *Chunk[T]) mustPayload() payload[T] {
	if c.p == nil {
		panic(errors.AssertionFailedf("chunk %s accessed while not resident", c.id))
	}
	return c.p
}

// Cell returns the value at (row, col). Out-of-range coordinates yield the
// no-data sentinel.
func (c *Chunk[T]) Cell(row, col int) T {
	p := c.mustPayload()
	if !InRange(row, col, c.geom.Rows, c.geom.Cols) {
		return c.geom.NoData
	}
	return p.get(Pos(row, col, c.geom.Cols))
}

// InitCell writes v at (row, col) without touching the up-to-date flag. It is
// meant for bulk loads right after construction. On a Uniform chunk it is a
// no-op.
func (c *Chunk[T]) InitCell(row, col int, v T) error {
	if c.enc == Uniform {
		c.mustPayload()
		return nil
	}
	_, err := c.write(row, col, v)
	return err
}

// SetCell writes v at (row, col) and returns the previous value. The chunk
// becomes stale when the value changes.
func (c *Chunk[T]) SetCell(row, col int, v T) (T, error) {
	prev, err := c.write(row, col, v)
	if err != nil {
		return prev, err
	}
	if !same(prev, v) && InRange(row, col, c.geom.Rows, c.geom.Cols) {
		c.upToDate = false
	}
	return prev, nil
}

func (c *Chunk[T]) write(row, col int, v T) (T, error) {
	p := c.mustPayload()
	if !InRange(row, col, c.geom.Rows, c.geom.Cols) {
		if c.enc == Dense {
			return c.geom.NoData, nil
		}
		return c.geom.NoData, errors.Wrapf(ErrOutOfRange,
			"(%d,%d) in %dx%d chunk %s", row, col, c.geom.Rows, c.geom.Cols, c.id)
	}
	if isNaN(v) && !nanAllowed(c.enc, c.geom) {
		return c.geom.NoData, ErrInvalidValue
	}

	pos := Pos(row, col, c.geom.Cols)
	grow := p.growth(pos, v)
	if err := c.charge(grow); err != nil {
		return c.geom.NoData, err
	}
	prev, err := p.set(pos, v)
	c.reconcile()
	return prev, err
}

// charge reserves n bytes from the budget.
func (c *Chunk[T]) charge(n int64) error {
	if n <= 0 {
		return nil
	}
	if c.budget != nil {
		if err := c.budget.AcquireMemory(n); err != nil {
			return err
		}
	}
	c.charged += n
	return nil
}

// reconcile returns any over-reservation to the budget.
func (c *Chunk[T]) reconcile() {
	actual := c.p.footprint()
	switch {
	case c.charged > actual:
		if c.budget != nil {
			c.budget.ReleaseMemory(c.charged - actual)
		}
		c.charged = actual
	case c.charged < actual:
		// Growth bounds are exact upper bounds, so this only happens when
		// a payload was installed without charging. Charge what we can.
		if c.charge(actual-c.charged) != nil {
			return
		}
	}
}

// ClearData drops the payload and returns its memory to the budget. The
// chunk keeps its identity and geometry and can be reloaded.
func (c *Chunk[T]) ClearData() {
	c.p = nil
	if c.budget != nil && c.charged > 0 {
		c.budget.ReleaseMemory(c.charged)
	}
	c.charged = 0
}

// InitData allocates an empty payload in which every cell holds the default
// value. Any resident payload is dropped first.
func (c *Chunk[T]) InitData() error {
	c.ClearData()
	if err := c.charge(emptyFootprint(c.enc, c.geom)); err != nil {
		return err
	}
	p, err := newPayload(c.enc, c.geom, c.hybrid)
	if err != nil {
		c.ClearData()
		return err
	}
	c.p = p
	c.reconcile()
	return nil
}

// install replaces the payload with p, charging its footprint.
func (c *Chunk[T]) install(p payload[T]) error {
	c.ClearData()
	if err := c.charge(p.footprint()); err != nil {
		return err
	}
	c.p = p
	c.enc = p.encoding()
	return nil
}

// nanAllowed reports whether enc can hold NaN cells. Map encodings cannot key
// on NaN, so NaN is limited to the sentinel they keep outside their maps.
func nanAllowed[T Value](enc Encoding, geom Geometry[T]) bool {
	switch enc {
	case Dense, Uniform:
		return true
	case CoordSet:
		return isNaN(geom.Default)
	}
	return isNaN(geom.NoData)
}

func newPayload[T Value](enc Encoding, geom Geometry[T], hybrid HybridOptions) (payload[T], error) {
	switch enc {
	case Dense:
		return newDense(geom), nil
	case Uniform:
		return newUniform(geom), nil
	case Packed64:
		return newPacked(geom)
	case Hybrid:
		return newHybrid(geom, hybrid), nil
	case CoordSet:
		return newCoordSet(geom), nil
	}
	return nil, errors.AssertionFailedf("unknown encoding %d", enc)
}

func emptyFootprint[T Value](enc Encoding, geom Geometry[T]) int64 {
	switch enc {
	case Dense:
		return int64(geom.Cells()) * valueSize[T]()
	case Uniform:
		return valueSize[T]()
	case Packed64:
		if same(geom.Default, geom.NoData) {
			return packedBase
		}
		return packedBase + packedEntry[T]()
	case Hybrid:
		return hybridBase(geom.Cells())
	case CoordSet:
		return coordBase
	}
	return 0
}

// Iterator returns a fresh traversal of every cell value. Dense chunks are
// visited row-major; all other encodings yield each value followed by all its
// occurrences, which is not a spatial order.
func (c *Chunk[T]) Iterator() Iterator[T] {
	p := c.mustPayload()
	if r, ok := p.(runner[T]); ok {
		return newRunIterator(r, c.geom.NoData)
	}
	return &cellIterator[T]{p: p, n: c.geom.Cells()}
}

// All adapts Iterator to a range-over-func sequence.
func (c *Chunk[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		it := c.Iterator()
		for it.HasNext() {
			v, err := it.Next()
			if err != nil || !yield(v) {
				return
			}
		}
	}
}

// To2DArray copies the chunk into a rows x cols slice in spatial order.
func (c *Chunk[T]) To2DArray() [][]T {
	p := c.mustPayload()
	out := make([][]T, c.geom.Rows)
	for r := range out {
		row := make([]T, c.geom.Cols)
		for col := range row {
			row[col] = p.get(Pos(r, col, c.geom.Cols))
		}
		out[r] = row
	}
	return out
}

var _ stats.Source[float64] = (*cellSource[float64])(nil)
