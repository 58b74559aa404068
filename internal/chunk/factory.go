package chunk

import (
	"github.com/cockroachdb/errors"
)

// Factory creates chunks of one encoding sharing a budget.
type Factory[T Value] struct {
	Encoding Encoding
	Budget   Budget
	Hybrid   HybridOptions
}

func (f Factory[T]) validate(geom Geometry[T]) error {
	if geom.Rows <= 0 || geom.Cols <= 0 {
		return errors.Newf("chunk: invalid geometry %dx%d", geom.Rows, geom.Cols)
	}
	if isNaN(geom.Default) && !nanAllowed(f.Encoding, geom) {
		return errors.Wrap(ErrInvalidValue, "default value")
	}
	if f.Encoding == Packed64 && geom.Cells() > MaxPackedCells {
		return errors.Wrapf(ErrCapacityExceeded, "%dx%d = %d cells", geom.Rows, geom.Cols, geom.Cells())
	}
	return nil
}

// Empty returns a resident chunk in which every cell holds geom.Default.
func (f Factory[T]) Empty(geom Geometry[T], id ID) (*Chunk[T], error) {
	if err := f.validate(geom); err != nil {
		return nil, err
	}
	c := newChunk(id, geom, f.Encoding, f.Budget, f.Hybrid)
	if err := c.InitData(); err != nil {
		return nil, err
	}
	return c, nil
}

// Attach returns a non-resident shell whose payload is loaded later through
// UnmarshalBinary.
func (f Factory[T]) Attach(geom Geometry[T], id ID) (*Chunk[T], error) {
	if err := f.validate(geom); err != nil {
		return nil, err
	}
	return newChunk(id, geom, f.Encoding, f.Budget, f.Hybrid), nil
}

// From copies src cell by cell into a new chunk of the factory's encoding. The
// copy keeps the source ID and dimensions and starts out stale. A Uniform target only accepts a
// source holding a single value; Hybrid and CoordSet targets take the most
// frequent value as their implicit default.
func (f Factory[T]) From(src *Chunk[T]) (*Chunk[T], error) {
	geom := src.Geometry()
	switch f.Encoding {
	case Uniform:
		v, err := uniformValue(src)
		if err != nil {
			return nil, err
		}
		geom.Default = v
	case Hybrid:
		geom.Default = Dominant(src)
	case CoordSet:
		if isNaN(geom.NoData) {
			// NaN cannot key the map, so it has to be the implicit value.
			geom.Default = geom.NoData
		} else {
			geom.Default = Dominant(src)
		}
	}
	if err := f.validate(geom); err != nil {
		return nil, err
	}
	c := newChunk(src.ID(), geom, f.Encoding, f.Budget, f.Hybrid)
	if err := c.InitData(); err != nil {
		return nil, err
	}
	if f.Encoding != Uniform {
		for r := 0; r < geom.Rows; r++ {
			for col := 0; col < geom.Cols; col++ {
				if err := c.InitCell(r, col, src.Cell(r, col)); err != nil {
					c.ClearData()
					return nil, errors.Wrapf(err, "copy %s to %s", src.Encoding(), f.Encoding)
				}
			}
		}
	}
	c.upToDate = false
	return c, nil
}

func uniformValue[T Value](src *Chunk[T]) (T, error) {
	first := src.Cell(0, 0)
	for r := 0; r < src.Rows(); r++ {
		for col := 0; col < src.Cols(); col++ {
			if v := src.Cell(r, col); !same(v, first) {
				return first, errors.Wrapf(ErrNotUniform, "chunk %s holds %v and %v", src.ID(), first, v)
			}
		}
	}
	return first, nil
}

// Choose picks the cheapest encoding for the content of src: Uniform for a
// single value, Packed64 when the chunk fits a word, Hybrid when one value
// covers at least half of the cells, Dense otherwise.
func Choose[T Value](src *Chunk[T]) Encoding {
	hist := src.Histogram()
	missing := src.geom.Cells()
	top := 0
	for _, r := range hist {
		if isNaN(r.Value) {
			// Only the dense layout stores NaN other than no-data.
			return Dense
		}
		missing -= r.Count
		top = max(top, r.Count)
	}
	distinct := len(hist)
	if missing > 0 {
		distinct++
	}
	switch {
	case distinct <= 1:
		return Uniform
	case src.geom.Cells() <= MaxPackedCells:
		return Packed64
	case 2*max(top, missing) >= src.geom.Cells():
		return Hybrid
	}
	return Dense
}

// Dominant returns the most frequent value of src, preferring no-data on
// ties.
func Dominant[T Value](src *Chunk[T]) T {
	best, bestN := src.NoData(), 0
	for _, r := range src.Histogram() {
		if r.Count > bestN {
			best, bestN = r.Value, r.Count
		}
	}
	if int64(bestN) <= int64(src.geom.Cells())-src.NonMissingCount() {
		return src.NoData()
	}
	return best
}
