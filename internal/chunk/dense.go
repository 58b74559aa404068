package chunk

// dense stores one value per cell in a flat row-major slice.
type dense[T Value] struct {
	cells []T
}

func newDense[T Value](geom Geometry[T]) *dense[T] {
	cells := make([]T, geom.Cells())
	for i := range cells {
		cells[i] = geom.Default
	}
	return &dense[T]{cells: cells}
}

func (d *dense[T]) encoding() Encoding { return Dense }

func (d *dense[T]) get(pos int) T {
	return d.cells[pos]
}

func (d *dense[T]) set(pos int, v T) (T, error) {
	prev := d.cells[pos]
	d.cells[pos] = v
	return prev, nil
}

func (d *dense[T]) growth(int, T) int64 { return 0 }

func (d *dense[T]) footprint() int64 {
	return int64(len(d.cells)) * valueSize[T]()
}
