package chunk

import "github.com/cockroachdb/errors"

// uniform stands for a chunk in which every cell holds the same value.
type uniform[T Value] struct {
	value T
	n     int
}

func newUniform[T Value](geom Geometry[T]) *uniform[T] {
	return &uniform[T]{value: geom.Default, n: geom.Cells()}
}

func (u *uniform[T]) encoding() Encoding { return Uniform }

func (u *uniform[T]) get(int) T { return u.value }

func (u *uniform[T]) set(pos int, v T) (T, error) {
	if !same(u.value, v) {
		return u.value, errors.Wrapf(ErrUnsupportedMutation, "position %d: %v -> %v", pos, u.value, v)
	}
	return u.value, nil
}

func (u *uniform[T]) growth(int, T) int64 { return 0 }

func (u *uniform[T]) footprint() int64 { return valueSize[T]() }

func (u *uniform[T]) eachRun(fn func(v T, n int) bool) {
	fn(u.value, u.n)
}
