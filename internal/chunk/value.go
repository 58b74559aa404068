package chunk

import (
	"unsafe"

	"github.com/hupe1980/gridstore/internal/stats"
)

// Value is the set of cell value types a chunk can hold.
type Value interface {
	stats.Number
}

func same[T Value](a, b T) bool {
	return stats.Same(a, b)
}

func isNaN[T Value](v T) bool {
	return v != v
}

func isFloat[T Value]() bool {
	var one T = 1
	return one/2 != 0
}

func valueSize[T Value]() int64 {
	var v T
	return int64(unsafe.Sizeof(v))
}
