package chunk

import (
	"fmt"
	"math/bits"
)

// MaxPackedCells is the largest chunk a Packed64 payload can address.
const MaxPackedCells = 64

// ID identifies a chunk by its chunk-row and chunk-column index in the grid.
type ID struct {
	Row int32
	Col int32
}

func (id ID) String() string {
	return fmt.Sprintf("(%d,%d)", id.Row, id.Col)
}

// Less orders IDs row-major.
func (id ID) Less(o ID) bool {
	if id.Row != o.Row {
		return id.Row < o.Row
	}
	return id.Col < o.Col
}

// Pos maps a chunk-local (row, col) to its row-major linear position.
func Pos(row, col, cols int) int {
	return row*cols + col
}

// RowCol is the inverse of Pos.
func RowCol(pos, cols int) (row, col int) {
	return pos / cols, pos % cols
}

// InRange reports whether (row, col) addresses a cell of a rows x cols chunk.
func InRange(row, col, rows, cols int) bool {
	return row >= 0 && row < rows && col >= 0 && col < cols
}

// bitAt returns the mask selecting position pos of a packed word.
func bitAt(pos int) uint64 {
	return uint64(1) << uint(pos)
}

// fullMask returns a word with the low n bits set.
func fullMask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return bitAt(n) - 1
}

// ceilPow2 rounds n up to a power of two, used as map capacity hint.
func ceilPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// bitsetWords is the number of 64-bit words needed for n bits.
func bitsetWords(n int) int {
	return (n + 63) / 64
}
