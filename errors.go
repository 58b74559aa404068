package gridstore

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/gridstore/blobstore"
	"github.com/hupe1980/gridstore/internal/chunk"
	"github.com/hupe1980/gridstore/internal/memory"
	"github.com/hupe1980/gridstore/internal/swap"
)

var (
	// ErrClosed is returned by every method of a closed Grid.
	ErrClosed = errors.New("gridstore: grid is closed")

	// ErrOutOfMemory is returned when an operation does not fit the memory
	// limit even after evicting every other chunk.
	ErrOutOfMemory = errors.New("gridstore: out of memory")

	// ErrCapacityExceeded is returned when a Packed64 chunk would hold more
	// than 64 cells.
	ErrCapacityExceeded = errors.New("gridstore: chunk exceeds encoding capacity")

	// ErrUnsupportedMutation is returned when a Uniform chunk would need a
	// second value and the grid cannot re-encode it.
	ErrUnsupportedMutation = errors.New("gridstore: uniform chunk cannot change value")

	// ErrNotUniform is returned when re-encoding a chunk with several values
	// as Uniform.
	ErrNotUniform = errors.New("gridstore: chunk is not uniform")

	// ErrInvalidValue is returned for NaN writes an encoding cannot hold.
	ErrInvalidValue = errors.New("gridstore: invalid cell value")

	// ErrCorrupt is returned when a swapped chunk cannot be read back.
	ErrCorrupt = errors.New("gridstore: corrupt chunk blob")
)

// ErrOutOfBounds indicates a cell or chunk address outside the grid.
type ErrOutOfBounds struct {
	Row, Col   int
	Rows, Cols int
}

func (e *ErrOutOfBounds) Error() string {
	return fmt.Sprintf("gridstore: (%d,%d) outside %dx%d", e.Row, e.Col, e.Rows, e.Cols)
}

// ErrInvalidConfig indicates an unusable option combination.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidConfig struct {
	Reason string
	cause  error
}

func (e *ErrInvalidConfig) Error() string {
	return "gridstore: invalid config: " + e.Reason
}

func (e *ErrInvalidConfig) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case memory.IsOutOfMemory(err):
		return errors.Mark(err, ErrOutOfMemory)
	case errors.Is(err, chunk.ErrCapacityExceeded):
		return errors.Mark(err, ErrCapacityExceeded)
	case errors.Is(err, chunk.ErrUnsupportedMutation):
		return errors.Mark(err, ErrUnsupportedMutation)
	case errors.Is(err, chunk.ErrNotUniform):
		return errors.Mark(err, ErrNotUniform)
	case errors.Is(err, chunk.ErrInvalidValue):
		return errors.Mark(err, ErrInvalidValue)
	case errors.IsAny(err, chunk.ErrCorrupt, chunk.ErrGeometryMismatch,
		swap.ErrBadFrame, swap.ErrChecksum, blobstore.ErrNotFound):
		return errors.Mark(err, ErrCorrupt)
	}
	return err
}
