package chunk

import "github.com/cockroachdb/errors"

var (
	// ErrCapacityExceeded is returned when a Packed64 chunk is requested for
	// more than MaxPackedCells cells.
	ErrCapacityExceeded = errors.New("chunk: packed encoding holds at most 64 cells")

	// ErrUnsupportedMutation is returned when a Uniform chunk is asked to hold
	// a second value. The chunk has to be re-encoded first.
	ErrUnsupportedMutation = errors.New("chunk: uniform chunk cannot change value")

	// ErrNotUniform is returned when converting a chunk with more than one
	// value to the Uniform encoding.
	ErrNotUniform = errors.New("chunk: source is not uniform")

	// ErrInvalidValue is returned for NaN writes that are not the no-data
	// sentinel in map encodings.
	ErrInvalidValue = errors.New("chunk: NaN is only valid as the no-data value")

	// ErrOutOfRange is returned when writing outside the chunk.
	ErrOutOfRange = errors.New("chunk: cell out of range")

	// ErrIterationDone is returned by Iterator.Next once exhausted.
	ErrIterationDone = errors.New("chunk: iteration done")

	// ErrCorrupt is returned when a payload blob cannot be decoded.
	ErrCorrupt = errors.New("chunk: corrupt payload")

	// ErrGeometryMismatch is returned when a payload blob was written for a
	// chunk of different dimensions.
	ErrGeometryMismatch = errors.New("chunk: payload geometry mismatch")
)
