// Package chunk implements the fixed-size cell blocks a grid is partitioned
// into.
//
// A Chunk is a single concrete type whose payload is one of a closed set of
// encodings:
//
//	Dense     one value per cell, row-major
//	Uniform   one scalar standing for every cell
//	Packed64  value -> 64-bit position mask, chunks of at most 64 cells
//	Hybrid    no-data bitset + value -> offset bitset | coordinate list, implicit default
//	CoordSet  value -> single position | position set, implicit default
//
// All encodings honour the same contract (Cell, InitCell, SetCell, ClearData,
// InitData, Iterator and the statistics methods), so callers never need to
// know which encoding or residency state a chunk is in.
//
// Chunk methods are the raw operations: they never retry. Every mutation that
// may grow a payload first reserves its worst-case growth from the injected
// Budget and fails with the budget's error before touching any state. The
// grid wraps these calls in the memory package's retry loop, which evicts
// other chunks and tries again.
//
// Chunks are not safe for concurrent use. Iterators over map encodings work
// on a snapshot taken at creation, so later writes never invalidate them.
package chunk
