// Package stats implements the cell statistics shared by every chunk encoding.
//
// Reductions are written once against the Source capability (cell count plus
// positional access). A source that can also enumerate its content as
// (value, count) runs implements Runs and is reduced in O(distinct values)
// instead of O(cells):
//
//	┌──────────────┐   At(i)    ┌───────────────┐
//	│ dense chunk  │ ─────────► │               │
//	└──────────────┘            │  histogram()  │ ──► Count/Sum/Min/Max
//	┌──────────────┐  EachRun   │ sorted runs   │ ──► Mean/Mode/Median/StdDev
//	│ map encodings│ ─────────► │               │
//	└──────────────┘            └───────────────┘
//
// Sums, means and deviations are accumulated with arbitrary-precision decimals
// and rounded half-to-even at a caller supplied number of fractional digits.
// Conversion to float64 is always the last step, so every encoding holding the
// same logical cells reports bit-identical results.
//
// Cells equal to the source's no-data sentinel are ignored everywhere. When no
// cell remains the reductions report ok=false instead of a sentinel.
package stats
