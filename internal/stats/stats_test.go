package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource[T Number] struct {
	cells  []T
	noData T
}

func (s sliceSource[T]) Len() int   { return len(s.cells) }
func (s sliceSource[T]) At(i int) T { return s.cells[i] }
func (s sliceSource[T]) NoData() T  { return s.noData }

// runSource reports its content as runs in the given, unsorted order.
type runSource[T Number] struct {
	sliceSource[T]
	runs []Run[T]
}

func (s runSource[T]) EachRun(fn func(v T, n int) bool) {
	for _, r := range s.runs {
		if !fn(r.Value, r.Count) {
			return
		}
	}
}

func TestReductions(t *testing.T) {
	cells := sliceSource[int32]{cells: []int32{1, 1, 2, 2, 2, 3, -9999, -9999}, noData: -9999}
	runs := runSource[int32]{
		sliceSource: cells,
		runs:        []Run[int32]{{3, 1}, {-9999, 2}, {2, 1}, {1, 2}, {2, 2}, {7, 0}},
	}

	for name, src := range map[string]Source[int32]{"cells": cells, "runs": runs} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, int64(6), Count(src))
			assert.Equal(t, 11.0, Sum(src))
			assert.Equal(t, []int32{2}, Mode(src))

			median, ok := Median(src)
			require.True(t, ok)
			assert.Equal(t, 2.0, median)

			mn, ok := Min(src)
			require.True(t, ok)
			assert.Equal(t, int32(1), mn)
			mx, ok := Max(src)
			require.True(t, ok)
			assert.Equal(t, int32(3), mx)

			mean, ok := Mean(src, 3)
			require.True(t, ok)
			assert.Equal(t, 1.833, mean)

			sd, ok := StdDev(src, 4)
			require.True(t, ok)
			assert.Equal(t, 0.7528, sd)

			assert.Equal(t, []Run[int32]{{1, 2}, {2, 3}, {3, 1}}, Histogram(src))
		})
	}
}

func TestMode_Ties(t *testing.T) {
	src := sliceSource[float64]{cells: []float64{4, 1, 4, 1, 9, -1}, noData: -1}
	assert.Equal(t, []float64{1, 4}, Mode(src))
}

func TestMedian_EvenUsesExactAverage(t *testing.T) {
	src := sliceSource[float64]{cells: []float64{0.1, 0.2}, noData: math.NaN()}
	median, ok := Median(src)
	require.True(t, ok)
	assert.Equal(t, 0.15, median)

	big := sliceSource[int64]{cells: []int64{math.MaxInt64, math.MaxInt64 - 1}, noData: 0}
	median, ok = Median(big)
	require.True(t, ok)
	assert.Equal(t, float64(math.MaxInt64), median)
}

func TestEmpty(t *testing.T) {
	src := sliceSource[float32]{cells: []float32{-1, -1}, noData: -1}
	assert.Zero(t, Count(src))
	assert.Zero(t, Sum(src))
	assert.Empty(t, Mode(src))
	for _, f := range []func() (float64, bool){
		func() (float64, bool) { return Median(src) },
		func() (float64, bool) { return Mean(src, 2) },
		func() (float64, bool) { return StdDev(src, 2) },
	} {
		_, ok := f()
		assert.False(t, ok)
	}
	_, ok := Min(src)
	assert.False(t, ok)
}

func TestNaNNoData(t *testing.T) {
	nan := math.NaN()
	src := sliceSource[float64]{cells: []float64{nan, 2, nan, 4}, noData: nan}
	assert.Equal(t, int64(2), Count(src))
	assert.Equal(t, 6.0, Sum(src))
	mean, ok := Mean(src, 0)
	require.True(t, ok)
	assert.Equal(t, 3.0, mean)
}

func TestSum_IsExact(t *testing.T) {
	cells := make([]float64, 10)
	for i := range cells {
		cells[i] = 0.1
	}
	assert.Equal(t, 1.0, Sum(sliceSource[float64]{cells: cells, noData: -1}))
}

func TestSum_Infinity(t *testing.T) {
	src := sliceSource[float64]{cells: []float64{1, math.Inf(1)}, noData: -1}
	assert.True(t, math.IsInf(Sum(src), 1))
}

func TestSummary_Merge(t *testing.T) {
	a := Summarize[int64](sliceSource[int64]{cells: []int64{5, -2, 0}, noData: 0})
	b := Summarize[int64](sliceSource[int64]{cells: []int64{10, 0, 0}, noData: 0})
	snapshot := a.SumFloat()

	var total Summary[int64]
	total.Merge(a)
	total.Merge(b)
	total.Merge(Summary[int64]{})

	assert.Equal(t, int64(3), total.Count)
	assert.Equal(t, int64(-2), total.Min)
	assert.Equal(t, int64(10), total.Max)
	assert.Equal(t, 13.0, total.SumFloat())
	assert.Equal(t, snapshot, a.SumFloat(), "merge must not alias the source sum")

	mean, ok := total.Mean(2)
	require.True(t, ok)
	assert.Equal(t, 4.33, mean)
}
