package chunk

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// countingBudget never refuses and tracks the bytes in use.
type countingBudget struct {
	used int64
}

func (b *countingBudget) AcquireMemory(n int64) error {
	b.used += n
	return nil
}

func (b *countingBudget) ReleaseMemory(n int64) {
	b.used -= n
}

type MockBudget struct {
	mock.Mock
}

func (m *MockBudget) AcquireMemory(n int64) error {
	return m.Called(n).Error(0)
}

func (m *MockBudget) ReleaseMemory(n int64) {
	m.Called(n)
}

var errNoMemory = errors.New("no memory")

func geom16(def float64) Geometry[float64] {
	return Geometry[float64]{Rows: 4, Cols: 4, NoData: -9999, Default: def}
}

func TestFactory_Empty(t *testing.T) {
	for _, enc := range Encodings {
		t.Run(enc.String(), func(t *testing.T) {
			budget := &countingBudget{}
			c, err := Factory[float64]{Encoding: enc, Budget: budget}.Empty(geom16(0), ID{Row: 1, Col: 2})
			require.NoError(t, err)

			assert.Equal(t, enc, c.Encoding())
			assert.Equal(t, ID{Row: 1, Col: 2}, c.ID())
			assert.True(t, c.Resident())
			assert.True(t, c.UpToDate())
			assert.Equal(t, budget.used, c.Footprint())
			for r := 0; r < 4; r++ {
				for col := 0; col < 4; col++ {
					assert.Equal(t, 0.0, c.Cell(r, col))
				}
			}
			assert.Equal(t, -9999.0, c.Cell(-1, 0))
			assert.Equal(t, -9999.0, c.Cell(0, 4))

			c.ClearData()
			assert.False(t, c.Resident())
			assert.Zero(t, budget.used)
		})
	}
}

func TestFactory_InvalidGeometry(t *testing.T) {
	_, err := Factory[int32]{Encoding: Dense}.Empty(Geometry[int32]{Rows: 0, Cols: 3}, ID{})
	require.Error(t, err)

	_, err = Factory[float32]{Encoding: Packed64}.Empty(Geometry[float32]{Rows: 8, Cols: 9}, ID{})
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	nan := float32(0)
	nan /= nan
	_, err = Factory[float32]{Encoding: Hybrid}.Empty(Geometry[float32]{Rows: 2, Cols: 2, Default: nan}, ID{})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestFactory_Attach(t *testing.T) {
	c, err := Factory[int64]{Encoding: Hybrid}.Attach(Geometry[int64]{Rows: 2, Cols: 2, NoData: -1}, ID{Row: 3})
	require.NoError(t, err)
	assert.False(t, c.Resident())
	assert.Zero(t, c.Footprint())
	assert.Panics(t, func() { c.Cell(0, 0) })
}

// TestSetCell_Consistency drives every encoding with the same random writes
// and compares each against a plain slice.
func TestSetCell_Consistency(t *testing.T) {
	values := []float64{-9999, 0, 1, 2, 3, 7.5, 42, -3}
	for _, enc := range []Encoding{Dense, Packed64, Hybrid, CoordSet} {
		t.Run(enc.String(), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(1, uint64(enc)))
			geom := Geometry[float64]{Rows: 8, Cols: 8, NoData: -9999, Default: 0}
			budget := &countingBudget{}
			c, err := Factory[float64]{Encoding: enc, Budget: budget}.Empty(geom, ID{})
			require.NoError(t, err)

			want := make([]float64, geom.Cells())
			for i := 0; i < 2000; i++ {
				pos := rng.IntN(len(want))
				v := values[rng.IntN(len(values))]
				r, col := RowCol(pos, geom.Cols)

				prev, err := c.SetCell(r, col, v)
				require.NoError(t, err)
				require.Equal(t, want[pos], prev, "write %d at %d", i, pos)
				want[pos] = v
				require.Equal(t, v, c.Cell(r, col))
				require.Equal(t, budget.used, c.Footprint())
			}

			for pos, v := range want {
				r, col := RowCol(pos, geom.Cols)
				assert.Equal(t, v, c.Cell(r, col))
			}

			ref, err := Factory[float64]{Encoding: Dense}.Empty(geom, ID{})
			require.NoError(t, err)
			for pos, v := range want {
				r, col := RowCol(pos, geom.Cols)
				require.NoError(t, ref.InitCell(r, col, v))
			}
			assert.Equal(t, ref.NonMissingCount(), c.NonMissingCount())
			assert.Equal(t, ref.Sum(), c.Sum())
			assert.Equal(t, ref.Mode(), c.Mode())
			assertSameFloat(t, ref.Median)(c.Median())
			assertSameFloat(t, func() (float64, bool) { return ref.Mean(6) })(c.Mean(6))
			assertSameFloat(t, func() (float64, bool) { return ref.StdDev(6) })(c.StdDev(6))

			var iterated []float64
			for v := range c.All() {
				iterated = append(iterated, v)
			}
			sorted := slices.Clone(want)
			slices.Sort(sorted)
			slices.SortStableFunc(iterated, func(a, b float64) int {
				switch {
				case a < b:
					return -1
				case a > b:
					return 1
				}
				return 0
			})
			assert.Equal(t, sorted, iterated)

			c.ClearData()
			assert.Zero(t, budget.used)
		})
	}
}

func assertSameFloat(t *testing.T, want func() (float64, bool)) func(float64, bool) {
	return func(got float64, ok bool) {
		t.Helper()
		w, wok := want()
		assert.Equal(t, wok, ok)
		assert.InDelta(t, w, got, 0)
	}
}

func TestHybrid_SingleClassification(t *testing.T) {
	geom := Geometry[int32]{Rows: 16, Cols: 16, NoData: -1, Default: 0}
	c, err := Factory[int32]{Encoding: Hybrid, Hybrid: HybridOptions{SparseRatio: 0.05, PromoteAt: 4}}.Empty(geom, ID{})
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 7))
	for i := 0; i < 3000; i++ {
		pos := rng.IntN(geom.Cells())
		r, col := RowCol(pos, geom.Cols)
		_, err := c.SetCell(r, col, int32(rng.IntN(6))-1)
		require.NoError(t, err)

		h := c.p.(*hybrid[int32])
		u := uint(pos)
		n := 0
		for _, in := range []bool{h.noDataBS.Test(u), h.inBits.Test(u), h.inCoords.Test(u)} {
			if in {
				n++
			}
		}
		require.LessOrEqual(t, n, 1, "position %d", pos)
		require.Equal(t, n == 0, c.Cell(r, col) == 0)
	}

	h := c.p.(*hybrid[int32])
	h.coords.All(func(v int32, l *coordList) bool {
		assert.LessOrEqual(t, len(l.pos), 4, "coordinate list of %d not promoted", v)
		assert.NotEmpty(t, l.pos)
		return true
	})
	h.bits.All(func(v int32, o *offsetBits) bool {
		assert.False(t, o.bm.IsEmpty(), "empty offset bitset of %d", v)
		return true
	})
}

func TestCoordSet_PromoteDemote(t *testing.T) {
	geom := Geometry[int64]{Rows: 2, Cols: 2, NoData: -1, Default: -1}
	c, err := Factory[int64]{Encoding: CoordSet}.Empty(geom, ID{})
	require.NoError(t, err)
	cs := c.p.(*coordSet[int64])

	_, err = c.SetCell(0, 0, 5)
	require.NoError(t, err)
	l, ok := cs.locs.Get(5)
	require.True(t, ok)
	assert.Nil(t, l.many)

	_, err = c.SetCell(1, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 3}, l.many)

	_, err = c.SetCell(0, 0, 6)
	require.NoError(t, err)
	assert.Nil(t, l.many)
	assert.Equal(t, uint32(3), l.one)

	_, err = c.SetCell(1, 1, -1)
	require.NoError(t, err)
	_, ok = cs.locs.Get(5)
	assert.False(t, ok)
	assert.Equal(t, [][]int64{{6, -1}, {-1, -1}}, c.To2DArray())
}

func TestSetCell_BudgetRefusal(t *testing.T) {
	for _, enc := range []Encoding{Packed64, Hybrid, CoordSet} {
		t.Run(enc.String(), func(t *testing.T) {
			budget := new(MockBudget)
			budget.On("AcquireMemory", mock.Anything).Return(nil).Once()
			c, err := Factory[int32]{Encoding: enc, Budget: budget}.Empty(Geometry[int32]{Rows: 4, Cols: 4, NoData: -1, Default: -1}, ID{})
			require.NoError(t, err)
			charged := c.Footprint()

			budget.On("AcquireMemory", mock.Anything).Return(errNoMemory).Once()
			_, err = c.SetCell(1, 1, 9)
			assert.ErrorIs(t, err, errNoMemory)
			assert.Equal(t, int32(-1), c.Cell(1, 1))
			assert.True(t, c.UpToDate())
			assert.Equal(t, charged, c.Footprint())

			budget.On("AcquireMemory", mock.Anything).Return(nil).Once()
			budget.On("ReleaseMemory", mock.Anything).Return().Maybe()
			prev, err := c.SetCell(1, 1, 9)
			require.NoError(t, err)
			assert.Equal(t, int32(-1), prev)
			assert.Equal(t, int32(9), c.Cell(1, 1))
			budget.AssertExpectations(t)
		})
	}
}

func TestIterator(t *testing.T) {
	t.Run("DenseIsLive", func(t *testing.T) {
		c, err := Factory[int32]{Encoding: Dense}.Empty(Geometry[int32]{Rows: 1, Cols: 3, NoData: -1, Default: -1}, ID{})
		require.NoError(t, err)
		it := c.Iterator()
		v, err := it.Next()
		require.NoError(t, err)
		assert.Equal(t, int32(-1), v)

		_, err = c.SetCell(0, 2, 4)
		require.NoError(t, err)
		_, _ = it.Next()
		v, err = it.Next()
		require.NoError(t, err)
		assert.Equal(t, int32(4), v)

		assert.False(t, it.HasNext())
		_, err = it.Next()
		assert.ErrorIs(t, err, ErrIterationDone)
	})

	t.Run("MapIsSnapshot", func(t *testing.T) {
		c, err := Factory[int32]{Encoding: CoordSet}.Empty(Geometry[int32]{Rows: 1, Cols: 3, NoData: -1, Default: -1}, ID{})
		require.NoError(t, err)
		_, err = c.SetCell(0, 0, 2)
		require.NoError(t, err)

		it := c.Iterator()
		_, err = c.SetCell(0, 0, 3)
		require.NoError(t, err)

		var got []int32
		for it.HasNext() {
			v, err := it.Next()
			require.NoError(t, err)
			got = append(got, v)
		}
		assert.Equal(t, []int32{2, -1, -1}, got)
		_, err = it.Next()
		assert.ErrorIs(t, err, ErrIterationDone)

		// A fresh iterator sees the write.
		assert.Equal(t, []int32{3, -1, -1}, slices.Collect(c.All()))
	})
}

func TestChunk_Stats(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		c, err := Factory[int32]{Encoding: Hybrid}.Empty(Geometry[int32]{Rows: 2, Cols: 2, NoData: -1, Default: -1}, ID{})
		require.NoError(t, err)
		assert.Zero(t, c.NonMissingCount())
		assert.Zero(t, c.Sum())
		assert.Empty(t, c.Mode())
		_, ok := c.Median()
		assert.False(t, ok)
		_, ok = c.Mean(2)
		assert.False(t, ok)
		_, ok = c.Min()
		assert.False(t, ok)
	})

	t.Run("ExactDecimalSum", func(t *testing.T) {
		c, err := Factory[float64]{Encoding: Dense}.Empty(Geometry[float64]{Rows: 1, Cols: 3, NoData: -9999}, ID{})
		require.NoError(t, err)
		for i, v := range []float64{0.1, 0.2, 0.3} {
			require.NoError(t, c.InitCell(0, i, v))
		}
		assert.Equal(t, 0.6, c.Sum())
		mean, ok := c.Mean(2)
		require.True(t, ok)
		assert.Equal(t, 0.2, mean)
	})

	t.Run("HalfEvenMean", func(t *testing.T) {
		c, err := Factory[int64]{Encoding: Packed64}.Empty(Geometry[int64]{Rows: 1, Cols: 4, NoData: -1}, ID{})
		require.NoError(t, err)
		for i, v := range []int64{1, 2, 2, 0} {
			require.NoError(t, c.InitCell(0, i, v))
		}
		// 5/4 = 1.25 rounds to the even neighbour.
		mean, ok := c.Mean(1)
		require.True(t, ok)
		assert.Equal(t, 1.2, mean)

		sum := c.Summary()
		assert.Equal(t, int64(4), sum.Count)
		assert.Equal(t, int64(0), sum.Min)
		assert.Equal(t, int64(2), sum.Max)
	})

	t.Run("SingleValueStdDev", func(t *testing.T) {
		c, err := Factory[float32]{Encoding: Uniform}.Empty(Geometry[float32]{Rows: 1, Cols: 1, NoData: -1, Default: 3}, ID{})
		require.NoError(t, err)
		_, ok := c.StdDev(3)
		assert.False(t, ok)
	})
}

func TestCodec(t *testing.T) {
	geom := Geometry[float32]{Rows: 3, Cols: 5, NoData: -1, Default: 0}
	for _, enc := range []Encoding{Dense, Packed64, Hybrid, CoordSet} {
		t.Run(enc.String(), func(t *testing.T) {
			src, err := Factory[float32]{Encoding: enc}.Empty(geom, ID{Row: 2})
			require.NoError(t, err)
			for pos, v := range []float32{1, 1, 2, -1, 0, 3.5, 3.5, 3.5, 0, 0, -1, 8, 0, 0, 1} {
				r, col := RowCol(pos, geom.Cols)
				_, err := src.SetCell(r, col, v)
				require.NoError(t, err)
			}
			blob, err := src.MarshalBinary()
			require.NoError(t, err)

			budget := &countingBudget{}
			dst, err := Factory[float32]{Encoding: Dense, Budget: budget}.Attach(geom, ID{Row: 2})
			require.NoError(t, err)
			require.NoError(t, dst.UnmarshalBinary(blob))
			assert.Equal(t, enc, dst.Encoding())
			assert.True(t, dst.UpToDate())
			assert.Equal(t, src.To2DArray(), dst.To2DArray())
			assert.Equal(t, budget.used, dst.Footprint())

			for n := 0; n < len(blob); n++ {
				shell, err := Factory[float32]{Encoding: Dense}.Attach(geom, ID{})
				require.NoError(t, err)
				assert.Error(t, shell.UnmarshalBinary(blob[:n]), "truncated to %d bytes", n)
			}
		})
	}

	t.Run("GeometryMismatch", func(t *testing.T) {
		src, err := Factory[int32]{Encoding: Dense}.Empty(Geometry[int32]{Rows: 2, Cols: 2}, ID{})
		require.NoError(t, err)
		blob, err := src.MarshalBinary()
		require.NoError(t, err)
		dst, err := Factory[int32]{Encoding: Dense}.Attach(Geometry[int32]{Rows: 2, Cols: 3}, ID{})
		require.NoError(t, err)
		assert.ErrorIs(t, dst.UnmarshalBinary(blob), ErrGeometryMismatch)
	})

	t.Run("ValueSizeMismatch", func(t *testing.T) {
		src, err := Factory[int32]{Encoding: Uniform}.Empty(Geometry[int32]{Rows: 2, Cols: 2}, ID{})
		require.NoError(t, err)
		blob, err := src.MarshalBinary()
		require.NoError(t, err)
		dst, err := Factory[int64]{Encoding: Uniform}.Attach(Geometry[int64]{Rows: 2, Cols: 2}, ID{})
		require.NoError(t, err)
		assert.ErrorIs(t, dst.UnmarshalBinary(blob), ErrCorrupt)
	})

	t.Run("OverlappingPositions", func(t *testing.T) {
		src, err := Factory[int32]{Encoding: CoordSet}.Empty(Geometry[int32]{Rows: 1, Cols: 4}, ID{})
		require.NoError(t, err)
		_, err = src.SetCell(0, 1, 5)
		require.NoError(t, err)
		_, err = src.SetCell(0, 2, 6)
		require.NoError(t, err)
		blob, err := src.MarshalBinary()
		require.NoError(t, err)
		// Point the second entry at the position of the first.
		blob[len(blob)-1-3] = 1
		dst, err := Factory[int32]{Encoding: CoordSet}.Attach(Geometry[int32]{Rows: 1, Cols: 4}, ID{})
		require.NoError(t, err)
		assert.ErrorIs(t, dst.UnmarshalBinary(blob), ErrCorrupt)
	})
}

func TestParseEncoding(t *testing.T) {
	for _, enc := range Encodings {
		got, err := ParseEncoding(enc.String())
		require.NoError(t, err)
		assert.Equal(t, enc, got)
	}
	_, err := ParseEncoding("sparse")
	assert.Error(t, err)
}

func TestChoose(t *testing.T) {
	geom := Geometry[int32]{Rows: 10, Cols: 10, NoData: -1, Default: -1}
	c, err := Factory[int32]{Encoding: Dense}.Empty(geom, ID{})
	require.NoError(t, err)
	assert.Equal(t, Uniform, Choose(c))

	for i := 0; i < 30; i++ {
		require.NoError(t, c.InitCell(i/10, i%10, int32(i)))
	}
	assert.Equal(t, Hybrid, Choose(c))
	assert.Equal(t, int32(-1), Dominant(c))

	for i := 30; i < 100; i++ {
		require.NoError(t, c.InitCell(i/10, i%10, int32(i)))
	}
	assert.Equal(t, Dense, Choose(c))
}

// chunkStats collects every statistic a chunk reports.
type chunkStats[T Value] struct {
	Count    int64
	Sum      float64
	Min, Max T
	MinOK    bool
	MaxOK    bool
	Mean     float64
	MeanOK   bool
	Mode     []T
	Median   float64
	MedianOK bool
	StdDev   float64
	StdDevOK bool
}

func statsOf[T Value](c *Chunk[T]) chunkStats[T] {
	s := chunkStats[T]{Count: c.NonMissingCount(), Sum: c.Sum(), Mode: c.Mode()}
	s.Min, s.MinOK = c.Min()
	s.Max, s.MaxOK = c.Max()
	s.Mean, s.MeanOK = c.Mean(6)
	s.Median, s.MedianOK = c.Median()
	s.StdDev, s.StdDevOK = c.StdDev(6)
	return s
}

// testConvertAll builds cells in every source encoding and copies the result
// into every target encoding. Each copy must read back cell for cell and
// report the same statistics.
func testConvertAll[T Value](t *testing.T, rows, cols int, noData T, cells []T) {
	t.Helper()
	geom := Geometry[T]{Rows: rows, Cols: cols, NoData: noData, Default: noData}
	ref, err := Factory[T]{Encoding: Dense}.Empty(geom, ID{Row: 3, Col: 4})
	require.NoError(t, err)
	for i, v := range cells {
		_, err := ref.SetCell(i/cols, i%cols, v)
		require.NoError(t, err)
	}
	want := statsOf(ref)
	uniform := Choose(ref) == Uniform

	check := func(t *testing.T, c *Chunk[T]) {
		t.Helper()
		assert.Equal(t, ref.ID(), c.ID())
		for i, v := range cells {
			got := c.Cell(i/cols, i%cols)
			assert.True(t, same(v, got), "cell %d: want %v, got %v", i, v, got)
		}
		assert.Equal(t, want, statsOf(c))
	}

	for _, from := range Encodings {
		t.Run(from.String(), func(t *testing.T) {
			src, err := Factory[T]{Encoding: from}.From(ref)
			if from == Uniform && !uniform {
				require.ErrorIs(t, err, ErrNotUniform)
				return
			}
			require.NoError(t, err)
			check(t, src)

			for _, to := range Encodings {
				t.Run(to.String(), func(t *testing.T) {
					dst, err := Factory[T]{Encoding: to}.From(src)
					if to == Uniform && !uniform {
						require.ErrorIs(t, err, ErrNotUniform)
						return
					}
					require.NoError(t, err)
					check(t, dst)
				})
			}
		})
	}
}

func TestFactory_FromEveryEncoding(t *testing.T) {
	nan := math.NaN()

	t.Run("IntSentinel", func(t *testing.T) {
		testConvertAll(t, 2, 4, int32(-9999), []int32{0, 0, 0, 0, 0, 1, -9999, -9999})
	})
	t.Run("IntUniform", func(t *testing.T) {
		testConvertAll(t, 2, 3, int64(-1), []int64{7, 7, 7, 7, 7, 7})
	})
	t.Run("NaNSentinel", func(t *testing.T) {
		testConvertAll(t, 2, 4, nan, []float64{0, 0, 0, 0, 0, 1, nan, nan})
	})
	t.Run("NaNMostlyMissing", func(t *testing.T) {
		testConvertAll(t, 3, 3, nan, []float64{nan, nan, nan, 2.5, nan, nan, nan, -1, 2.5})
	})
	t.Run("NaNAllMissing", func(t *testing.T) {
		testConvertAll(t, 2, 2, float32(math.NaN()), []float32{
			float32(math.NaN()), float32(math.NaN()), float32(math.NaN()), float32(math.NaN()),
		})
	})
}
