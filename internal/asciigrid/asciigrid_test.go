package asciigrid

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `ncols 3
nrows 2
xllcorner 100.5
yllcorner -20
cellsize 0.25
NODATA_value -9999
1 2 -9999
4.5 5 6
`

func readAll(t *testing.T, r *Reader) []float64 {
	t.Helper()
	var vals []float64
	for {
		v, err := r.Next()
		if err == io.EOF {
			return vals
		}
		require.NoError(t, err)
		vals = append(vals, v)
	}
}

func TestReader(t *testing.T) {
	r, err := NewReader(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, Header{
		NCols: 3, NRows: 2, XLL: 100.5, YLL: -20, CellSize: 0.25,
		NoData: -9999, HasNoData: true,
	}, r.Header())
	assert.Equal(t, []float64{1, 2, -9999, 4.5, 5, 6}, readAll(t, r))
}

func TestReader_DefaultsAndCenter(t *testing.T) {
	src := "NCOLS 2\nNROWS 1\nXLLCENTER 0\nYLLCENTER 0\nCELLSIZE 1\n7 8\n"
	r, err := NewReader(strings.NewReader(src))
	require.NoError(t, err)

	h := r.Header()
	assert.True(t, h.Center)
	assert.False(t, h.HasNoData)
	assert.Equal(t, float64(DefaultNoData), h.NoData)
	assert.Equal(t, []float64{7, 8}, readAll(t, r))
}

func TestReader_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		next bool
	}{
		{name: "missing cellsize", src: "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\n1\n"},
		{name: "bad number", src: "ncols x\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n"},
		{name: "empty raster", src: "ncols 0\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n"},
		{name: "bad cell", src: "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nabc\n", next: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(strings.NewReader(tt.src))
			if tt.next {
				require.NoError(t, err)
				_, err = r.Next()
			}
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestReader_ShortBody(t *testing.T) {
	r, err := NewReader(strings.NewReader("ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2 3\n"))
	require.NoError(t, err)
	for range 3 {
		_, err := r.Next()
		require.NoError(t, err)
	}
	_, err = r.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWriter_RoundTrip(t *testing.T) {
	h := Header{NCols: 3, NRows: 2, XLL: 100.5, YLL: -20, CellSize: 0.25, NoData: -9999, HasNoData: true}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, h)
	require.NoError(t, err)
	require.NoError(t, w.WriteRow([]float64{1, 2, -9999}))
	require.NoError(t, w.WriteRow([]float64{4.5, 5, 6}))
	require.NoError(t, w.Close())

	assert.Equal(t, sample, buf.String())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, r.Header())
}

func TestWriter_Misuse(t *testing.T) {
	_, err := NewWriter(io.Discard, Header{})
	require.Error(t, err)

	w, err := NewWriter(io.Discard, Header{NCols: 2, NRows: 1, CellSize: 1})
	require.NoError(t, err)
	require.Error(t, w.WriteRow([]float64{1}))
	require.Error(t, w.Close())
	require.NoError(t, w.WriteRow([]float64{1, 2}))
	require.Error(t, w.WriteRow([]float64{1, 2}))
}
