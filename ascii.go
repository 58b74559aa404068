package gridstore

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/gridstore/internal/asciigrid"
)

// Georef is the placement of an ASCII raster. gridstore keeps it only to
// write it back unchanged.
type Georef struct {
	XLL      float64
	YLL      float64
	Center   bool
	CellSize float64
}

// ReadASCII loads an ESRI ASCII raster into a new float64 grid. The file's
// NODATA_value becomes the grid's no-data sentinel. Cells holding no-data
// are not written, so sparse rasters stay cheap.
func ReadASCII(ctx context.Context, r io.Reader, optFns ...Option) (*Grid[float64], Georef, error) {
	ar, err := asciigrid.NewReader(r)
	if err != nil {
		return nil, Georef{}, err
	}
	h := ar.Header()
	g, err := New(h.NRows, h.NCols, h.NoData, optFns...)
	if err != nil {
		return nil, Georef{}, err
	}
	for row := 0; row < h.NRows; row++ {
		if err := ctx.Err(); err != nil {
			return nil, Georef{}, errors.CombineErrors(err, g.Close(ctx))
		}
		for col := 0; col < h.NCols; col++ {
			v, err := ar.Next()
			if err == nil {
				_, err = g.SetCell(ctx, row, col, v)
			}
			if err != nil {
				return nil, Georef{}, errors.CombineErrors(err, g.Close(ctx))
			}
		}
	}
	return g, Georef{XLL: h.XLL, YLL: h.YLL, Center: h.Center, CellSize: h.CellSize}, nil
}

// WriteASCII exports g in the ESRI ASCII format, reading cells through the
// grid so swapped chunks are loaded on demand.
func WriteASCII[T Value](ctx context.Context, w io.Writer, g *Grid[T], ref Georef) error {
	if ref.CellSize == 0 {
		ref.CellSize = 1
	}
	aw, err := asciigrid.NewWriter(w, asciigrid.Header{
		NCols:     g.Cols(),
		NRows:     g.Rows(),
		XLL:       ref.XLL,
		YLL:       ref.YLL,
		Center:    ref.Center,
		CellSize:  ref.CellSize,
		NoData:    float64(g.NoData()),
		HasNoData: true,
	})
	if err != nil {
		return err
	}
	row := make([]float64, g.Cols())
	for r := 0; r < g.Rows(); r++ {
		for c := range row {
			v, err := g.Cell(ctx, r, c)
			if err != nil {
				return err
			}
			row[c] = float64(v)
		}
		if err := aw.WriteRow(row); err != nil {
			return err
		}
	}
	return aw.Close()
}
