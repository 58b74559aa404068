// Package asciigrid reads and writes ESRI ASCII raster files: a short
// keyword header followed by the cell values in row-major order, first row
// at the top.
package asciigrid

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultNoData is the sentinel assumed when the header has no NODATA_value.
const DefaultNoData = -9999

// ErrSyntax is returned for malformed headers and bodies.
var ErrSyntax = errors.New("asciigrid: syntax error")

// Header is the keyword block at the start of a file.
type Header struct {
	NCols int
	NRows int
	// XLL and YLL locate the lower-left corner, or the center of the
	// lower-left cell when Center is set.
	XLL      float64
	YLL      float64
	Center   bool
	CellSize float64
	NoData   float64
	// HasNoData reports whether NODATA_value was present.
	HasNoData bool
}

// Reader decodes a file. The header is parsed by NewReader, cell values are
// then read one at a time.
type Reader struct {
	s      *bufio.Scanner
	h      Header
	peeked string
	read   int
}

// NewReader parses the header of r.
func NewReader(r io.Reader) (*Reader, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	s.Split(bufio.ScanWords)
	rd := &Reader{s: s, h: Header{NoData: DefaultNoData}}
	if err := rd.readHeader(); err != nil {
		return nil, err
	}
	return rd, nil
}

func (r *Reader) token() (string, bool) {
	if r.peeked != "" {
		t := r.peeked
		r.peeked = ""
		return t, true
	}
	if !r.s.Scan() {
		return "", false
	}
	return r.s.Text(), true
}

func (r *Reader) readHeader() error {
	var seen struct{ ncols, nrows, x, y, cellsize bool }
	for {
		key, ok := r.token()
		if !ok {
			if err := r.s.Err(); err != nil {
				return err
			}
			break
		}
		k := strings.ToLower(key)
		if !isKeyword(k) {
			r.peeked = key
			break
		}
		val, ok := r.token()
		if !ok {
			return errors.Wrapf(ErrSyntax, "%s without value", key)
		}
		var err error
		switch k {
		case "ncols":
			r.h.NCols, err = strconv.Atoi(val)
			seen.ncols = true
		case "nrows":
			r.h.NRows, err = strconv.Atoi(val)
			seen.nrows = true
		case "xllcorner", "xllcenter":
			r.h.XLL, err = strconv.ParseFloat(val, 64)
			r.h.Center = k == "xllcenter"
			seen.x = true
		case "yllcorner", "yllcenter":
			r.h.YLL, err = strconv.ParseFloat(val, 64)
			seen.y = true
		case "cellsize":
			r.h.CellSize, err = strconv.ParseFloat(val, 64)
			seen.cellsize = true
		case "nodata_value":
			r.h.NoData, err = strconv.ParseFloat(val, 64)
			r.h.HasNoData = true
		}
		if err != nil {
			return errors.Wrapf(ErrSyntax, "%s: %v", key, err)
		}
	}
	if !seen.ncols || !seen.nrows || !seen.x || !seen.y || !seen.cellsize {
		return errors.Wrap(ErrSyntax, "incomplete header")
	}
	if r.h.NCols <= 0 || r.h.NRows <= 0 {
		return errors.Wrapf(ErrSyntax, "raster of %dx%d cells", r.h.NRows, r.h.NCols)
	}
	return nil
}

func isKeyword(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "xllcenter", "yllcorner", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

// Header returns the parsed header.
func (r *Reader) Header() Header { return r.h }

// Next returns the next cell value in row-major order and io.EOF after the
// last one. A body shorter than the header announces is io.ErrUnexpectedEOF.
func (r *Reader) Next() (float64, error) {
	if r.read == r.h.NRows*r.h.NCols {
		return 0, io.EOF
	}
	tok, ok := r.token()
	if !ok {
		if err := r.s.Err(); err != nil {
			return 0, err
		}
		return 0, errors.Wrapf(io.ErrUnexpectedEOF, "asciigrid: %d of %d cells", r.read, r.h.NRows*r.h.NCols)
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		row, col := r.read/r.h.NCols, r.read%r.h.NCols
		return 0, errors.Wrapf(ErrSyntax, "cell (%d,%d): %q", row, col, tok)
	}
	r.read++
	return v, nil
}

// Writer encodes a file row by row.
type Writer struct {
	w    *bufio.Writer
	h    Header
	rows int
}

// NewWriter writes h to w.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	if h.NCols <= 0 || h.NRows <= 0 {
		return nil, errors.Newf("asciigrid: raster of %dx%d cells", h.NRows, h.NCols)
	}
	bw := bufio.NewWriter(w)
	xk, yk := "xllcorner", "yllcorner"
	if h.Center {
		xk, yk = "xllcenter", "yllcenter"
	}
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", h.NCols, h.NRows)
	fmt.Fprintf(bw, "%s %s\n%s %s\n", xk, format(h.XLL), yk, format(h.YLL))
	fmt.Fprintf(bw, "cellsize %s\n", format(h.CellSize))
	if h.HasNoData {
		fmt.Fprintf(bw, "NODATA_value %s\n", format(h.NoData))
	}
	return &Writer{w: bw, h: h}, nil
}

// WriteRow writes the next row, which must hold NCols values.
func (w *Writer) WriteRow(vals []float64) error {
	if len(vals) != w.h.NCols {
		return errors.Newf("asciigrid: row of %d values, want %d", len(vals), w.h.NCols)
	}
	if w.rows == w.h.NRows {
		return errors.Newf("asciigrid: more than %d rows", w.h.NRows)
	}
	for i, v := range vals {
		if i > 0 {
			if err := w.w.WriteByte(' '); err != nil {
				return err
			}
		}
		if _, err := w.w.WriteString(format(v)); err != nil {
			return err
		}
	}
	w.rows++
	return w.w.WriteByte('\n')
}

// Close flushes buffered output and checks every row was written.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	if w.rows != w.h.NRows {
		return errors.Newf("asciigrid: wrote %d of %d rows", w.rows, w.h.NRows)
	}
	return nil
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
