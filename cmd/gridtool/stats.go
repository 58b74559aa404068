package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hupe1980/gridstore"
)

func (t *toolT) runStats(cmd *cobra.Command, args []string) (err error) {
	ctx := context.Background()
	g, _, err := t.load(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() { err = errors.CombineErrors(err, g.Close(ctx)) }()

	sum, err := g.Stats(ctx)
	if err != nil {
		return err
	}
	stdout := cmd.OutOrStdout()
	writeSummary(stdout, g, sum)
	fmt.Fprintln(stdout)
	writeEncodings(stdout, g.Chunks())
	if ss := g.SwapStats(); ss.SwapOuts > 0 || ss.SwapIns > 0 {
		fmt.Fprintf(stdout, "\nswap: %d out (%d bytes), %d in (%d bytes), %d evictions\n",
			ss.SwapOuts, ss.BytesWritten, ss.SwapIns, ss.BytesRead, ss.Evictions)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeSummary(w io.Writer, g *gridstore.Grid[float64], s gridstore.Summary[float64]) {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Statistic", "Value"})
	tbl.SetAlignment(tablewriter.ALIGN_RIGHT)
	tbl.Append([]string{"cells", strconv.Itoa(g.Rows() * g.Cols())})
	tbl.Append([]string{"non-missing", strconv.FormatInt(s.Count, 10)})
	tbl.Append([]string{"sum", formatFloat(s.Sum)})
	if !s.Empty() {
		tbl.Append([]string{"min", formatFloat(s.Min)})
		tbl.Append([]string{"max", formatFloat(s.Max)})
		tbl.Append([]string{"mean", formatFloat(s.Mean)})
	}
	tbl.Render()
}

func writeEncodings(w io.Writer, infos []gridstore.ChunkInfo) {
	type row struct {
		chunks int
		bytes  int64
	}
	byEnc := make(map[gridstore.Encoding]*row)
	for _, info := range infos {
		r := byEnc[info.Encoding]
		if r == nil {
			r = &row{}
			byEnc[info.Encoding] = r
		}
		r.chunks++
		r.bytes += info.Footprint
	}
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Encoding", "Chunks", "Resident Bytes"})
	for _, enc := range []gridstore.Encoding{
		gridstore.Dense, gridstore.Uniform, gridstore.Packed64, gridstore.Hybrid, gridstore.CoordSet,
	} {
		if r := byEnc[enc]; r != nil {
			tbl.Append([]string{enc.String(), strconv.Itoa(r.chunks), strconv.FormatInt(r.bytes, 10)})
		}
	}
	tbl.Render()
}
