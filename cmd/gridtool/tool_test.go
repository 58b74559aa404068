package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `ncols 4
nrows 3
xllcorner 10
yllcorner 20
cellsize 5
NODATA_value -9999
1 1 1 1
1 2 -9999 1
1 1 1 1
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dem.asc")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	tool := newTool()
	var out bytes.Buffer
	tool.Root.SetOut(&out)
	tool.Root.SetArgs(args)
	err := tool.Root.Execute()
	return out.String(), err
}

func TestStats(t *testing.T) {
	path := writeSample(t)
	out, err := run(t, "stats", "--chunk-rows=2", "--chunk-cols=2", "--optimize", path)
	require.NoError(t, err)
	require.Contains(t, out, "non-missing")
	require.Contains(t, out, " 11 |")
	require.Contains(t, out, "uniform")
}

func TestStats_SwapDir(t *testing.T) {
	path := writeSample(t)
	dir := t.TempDir()
	out, err := run(t, "stats", "--chunk-rows=2", "--chunk-cols=2",
		"--memory-limit=40", "--swap-dir="+dir, "--compression=zstd", path)
	require.NoError(t, err)
	require.Contains(t, out, "swap:")
}

func TestConvert(t *testing.T) {
	in := writeSample(t)
	out := filepath.Join(t.TempDir(), "out.asc")
	msg, err := run(t, "convert", "--chunk-rows=2", "--chunk-cols=3", in, out)
	require.NoError(t, err)
	require.Contains(t, msg, "wrote 3x4 cells in 4 chunks")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), "1 2 -9999 1")
}

func TestFlagErrors(t *testing.T) {
	path := writeSample(t)
	for _, args := range [][]string{
		{"stats", "--encoding=bogus", path},
		{"stats", "--compression=brotli", path},
		{"stats", "--s3-bucket=b", "--minio-endpoint=localhost:9000", path},
		{"stats", filepath.Join(t.TempDir(), "missing.asc")},
		{"convert", path},
	} {
		_, err := run(t, args...)
		require.Error(t, err, "%v", args)
	}
}
