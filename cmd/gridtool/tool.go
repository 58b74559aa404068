package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/hupe1980/gridstore"
	"github.com/hupe1980/gridstore/blobstore/minio"
	s3store "github.com/hupe1980/gridstore/blobstore/s3"
)

// toolT holds the flags shared by all commands.
type toolT struct {
	Root    *cobra.Command
	Stats   *cobra.Command
	Convert *cobra.Command

	chunkRows   int
	chunkCols   int
	encoding    string
	optimize    bool
	memoryLimit int64
	reserve     int64
	workers     int
	compression string
	precision   int32
	verbose     bool

	swapDir string

	s3Bucket   string
	s3Prefix   string
	s3Region   string
	s3Endpoint string
	ddbTable   string

	minioEndpoint  string
	minioAccessKey string
	minioSecretKey string
	minioBucket    string
	minioSecure    bool
}

func newTool() *toolT {
	t := &toolT{}
	t.Root = &cobra.Command{
		Use:           "gridtool",
		Short:         "chunked raster tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	t.Stats = &cobra.Command{
		Use:   "stats <file>",
		Short: "print statistics of an ASCII raster",
		Long: `
Load an ESRI ASCII raster into a chunked grid and print its statistics
and the encodings its chunks ended up in.
`,
		Args: cobra.ExactArgs(1),
		RunE: t.runStats,
	}
	t.Convert = &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "round-trip an ASCII raster through a chunked grid",
		Args:  cobra.ExactArgs(2),
		RunE:  t.runConvert,
	}
	t.Root.AddCommand(t.Stats, t.Convert)

	f := t.Root.PersistentFlags()
	f.IntVar(&t.chunkRows, "chunk-rows", gridstore.DefaultChunkSize, "rows per chunk")
	f.IntVar(&t.chunkCols, "chunk-cols", gridstore.DefaultChunkSize, "columns per chunk")
	f.StringVar(&t.encoding, "encoding", gridstore.Dense.String(), "initial chunk encoding")
	f.BoolVar(&t.optimize, "optimize", false, "re-encode chunks to their cheapest encoding after loading")
	f.Int64Var(&t.memoryLimit, "memory-limit", 0, "chunk memory limit in bytes (0 = unlimited)")
	f.Int64Var(&t.reserve, "reserve", 0, "bytes held back for the eviction path")
	f.IntVar(&t.workers, "flush-workers", 1, "concurrent chunk writes on flush")
	f.StringVar(&t.compression, "compression", gridstore.CompressionLZ4.String(), "swap blob compression (none, lz4, zstd)")
	f.Int32Var(&t.precision, "precision", gridstore.DefaultPrecision, "fractional digits of means")
	f.BoolVarP(&t.verbose, "verbose", "v", false, "log swap activity")
	f.StringVar(&t.swapDir, "swap-dir", "", "swap chunks to this directory")
	f.StringVar(&t.s3Bucket, "s3-bucket", "", "swap chunks to this S3 bucket")
	f.StringVar(&t.s3Prefix, "s3-prefix", "", "key prefix inside the S3 bucket")
	f.StringVar(&t.s3Region, "s3-region", "", "AWS region")
	f.StringVar(&t.s3Endpoint, "s3-endpoint", "", "S3 and DynamoDB compatible endpoint")
	f.StringVar(&t.ddbTable, "ddb-table", "", "record swapped chunks in this DynamoDB table")
	f.StringVar(&t.minioEndpoint, "minio-endpoint", "", "swap chunks to this MinIO server")
	f.StringVar(&t.minioAccessKey, "minio-access-key", os.Getenv("MINIO_ACCESS_KEY"), "MinIO access key")
	f.StringVar(&t.minioSecretKey, "minio-secret-key", os.Getenv("MINIO_SECRET_KEY"), "MinIO secret key")
	f.StringVar(&t.minioBucket, "minio-bucket", "gridstore", "MinIO bucket")
	f.BoolVar(&t.minioSecure, "minio-secure", false, "use TLS for MinIO")
	return t
}

// gridOptions turns the flags into grid options. uri identifies the grid in
// a shared manifest table.
func (t *toolT) gridOptions(ctx context.Context, uri string) ([]gridstore.Option, error) {
	enc, err := gridstore.ParseEncoding(t.encoding)
	if err != nil {
		return nil, err
	}
	comp, err := gridstore.ParseCompression(t.compression)
	if err != nil {
		return nil, err
	}
	opts := []gridstore.Option{
		gridstore.WithChunkSize(t.chunkRows, t.chunkCols),
		gridstore.WithEncoding(enc),
		gridstore.WithMemoryLimit(t.memoryLimit, t.reserve),
		gridstore.WithFlushWorkers(t.workers),
		gridstore.WithCompression(comp),
		gridstore.WithPrecision(t.precision),
	}
	if t.verbose {
		opts = append(opts, gridstore.WithLogLevel(slog.LevelDebug))
	}

	awsOpts := []s3store.Option{s3store.WithPrefix(t.s3Prefix)}
	if t.s3Region != "" {
		awsOpts = append(awsOpts, s3store.WithRegion(t.s3Region))
	}
	if t.s3Endpoint != "" {
		awsOpts = append(awsOpts, s3store.WithEndpoint(t.s3Endpoint))
	}

	switch {
	case t.s3Bucket != "" && t.minioEndpoint != "":
		return nil, errors.New("--s3-bucket and --minio-endpoint are exclusive")
	case t.s3Bucket != "":
		store, err := s3store.New(ctx, t.s3Bucket, awsOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gridstore.WithSwapStore(store))
	case t.minioEndpoint != "":
		store, err := minio.Dial(ctx, t.minioEndpoint, t.minioAccessKey, t.minioSecretKey,
			t.minioSecure, t.minioBucket, "")
		if err != nil {
			return nil, err
		}
		opts = append(opts, gridstore.WithSwapStore(store))
	case t.swapDir != "":
		opts = append(opts, gridstore.WithSwapDir(t.swapDir))
	}

	if t.ddbTable != "" {
		m, err := s3store.NewDDB(ctx, t.ddbTable, uri, awsOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gridstore.WithManifest(m))
	}
	return opts, nil
}

// load reads an ASCII raster into a grid built from the flags.
func (t *toolT) load(ctx context.Context, path string) (*gridstore.Grid[float64], gridstore.Georef, error) {
	uri, err := filepath.Abs(path)
	if err != nil {
		return nil, gridstore.Georef{}, err
	}
	opts, err := t.gridOptions(ctx, uri)
	if err != nil {
		return nil, gridstore.Georef{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, gridstore.Georef{}, err
	}
	defer f.Close()

	g, ref, err := gridstore.ReadASCII(ctx, f, opts...)
	if err != nil {
		return nil, gridstore.Georef{}, errors.Wrapf(err, "read %s", path)
	}
	if t.optimize {
		if _, err := g.Optimize(ctx); err != nil {
			return nil, gridstore.Georef{}, errors.CombineErrors(err, g.Close(ctx))
		}
	}
	return g, ref, nil
}
