package gridstore

import (
	"log/slog"

	"github.com/hupe1980/gridstore/blobstore"
	"github.com/hupe1980/gridstore/internal/chunk"
	"github.com/hupe1980/gridstore/internal/swap"
)

// Encoding selects the in-memory layout of a chunk.
type Encoding = chunk.Encoding

const (
	// Dense stores one value per cell.
	Dense = chunk.Dense
	// Uniform stores a single value for the whole chunk. Writing a different
	// value re-encodes the chunk.
	Uniform = chunk.Uniform
	// Packed64 maps each value to a 64-bit cell mask. Chunks are limited to
	// 64 cells.
	Packed64 = chunk.Packed64
	// Hybrid keeps a default value implicit and records other values in
	// offset bitmaps or coordinate lists.
	Hybrid = chunk.Hybrid
	// CoordSet maps each non-default value to its positions.
	CoordSet = chunk.CoordSet
)

// ParseEncoding parses the name printed by Encoding.String.
func ParseEncoding(s string) (Encoding, error) { return chunk.ParseEncoding(s) }

// HybridOptions tunes the classification heuristic of Hybrid chunks.
type HybridOptions = chunk.HybridOptions

// Compression selects the block codec of swapped chunk blobs.
type Compression = swap.Compression

const (
	CompressionNone = swap.CompressionNone
	CompressionLZ4  = swap.CompressionLZ4
	CompressionZSTD = swap.CompressionZSTD
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) { return swap.ParseCompression(s) }

const (
	// DefaultChunkSize is the default number of rows and columns per chunk.
	DefaultChunkSize = 256
	// DefaultPrecision is the number of fractional digits means and standard
	// deviations are rounded to.
	DefaultPrecision = 10
)

type options struct {
	chunkRows        int
	chunkCols        int
	encoding         Encoding
	hybrid           HybridOptions
	memoryLimit      int64
	reserve          int64
	workers          int64
	ioLimit          int64
	store            blobstore.Store
	manifest         blobstore.Manifest
	compression      Compression
	prefix           string
	maxAttempts      int
	precision        int32
	keepSwap         bool
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Grid.
type Option func(*options)

// WithChunkSize sets the number of rows and columns per chunk. Edge chunks
// are cut to the grid bounds.
func WithChunkSize(rows, cols int) Option {
	return func(o *options) {
		o.chunkRows = rows
		o.chunkCols = cols
	}
}

// WithEncoding sets the encoding new chunks start in. Defaults to Dense.
//
// Packed64 requires chunks of at most 64 cells:
//
//	g, _ := gridstore.New[int32](1024, 1024, -9999,
//	    gridstore.WithChunkSize(8, 8),
//	    gridstore.WithEncoding(gridstore.Packed64))
func WithEncoding(enc Encoding) Option {
	return func(o *options) {
		o.encoding = enc
	}
}

// WithHybridOptions tunes Hybrid chunks.
func WithHybridOptions(h HybridOptions) Option {
	return func(o *options) {
		o.hybrid = h
	}
}

// WithMemoryLimit caps the bytes chunk payloads may hold. When an operation
// needs more, least recently used chunks are swapped out and the operation is
// retried. reserve bytes are held back during normal operation and released
// while evicting. A limit of 0 disables swapping.
func WithMemoryLimit(limit, reserve int64) Option {
	return func(o *options) {
		o.memoryLimit = limit
		o.reserve = reserve
	}
}

// WithFlushWorkers bounds the number of chunks Flush writes concurrently.
func WithFlushWorkers(n int) Option {
	return func(o *options) {
		o.workers = int64(n)
	}
}

// WithSwapIOLimit caps swap traffic in bytes per second.
func WithSwapIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithSwapStore sets the store evicted chunks are written to. Defaults to an
// in-memory store.
//
// Example with S3:
//
//	store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("grids/dem"))
//	g, _ := gridstore.New[float32](rows, cols, -9999, gridstore.WithSwapStore(store))
func WithSwapStore(store blobstore.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithSwapDir swaps chunks to files below dir.
func WithSwapDir(dir string) Option {
	return func(o *options) {
		o.store = blobstore.NewLocalStore(dir)
	}
}

// WithManifest records every swapped chunk in m and verifies restored blobs
// against it.
func WithManifest(m blobstore.Manifest) Option {
	return func(o *options) {
		o.manifest = m
	}
}

// WithCompression sets the codec of swapped chunk blobs. Defaults to LZ4.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithSwapPrefix namespaces the chunk blobs of a grid inside a shared store.
func WithSwapPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithMaxAttempts bounds how often an operation is retried after eviction.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		o.maxAttempts = n
	}
}

// WithPrecision sets the fractional digits means and standard deviations are
// rounded to (half to even).
func WithPrecision(digits int32) Option {
	return func(o *options) {
		o.precision = digits
	}
}

// WithKeepSwap leaves the swapped blobs in the store on Close.
func WithKeepSwap() Option {
	return func(o *options) {
		o.keepSwap = true
	}
}

// WithMetricsCollector configures metrics collection for swap traffic,
// evictions and flushes.
//
// Example:
//
//	metrics := &gridstore.BasicMetricsCollector{}
//	g, _ := gridstore.New[float64](rows, cols, -9999, gridstore.WithMetricsCollector(metrics))
//	// ... use g ...
//	stats := metrics.GetStats()
//	fmt.Printf("swap outs: %d, p99: %s\n", stats.SwapOutCount, stats.SwapOutLatency.P99)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		chunkRows:        DefaultChunkSize,
		chunkCols:        DefaultChunkSize,
		encoding:         Dense,
		hybrid:           chunk.DefaultHybridOptions(),
		workers:          1,
		compression:      CompressionLZ4,
		prefix:           "chunks",
		precision:        DefaultPrecision,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.store == nil {
		o.store = blobstore.NewMemoryStore()
	}
	return o
}
