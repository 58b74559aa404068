// Package gridstore is a chunked, out-of-core store for large 2D rasters of
// integer or floating-point cells.
//
// A Grid splits its cells into fixed-size chunks. Each chunk holds its cells
// in one of several encodings (Dense, Uniform, Packed64, Hybrid, CoordSet)
// behind the same cell API, so callers never see which encoding or
// residency state a chunk is in.
//
// # Quick Start
//
//	ctx := context.Background()
//	g, _ := gridstore.New[float32](20000, 20000, -9999,
//	    gridstore.WithChunkSize(256, 256),
//	    gridstore.WithMemoryLimit(512<<20, 8<<20),
//	    gridstore.WithSwapDir("/var/tmp/grid-swap"))
//	defer g.Close(ctx)
//
//	g.SetCell(ctx, 10, 20, 42)
//	v, _ := g.Cell(ctx, 10, 20)
//
// # Memory and Swapping
//
// Chunk payloads are charged against the memory limit. When an operation
// needs more memory than is left, the grid releases its reserve, swaps the
// least recently used chunk other than the one being worked on to the swap
// store, takes the reserve back and retries. The operation fails with
// ErrOutOfMemory only when nothing more can be evicted.
//
// Swap stores are pluggable:
//
//	gridstore.WithSwapDir("./swap")                    // local files
//	gridstore.WithSwapStore(s3Store)                   // blobstore/s3
//	gridstore.WithSwapStore(minioStore)                // blobstore/minio
//	gridstore.WithManifest(ddbManifest)                // DynamoDB chunk manifest
//
// # Encodings
//
// New chunks start in the encoding set by WithEncoding. Optimize picks the
// cheapest encoding per chunk from its content, Reencode converts a single
// chunk. A Uniform chunk that has to hold a second value is re-encoded to the
// grid's encoding on the fly.
//
// # Statistics
//
// Stats and ChunkStats compute counts, sums, means, extremes, modes, medians
// and sample standard deviations over non-missing cells. Sums are exact
// decimals; means and standard deviations are rounded half to even.
package gridstore
