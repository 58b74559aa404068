// Package blobstore is the backing store chunks are swapped out to.
//
// A [Store] holds immutable whole-object blobs under slash-separated names;
// a [Manifest] records which chunk blobs exist together with their encoding,
// size and checksum. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - [MemoryStore] and [MemoryManifest]: process memory, for tests and
//     short-lived grids.
//   - [LocalStore]: files below a directory, written via temp file, sync and
//     rename.
//   - s3.Store and s3.DDBManifest: Amazon S3 blobs with a DynamoDB manifest.
//   - minio.Store: any S3-compatible server reached through minio-go.
//
// Missing blobs and entries satisfy errors.Is(err, [ErrNotFound]).
package blobstore
