// Package swap moves chunk payloads between memory and a blobstore.Store.
//
// A Manager keeps resident chunks in least-recently-used order and is the
// memory.Environment the retry loop evicts through: EvictExcept persists the
// coldest stale chunk as a checksummed, optionally compressed frame and drops
// its payload. Restore reads the frame back into a non-resident chunk.
package swap
