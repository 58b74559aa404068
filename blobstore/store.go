package blobstore

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned when a blob or manifest entry does not exist.
	ErrNotFound = errors.New("blobstore: not found")
	// ErrInvalidName is returned for names that escape the store root.
	ErrInvalidName = errors.New("blobstore: invalid blob name")
	// ErrConcurrentModification is returned by a Manifest when an entry was
	// changed since the caller read it.
	ErrConcurrentModification = errors.New("blobstore: concurrent modification")
)

// Store holds immutable, whole-object blobs addressed by slash-separated
// names. Put replaces any previous blob atomically. Implementations must be
// safe for concurrent use.
type Store interface {
	Open(ctx context.Context, name string) (Blob, error)
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the names starting with prefix in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored blob.
type Blob interface {
	// ReadAt follows io.ReaderAt semantics.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	Size() int64
	Close() error
}

// ReadAll opens name and returns its full contents.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	buf := make([]byte, b.Size())
	n, err := b.ReadAt(ctx, buf, 0)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	if n != len(buf) {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "read %s: %d of %d bytes", name, n, len(buf))
	}
	return buf, nil
}

// readAtBytes implements ReadAt over an in-memory slice.
func readAtBytes(data, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Newf("blobstore: negative offset %d", off)
	}
	if off >= int64(len(data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

type bytesBlob struct {
	data []byte
}

func (b *bytesBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return readAtBytes(b.data, p, off)
}

func (b *bytesBlob) Size() int64  { return int64(len(b.data)) }
func (b *bytesBlob) Close() error { return nil }
