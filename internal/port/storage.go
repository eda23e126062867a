package port

import (
	"context"
	"fmt"
	"io"
)

// StorageError wraps chunk-store I/O failures so callers can separate them
// from business-logic errors at stage boundaries.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("chunk store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ChunkStore is durable, addressable storage for raw chunk bytes during the
// active-upload window. Writes to the same (session, number) pair overwrite;
// writes are not assumed atomic across crashes, so stored size and checksum
// are reported for verification.
type ChunkStore interface {
	// Store writes the stream to a location derived from session and chunk
	// number and returns the storage key plus the written size and CRC32.
	Store(ctx context.Context, sessionID string, number int, r io.Reader) (key string, size int64, checksum uint32, err error)

	// Exists reports whether a stored object is present under the key.
	Exists(ctx context.Context, key string) (bool, error)

	// Read opens the stored bytes for sequential reading.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes one stored object. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// DeleteSession removes every object stored for a session.
	DeleteSession(ctx context.Context, sessionID string) error
}

// BlobStore is the durable-storage boundary used by the finalizer: attach
// bytes under a filename/content-type and get back a stable reference that
// can regenerate a download URL later.
type BlobStore interface {
	Attach(ctx context.Context, r io.Reader, filename, contentType string, size int64) (ref string, err error)
}
