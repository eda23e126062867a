// Package chunkstore persists raw chunk bytes on the local filesystem during
// the active-upload window. Keys are deterministic per (session, chunk
// number), so a retried upload of the same number lands on the same path and
// simply overwrites.
package chunkstore

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
	"github.com/spaolacci/murmur3"
)

// Local stores chunk objects under root/sessions/<session>/<fan>/chunk_N.
// The fanout level keeps per-directory entry counts bounded for sessions
// with many chunks.
type Local struct {
	root string
}

var _ port.ChunkStore = (*Local)(nil)

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(root, "sessions"), 0o755); err != nil {
		return nil, &port.StorageError{Op: "init", Key: root, Err: err}
	}
	return &Local{root: root}, nil
}

// chunkKey derives the storage key for one chunk. Murmur3 over the logical
// identity picks the fanout bucket.
func chunkKey(sessionID string, number int) string {
	fan := murmur3.Sum32([]byte(fmt.Sprintf("%s-%d", sessionID, number))) & 0xff
	return filepath.Join("sessions", sessionID, fmt.Sprintf("%02x", fan), fmt.Sprintf("chunk_%06d", number))
}

func (s *Local) Store(ctx context.Context, sessionID string, number int, r io.Reader) (string, int64, uint32, error) {
	key := chunkKey(sessionID, number)
	path := filepath.Join(s.root, key)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, 0, &port.StorageError{Op: "store", Key: key, Err: err}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", 0, 0, &port.StorageError{Op: "store", Key: key, Err: err}
	}

	hasher := crc32.NewIEEE()
	size, err := io.Copy(io.MultiWriter(f, hasher), r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// Leave the partial file in place: it fails size verification on
		// the next existence check, and a retried Store overwrites it.
		return "", 0, 0, &port.StorageError{Op: "store", Key: key, Err: err}
	}

	return key, size, hasher.Sum32(), nil
}

func (s *Local) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &port.StorageError{Op: "stat", Key: key, Err: err}
}

func (s *Local) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, key))
	if err != nil {
		return nil, &port.StorageError{Op: "read", Key: key, Err: err}
	}
	return f, nil
}

func (s *Local) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.root, key))
	if err != nil && !os.IsNotExist(err) {
		return &port.StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (s *Local) DeleteSession(ctx context.Context, sessionID string) error {
	dir := filepath.Join(s.root, "sessions", sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return &port.StorageError{Op: "delete_session", Key: sessionID, Err: err}
	}
	return nil
}
