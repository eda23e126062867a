package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
)

// LocalStore attaches asset bytes to a directory tree. Meant for development
// and tests; the reference is the absolute file path.
type LocalStore struct {
	root string
}

var _ port.BlobStore = (*LocalStore)(nil)

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Attach(ctx context.Context, r io.Reader, filename, contentType string, size int64) (string, error) {
	dir := filepath.Join(s.root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create attachment dir: %w", err)
	}

	dest := filepath.Join(dir, filename)
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create attachment: %w", err)
	}

	written, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	if size > 0 && written != size {
		return "", fmt.Errorf("attachment size mismatch: wrote %d, expected %d", written, size)
	}

	return dest, nil
}
