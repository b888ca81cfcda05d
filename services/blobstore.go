package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore holds original uploaded files. Documents reference blobs by
// the path Save returns.
type BlobStore interface {
	Save(ctx context.Context, key string, r io.Reader) (path string, size int64, err error)
	Load(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, path string) error
	List(ctx context.Context) ([]string, error)
}

// DiskBlobStore keeps blobs as flat files under a root directory.
type DiskBlobStore struct {
	root string
}

func NewDiskBlobStore(root string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &DiskBlobStore{root: root}, nil
}

func (s *DiskBlobStore) Save(_ context.Context, key string, r io.Reader) (string, int64, error) {
	// Keys are server-generated, but never trust them with path
	// separators anyway.
	key = filepath.Base(key)
	path := filepath.Join(s.root, key)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write file: %w", err)
	}
	return path, size, nil
}

func (s *DiskBlobStore) Load(_ context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.root)) {
		return nil, fmt.Errorf("path %q outside storage root", path)
	}
	return os.ReadFile(path)
}

func (s *DiskBlobStore) Remove(_ context.Context, path string) error {
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.root)) {
		return fmt.Errorf("path %q outside storage root", path)
	}
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *DiskBlobStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(s.root, entry.Name()))
	}
	return paths, nil
}
