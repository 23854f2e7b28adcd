package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoCacheDir is returned by FileBackend.Set when no cache directory could be resolved.
var ErrNoCacheDir = errors.New("no cache directory")

// FileBackend keeps one JSON file per artifact name inside a directory.
// An empty directory disables persistence: every Get misses and every Set fails.
type FileBackend struct {
	dir string
}

// DefaultDir resolves the per-user cache directory for weathr, or "" when the
// platform has none.
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		return ""
	}
	return filepath.Join(base, "weathr")
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) path(name string) string {
	return filepath.Join(b.dir, name+".json")
}

// Get reads <dir>/<name>.json.
func (b *FileBackend) Get(ctx context.Context, name string) ([]byte, error) {
	if b.dir == "" {
		return nil, ErrMiss
	}
	data, err := os.ReadFile(b.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return data, nil
}

// Set replaces <dir>/<name>.json atomically so readers never observe a partial file.
func (b *FileBackend) Set(ctx context.Context, name string, data []byte, ttl time.Duration) error {
	if b.dir == "" {
		return ErrNoCacheDir
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmpName, b.path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
