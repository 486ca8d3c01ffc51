package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrInvalidKey is returned by the file backend for keys that are not
// lowercase hex digests.
var ErrInvalidKey = errors.New("cache key must be lowercase hex")

// File persists one JSON file per key under a directory.
//
// Writes go to a temp file which is then hard-linked into place. Linking
// fails if the target exists, so the first writer wins and readers never see
// a partially written entry.
type File struct {
	dir    string
	logger *slog.Logger
}

// NewFile creates dir if needed and returns a file-backed cache.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("file cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &File{dir: dir, logger: slog.Default().With("component", "file_cache")}, nil
}

func (f *File) path(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, r := range key {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", ErrInvalidKey
		}
	}
	return filepath.Join(f.dir, key+".json"), nil
}

// Get reads the entry for key. Unreadable or corrupt files are misses.
func (f *File) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	if !validEntry(data) {
		f.logger.Warn("corrupt cache entry treated as miss", "key", key)
		return nil, false, nil
	}
	return data, true, nil
}

// Set publishes value under key unless an entry already exists.
func (f *File) Set(_ context.Context, key string, value json.RawMessage) error {
	if !validEntry(value) {
		return ErrInvalidEntry
	}
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(f.dir, ".tmp-"+key+"-*")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp entry: %w", err)
	}

	if err := os.Link(tmpName, p); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("publish cache entry: %w", err)
	}
	return nil
}

// Close is a no-op.
func (f *File) Close() error { return nil }
