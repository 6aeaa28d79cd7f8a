package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalFiler keeps audio files under a root directory. Used for small
// single-node deployments and tests.
type LocalFiler struct {
	root string
}

// NewLocalFiler creates filer instance
func NewLocalFiler(root string) (*LocalFiler, error) {
	if root == "" {
		return nil, fmt.Errorf("no root dir")
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("can't create root dir: %w", err)
	}
	return &LocalFiler{root: root}, nil
}

// SaveFile writes the file, creating intermediate dirs
func (f *LocalFiler) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	fn := filepath.Join(f.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(fn), 0750); err != nil {
		return fmt.Errorf("can't create dir: %w", err)
	}
	file, err := os.OpenFile(fn, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("can't create '%s': %w", name, err)
	}
	defer file.Close()
	if _, err := io.Copy(file, r); err != nil {
		return fmt.Errorf("can't write '%s': %w", name, err)
	}
	return nil
}

// LoadFile opens the file for reading
func (f *LocalFiler) LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	file, err := os.Open(filepath.Join(f.root, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("can't load '%s': %w", name, err)
	}
	return file, nil
}

// DeleteFile removes the file
func (f *LocalFiler) DeleteFile(ctx context.Context, name string) error {
	if err := os.Remove(filepath.Join(f.root, filepath.FromSlash(name))); err != nil {
		return fmt.Errorf("can't delete '%s': %w", name, err)
	}
	return nil
}
