// Package blobstore keeps raw dataset bytes on an afero filesystem.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"
	"github.com/upb/dataguardian/repositories"
)

// Store implements repositories.BlobStore
type Store struct {
	fs afero.Fs
}

// New stores blobs at the root of fsys
func New(fsys afero.Fs) *Store {
	return &Store{fs: fsys}
}

// NewOS stores blobs under dir on the host filesystem
func NewOS(dir string) (*Store, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewMemory stores blobs in memory
func NewMemory() *Store {
	return New(afero.NewMemMapFs())
}

func ensureDir(dir string) error {
	if err := afero.NewOsFs().MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	return nil
}

func clean(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return path.Clean("/" + key), nil
}

// Put writes data atomically by writing a temp file and renaming it over key
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := clean(key)
	if err != nil {
		return err
	}
	tmp := name + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o640); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to commit blob: %w", err)
	}
	return nil
}

// Get reads key; a missing key wraps repositories.ErrNotFound
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := clean(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", key, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := clean(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Exists reports whether key is stored
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	name, err := clean(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, name)
}
