package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"vsxreg/internal/errs"
	"vsxreg/internal/model"
	"vsxreg/internal/registry"
)

// FileSystemStore stores blobs as files below a root directory. Keys are
// slash-separated relative paths:
//
//	<root>/
//	  <namespace>/<extension>/<platform>/<version>/<file name>
type FileSystemStore struct {
	root string
}

var _ registry.BlobStore = (*FileSystemStore)(nil)

// NewFileSystemStore creates a store rooted at root, creating the directory if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) Type() string { return model.StorageFileSystem }

// path maps key below root, rejecting keys that would escape it.
func (s *FileSystemStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errs.InvalidInputf("invalid storage key: %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes r using an atomic write (temp file + rename).
func (s *FileSystemStore) Put(_ context.Context, key string, r io.Reader) (digest.Digest, int64, error) {
	destPath, err := s.path(key)
	if err != nil {
		return "", 0, err
	}
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	d, n, err := putDigest(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return "", 0, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return d, n, nil
}

func (s *FileSystemStore) Get(_ context.Context, key string, w io.Writer, expected digest.Digest) error {
	srcPath, err := s.path(key)
	if err != nil {
		return err
	}
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.NotFoundf("blob not found: %s", key)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return copyVerified(w, f, key, expected)
}

func (s *FileSystemStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}

// Location returns "": filesystem blobs are streamed by the registry.
func (s *FileSystemStore) Location(context.Context, string) (string, error) {
	return "", nil
}

// ValidateSetup verifies that the root directory exists and is writable.
func (s *FileSystemStore) ValidateSetup(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("storage root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root is not a directory: %s", s.root)
	}

	probe, err := os.CreateTemp(s.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("storage root not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}
