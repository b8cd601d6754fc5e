package staging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	"vsxreg/internal/registry"
)

// fileSystemStore is a stagingStore that keeps content and the queue on disk
// so pending uploads survive a restart.
//
// Directory structure:
//
//	<staging_dir>/
//	  queue.json    (ordered list of staged uploads)
//	  files/
//	    <algorithm>-<hex>    (staged package content)
type fileSystemStore struct {
	stagingDir string
	filesDir   string
}

func newFileSystemStore(stagingDir string) (*fileSystemStore, error) {
	filesDir := filepath.Join(stagingDir, "files")

	// Create directory structure
	if err := os.MkdirAll(filesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	return &fileSystemStore{stagingDir: stagingDir, filesDir: filesDir}, nil
}

func (f *fileSystemStore) contentPath(d string) (string, error) {
	parsed, err := digest.Parse(d)
	if err != nil {
		return "", fmt.Errorf("invalid digest %q: %w", d, err)
	}
	return filepath.Join(f.filesDir, parsed.Algorithm().String()+"-"+parsed.Encoded()), nil
}

func (f *fileSystemStore) StoreContent(r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(f.filesDir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	digester := digest.Canonical.Digester()
	size, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("writing content: %w", err)
	}

	d := digester.Digest().String()
	dst, err := f.contentPath(d)
	if err != nil {
		return "", 0, err
	}
	if _, err := os.Stat(dst); err == nil {
		return d, size, nil
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", 0, fmt.Errorf("moving content into place: %w", err)
	}
	return d, size, nil
}

func (f *fileSystemStore) RemoveContent(d string) {
	if p, err := f.contentPath(d); err == nil {
		os.Remove(p)
	}
}

func (f *fileSystemStore) OpenContent(d string) (io.ReadCloser, error) {
	p, err := f.contentPath(d)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (f *fileSystemStore) ContentSize() (int64, error) {
	entries, err := os.ReadDir(f.filesDir)
	if err != nil {
		return 0, fmt.Errorf("listing staged files: %w", err)
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func (f *fileSystemStore) queuePath() string {
	return filepath.Join(f.stagingDir, "queue.json")
}

func (f *fileSystemStore) List() ([]registry.StagedUpload, error) {
	data, err := os.ReadFile(f.queuePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading queue file: %w", err)
	}
	var queue []registry.StagedUpload
	if err := json.Unmarshal(data, &queue); err != nil {
		return nil, fmt.Errorf("decoding queue file: %w", err)
	}
	return queue, nil
}

// Save writes the queue atomically through a temp file and rename.
func (f *fileSystemStore) Save(queue []registry.StagedUpload) error {
	if queue == nil {
		queue = []registry.StagedUpload{}
	}
	data, err := json.MarshalIndent(queue, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding queue: %w", err)
	}
	tmp := f.queuePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing queue file: %w", err)
	}
	if err := os.Rename(tmp, f.queuePath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing queue file: %w", err)
	}
	return nil
}

// NewFileSystemStagingArea creates a new filesystem-based staging area.
// maxSize is the maximum total size in bytes; must be positive.
func NewFileSystemStagingArea(stagingDir string, clock registry.Clock, maxSize int64) (registry.StagingArea, error) {
	store, err := newFileSystemStore(stagingDir)
	if err != nil {
		return nil, err
	}
	return newStagingArea(store, clock, maxSize), nil
}
