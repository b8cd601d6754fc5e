// Package staging holds uploaded extension packages between publish and
// post-processing.
package staging

import (
	"fmt"
	"io"
	"sync"

	"vsxreg/internal/registry"
)

// stagingArea implements registry.StagingArea using a pluggable stagingStore
// for the storage mechanics. All shared algorithm logic lives here.
type stagingArea struct {
	store   stagingStore
	clock   registry.Clock
	maxSize int64
	mu      sync.Mutex
}

var _ registry.StagingArea = (*stagingArea)(nil)

func newStagingArea(store stagingStore, clock registry.Clock, maxSize int64) *stagingArea {
	if clock == nil {
		clock = registry.RealClock{}
	}
	return &stagingArea{store: store, clock: clock, maxSize: maxSize}
}

// Stage stores the upload content and queues it for versionID.
func (s *stagingArea) Stage(versionID int64, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.store.List()
	if err != nil {
		return fmt.Errorf("reading queue: %w", err)
	}
	if indexOf(queue, versionID) >= 0 {
		return fmt.Errorf("version %d is already staged", versionID)
	}

	digest, size, err := s.store.StoreContent(r)
	if err != nil {
		return fmt.Errorf("storing content: %w", err)
	}

	// release drops freshly stored content unless an earlier upload shares it.
	release := func() {
		if countDigest(queue, digest) == 0 {
			s.store.RemoveContent(digest)
		}
	}

	contentSize, err := s.store.ContentSize()
	if err != nil {
		release()
		return fmt.Errorf("getting current size: %w", err)
	}
	if contentSize > s.maxSize {
		release()
		return fmt.Errorf("staging area full: would exceed max size of %d bytes", s.maxSize)
	}

	queue = append(queue, registry.StagedUpload{
		VersionID: versionID,
		Digest:    digest,
		Size:      size,
		StagedAt:  s.clock.Now(),
	})
	if err := s.store.Save(queue); err != nil {
		release()
		return fmt.Errorf("adding to queue: %w", err)
	}
	return nil
}

// ProcessNext gets the oldest staged upload and calls fn with its content.
// If fn returns nil, the upload is removed (committed).
// If fn returns an error, the upload stays in queue for retry.
// Returns nil with no error if the queue is empty.
func (s *stagingArea) ProcessNext(fn registry.ProcessFunc) error {
	s.mu.Lock()
	queue, err := s.store.List()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("reading queue: %w", err)
	}
	if len(queue) == 0 {
		s.mu.Unlock()
		return nil
	}
	upload := queue[0]

	reader, err := s.store.OpenContent(upload.Digest)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("content not found: %s: %w", upload.Digest, err)
	}
	defer reader.Close()

	// Call the processing function outside the lock
	if err := fn(reader, upload); err != nil {
		return err
	}

	return s.Discard(upload.VersionID)
}

// Discard removes the upload for versionID and its content once no other
// upload references it. Unknown versions are ignored.
func (s *stagingArea) Discard(versionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.store.List()
	if err != nil {
		return fmt.Errorf("reading queue: %w", err)
	}
	i := indexOf(queue, versionID)
	if i < 0 {
		return nil
	}
	removed := queue[i]
	queue = append(queue[:i:i], queue[i+1:]...)
	if err := s.store.Save(queue); err != nil {
		return fmt.Errorf("removing from queue: %w", err)
	}
	if countDigest(queue, removed.Digest) == 0 {
		s.store.RemoveContent(removed.Digest)
	}
	return nil
}

// Count returns the number of staged uploads in the queue.
func (s *stagingArea) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, err := s.store.List()
	if err != nil {
		return 0, err
	}
	return len(queue), nil
}

// Size returns the total size of staged content in bytes.
func (s *stagingArea) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ContentSize()
}

// IsStaged reports whether versionID has an upload in the queue.
func (s *stagingArea) IsStaged(versionID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, err := s.store.List()
	if err != nil {
		return false, err
	}
	return indexOf(queue, versionID) >= 0, nil
}
