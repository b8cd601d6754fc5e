package staging

import (
	"io"

	"vsxreg/internal/registry"
)

// stagingStore abstracts the storage mechanics for a staging area.
// Implementations handle content storage and upload queue management.
// Concurrency is managed by the caller (stagingArea.mu), so stores
// do not need to be safe for concurrent use.
type stagingStore interface {
	// StoreContent reads from r, computes its digest, and stores content.
	// Deduplicates if the digest already exists. Returns digest and size.
	StoreContent(r io.Reader) (digest string, size int64, err error)

	// RemoveContent removes stored content by digest (best-effort).
	RemoveContent(digest string)

	// OpenContent returns a reader for stored content by digest.
	OpenContent(digest string) (io.ReadCloser, error)

	// ContentSize returns total bytes of all stored content.
	ContentSize() (int64, error)

	// List returns the queued uploads, oldest first.
	List() ([]registry.StagedUpload, error)

	// Save replaces the queue.
	Save(queue []registry.StagedUpload) error
}

// countDigest returns how many queued uploads reference digest.
func countDigest(queue []registry.StagedUpload, digest string) int {
	n := 0
	for _, u := range queue {
		if u.Digest == digest {
			n++
		}
	}
	return n
}

// indexOf returns the queue position of versionID, or -1.
func indexOf(queue []registry.StagedUpload, versionID int64) int {
	for i, u := range queue {
		if u.VersionID == versionID {
			return i
		}
	}
	return -1
}
