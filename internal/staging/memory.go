package staging

import (
	"bytes"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"

	"vsxreg/internal/registry"
)

// memoryStore is an in-memory stagingStore, useful for tests and for
// deployments where pending uploads need not survive a restart.
type memoryStore struct {
	content map[string][]byte
	queue   []registry.StagedUpload
}

func newMemoryStore() *memoryStore {
	return &memoryStore{content: make(map[string][]byte)}
}

func (m *memoryStore) StoreContent(r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, fmt.Errorf("reading content: %w", err)
	}
	d := digest.FromBytes(data).String()
	if _, ok := m.content[d]; !ok {
		m.content[d] = data
	}
	return d, int64(len(data)), nil
}

func (m *memoryStore) RemoveContent(d string) {
	delete(m.content, d)
}

func (m *memoryStore) OpenContent(d string) (io.ReadCloser, error) {
	data, ok := m.content[d]
	if !ok {
		return nil, fmt.Errorf("no staged content for %s", d)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) ContentSize() (int64, error) {
	var total int64
	for _, data := range m.content {
		total += int64(len(data))
	}
	return total, nil
}

func (m *memoryStore) List() ([]registry.StagedUpload, error) {
	return append([]registry.StagedUpload(nil), m.queue...), nil
}

func (m *memoryStore) Save(queue []registry.StagedUpload) error {
	m.queue = append([]registry.StagedUpload(nil), queue...)
	return nil
}

// NewMemoryStagingArea creates a new in-memory staging area.
// maxSize is the maximum total size in bytes; must be positive.
func NewMemoryStagingArea(clock registry.Clock, maxSize int64) registry.StagingArea {
	return newStagingArea(newMemoryStore(), clock, maxSize)
}
