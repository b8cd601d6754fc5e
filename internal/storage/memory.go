package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/opencontainers/go-digest"

	"vsxreg/internal/errs"
	"vsxreg/internal/model"
	"vsxreg/internal/registry"
)

// MemoryStore is an in-memory implementation of registry.BlobStore.
// It is useful for tests and ephemeral registries and is safe for concurrent use.
type MemoryStore struct {
	blobs map[string][]byte
	mu    sync.RWMutex
}

var _ registry.BlobStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Type() string { return model.StorageMemory }

func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader) (digest.Digest, int64, error) {
	var buf bytes.Buffer
	d, n, err := putDigest(&buf, r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read content: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = buf.Bytes()
	return d, n, nil
}

func (m *MemoryStore) Get(_ context.Context, key string, w io.Writer, expected digest.Digest) error {
	m.mu.RLock()
	data, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return errs.NotFoundf("blob not found: %s", key)
	}
	return copyVerified(w, bytes.NewReader(data), key, expected)
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Location always returns "": memory blobs are streamed by the registry.
func (m *MemoryStore) Location(context.Context, string) (string, error) {
	return "", nil
}

func (m *MemoryStore) ValidateSetup(context.Context) error {
	return nil
}

// Corrupt overwrites the stored bytes of key without updating any digest.
func (m *MemoryStore) Corrupt(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
