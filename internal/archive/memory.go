package archive

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"compsynth/internal/synth"
)

// MemoryArchive keeps everything in memory. Useful for tests and dry runs.
// Safe for concurrent use.
type MemoryArchive struct {
	name            string
	datasets        map[string][]byte
	metadata        map[string][]byte
	metadataVersion map[string]int64
	mu              sync.RWMutex
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive(name string) *MemoryArchive {
	return &MemoryArchive{
		name:            name,
		datasets:        make(map[string][]byte),
		metadata:        make(map[string][]byte),
		metadataVersion: make(map[string]int64),
	}
}

func (m *MemoryArchive) PutDataset(name string, r io.Reader, size int64) error {
	data, err := readAllSized(r, size)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[name] = data
	return nil
}

func (m *MemoryArchive) GetDataset(name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.datasets[name]
	if !ok {
		return fmt.Errorf("dataset not found: %s", name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	return nil
}

func (m *MemoryArchive) PutMetadata(name string, r io.Reader, size int64, version int64) error {
	data, err := readAllSized(r, size)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[name] = data
	m.metadataVersion[name] = version
	return nil
}

// GetMetadataVersion returns 0 for items never stored.
func (m *MemoryArchive) GetMetadataVersion(name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadataVersion[name], nil
}

// GetMetadata writes a stored metadata item to w.
func (m *MemoryArchive) GetMetadata(name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.metadata[name]
	if !ok {
		return fmt.Errorf("metadata not found: %s", name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// Datasets returns the names of all stored datasets in sorted order.
func (m *MemoryArchive) Datasets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.datasets))
}

// ValidateSetup always succeeds for the in-memory archive.
func (m *MemoryArchive) ValidateSetup() error {
	return nil
}

func readAllSized(r io.Reader, size int64) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	return data, nil
}

var _ synth.Archive = (*MemoryArchive)(nil)
