package remote

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryBackend keeps documents in process memory. Writes can be made to
// fail, which tests use to exercise the error path of asynchronous writes.
type MemoryBackend struct {
	mu       sync.RWMutex
	data     map[string]map[string]map[string]any
	writeErr error
	writes   int
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]map[string]map[string]any)}
}

// FailWrites makes every later Put and PutBatch return err. A nil err
// restores normal operation.
func (m *MemoryBackend) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Writes returns the number of successful Put and PutBatch calls.
func (m *MemoryBackend) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MemoryBackend) Get(_ context.Context, collection, id string) (map[string]any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields, ok := m.data[collection][id]
	if !ok {
		return nil, false, nil
	}
	return maps.Clone(fields), true, nil
}

func (m *MemoryBackend) Put(_ context.Context, collection, id string, fields map[string]any, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.putLocked(collection, id, fields, merge)
	m.writes++
	return nil
}

func (m *MemoryBackend) PutBatch(_ context.Context, collection string, writes []Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	for _, w := range writes {
		m.putLocked(collection, w.ID, w.Fields, w.Merge)
	}
	m.writes++
	return nil
}

func (m *MemoryBackend) putLocked(collection, id string, fields map[string]any, merge bool) {
	docs, ok := m.data[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		m.data[collection] = docs
	}
	docs[id] = MergeFields(docs[id], fields, merge)
}

func (m *MemoryBackend) List(_ context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]Document, 0, len(m.data[collection]))
	for id, fields := range m.data[collection] {
		docs = append(docs, Document{ID: id, Fields: maps.Clone(fields)})
	}
	slices.SortFunc(docs, func(a, b Document) int { return strings.Compare(a.ID, b.ID) })
	return docs, nil
}
