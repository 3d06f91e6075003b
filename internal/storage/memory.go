package storage

import (
	"context"
	"sync"
)

type memoryEntry struct {
	vector []float32
	meta   ChunkMetadata
}

// MemoryIndex is an in-process VectorIndex. Queries scan the namespace
// linearly, which is adequate for per-scan chunk counts.
type MemoryIndex struct {
	mu     sync.RWMutex
	scans  map[string]map[string]memoryEntry
	closed bool
}

// NewMemoryIndex creates an empty in-memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{scans: make(map[string]map[string]memoryEntry)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, scanID, chunkID string, vector []float32, meta ChunkMetadata) error {
	if err := validateVector(vector); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	ns, ok := m.scans[scanID]
	if !ok {
		ns = make(map[string]memoryEntry)
		m.scans[scanID] = ns
	}
	ns[chunkID] = memoryEntry{vector: vec, meta: meta}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, scanID string, vector []float32, k int) ([]Match, error) {
	if err := validateVector(vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	ns := m.scans[scanID]
	candidates := make([]candidate, 0, len(ns))
	for id, e := range ns {
		if len(e.vector) != len(vector) {
			continue
		}
		candidates = append(candidates, candidate{chunkID: id, score: cosineSimilarity(vector, e.vector), meta: e.meta})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildMatches(candidates, k), nil
}

func (m *MemoryIndex) Count(_ context.Context, scanID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scans[scanID]), nil
}

func (m *MemoryIndex) DeleteScan(_ context.Context, scanID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scans, scanID)
	return nil
}

func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.scans = nil
	return nil
}
