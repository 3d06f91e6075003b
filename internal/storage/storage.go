package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidVector is returned when a vector is empty or contains no data
	ErrInvalidVector = errors.New("invalid vector")
	// ErrClosed is returned by operations on a closed index
	ErrClosed = errors.New("index closed")
)

// Backend names accepted by NewIndex
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// VectorIndex stores chunk embeddings namespaced by scan. All methods are
// safe for concurrent use.
type VectorIndex interface {
	// Upsert stores a chunk vector. The last write for a chunk ID wins.
	Upsert(ctx context.Context, scanID, chunkID string, vector []float32, meta ChunkMetadata) error

	// Query returns up to k matches from scanID only, by descending cosine
	// similarity with ties broken by ascending chunk ID
	Query(ctx context.Context, scanID string, vector []float32, k int) ([]Match, error)

	// Count returns the number of vectors stored for scanID
	Count(ctx context.Context, scanID string) (int, error)

	// DeleteScan removes every vector stored for scanID
	DeleteScan(ctx context.Context, scanID string) error

	// Close releases any resources held by the index
	Close() error
}

// ChunkMetadata carries enough of a chunk to render it as retrieved context
// without re-reading the file
type ChunkMetadata struct {
	FilePath     string
	StartLine    int
	EndLine      int
	Language     string
	FunctionName string
	Content      string
}

// Match is one query result
type Match struct {
	ChunkID  string
	Score    float64
	Metadata ChunkMetadata
}

// NewIndex creates the index selected by backend. path is ignored by the
// memory backend; an empty path opens an in-memory SQLite database.
func NewIndex(backend, path string) (VectorIndex, error) {
	switch strings.ToLower(backend) {
	case BackendMemory, "":
		return NewMemoryIndex(), nil
	case BackendSQLite:
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteIndex(path)
	default:
		return nil, fmt.Errorf("unknown index backend %q", backend)
	}
}

func validateVector(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidVector)
	}
	return nil
}
