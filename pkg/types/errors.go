package types

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrInvalidRequest   = errors.New("invalid scan request")
	ErrScanNotFound     = errors.New("scan not found")
	ErrScanCancelled    = errors.New("scan cancelled")
	ErrScanTimeout      = errors.New("scan exceeded maximum duration")
	ErrScanFinished     = errors.New("scan already finished")
	ErrFailureThreshold = errors.New("failure threshold exceeded")
	ErrUnparsable       = errors.New("content is not valid UTF-8 text")
)

// IngestionErrorKind classifies ingestion failures
type IngestionErrorKind string

const (
	IngestFetchFailed  IngestionErrorKind = "fetch_failed"
	IngestPathNotFound IngestionErrorKind = "path_not_found"
)

// IngestionError is fatal: the scan fails without a file set
type IngestionError struct {
	Kind   IngestionErrorKind
	Target string
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingestion %s for %s: %v", e.Kind, e.Target, e.Err)
	}
	return fmt.Sprintf("ingestion %s for %s", e.Kind, e.Target)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// ChunkingError is per-file; the file counts as scanned with zero chunks
type ChunkingError struct {
	FilePath string
	Err      error
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking %s: %v", e.FilePath, e.Err)
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// EmbeddingError is per-chunk; the chunk is analysed without retrieved context
type EmbeddingError struct {
	ChunkID string
	Err     error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding chunk %s: %v", e.ChunkID, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationError is per (chunk, pass) unit and counts toward the scan's
// failure fraction
type GenerationError struct {
	ChunkID  string
	Pass     string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation pass %s for chunk %s failed after %d attempt(s): %v", e.Pass, e.ChunkID, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// AggregationError indicates a logic defect while building the issue set.
// It is always fatal.
type AggregationError struct {
	Err error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation: %v", e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
