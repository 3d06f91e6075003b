// Package types provides shared type definitions for the CodeGuard scanner.
//
// This package defines the domain types exchanged between the pipeline
// stages (ingest, chunk, index, retrieve, generate, aggregate) and the
// request/response contracts exposed to callers of the scan controller.
//
// # Core Types
//
// FileDescriptor names one file admitted by the ingestor:
//
//	file := types.FileDescriptor{
//	    Path:     "app/handlers.py",
//	    Language: "python",
//	}
//
// Chunk is a bounded, located slice of a file's text and the unit of
// embedding and detection:
//
//	chunk := types.Chunk{
//	    ID:       types.ChunkID("app/handlers.py", 10, 42),
//	    FilePath: "app/handlers.py",
//	    Location: types.Location{FilePath: "app/handlers.py", StartLine: 10, EndLine: 42},
//	}
//
// Finding is a raw detection produced by one generation pass over one
// chunk. Issue is the canonical, deduplicated form surfaced in results:
//
//	issue := types.Issue{
//	    ID:       "3f1c...",
//	    Type:     types.IssueVulnerability,
//	    Severity: types.SeverityHigh,
//	    Title:    "SQL injection in login handler",
//	}
//
// # Scan Contracts
//
// ScanRequest, ScanResponse and ScanResult are the boundary shapes. A
// ScanResponse is the counts-only view used for polling; a ScanResult
// adds the ordered issues and a Summary that is always recomputed from
// them:
//
//	summary := types.Summarize(issues)
//	// summary.TotalIssues == len(issues) == summary.BySeverity.Total()
//
// # Severity Ordering
//
// Severities are totally ordered: critical > high > medium > low > info.
// Use Severity.Rank for comparisons and Severity.Max to pick the more
// severe of two values.
//
// # Errors
//
// The pipeline error taxonomy (IngestionError, ChunkingError,
// EmbeddingError, GenerationError, AggregationError) is defined in
// errors.go. All error types implement Unwrap and work with errors.As.
//
// # Thread Safety
//
// Types in this package are plain values and are not safe for
// concurrent mutation. Chunks are treated as immutable once created.
package types
