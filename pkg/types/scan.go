package types

import (
	"fmt"
	"strings"
	"time"
)

// ScanStatus represents the lifecycle state of a scan
type ScanStatus string

const (
	StatusPending    ScanStatus = "pending"
	StatusInProgress ScanStatus = "in_progress"
	StatusCompleted  ScanStatus = "completed"
	StatusFailed     ScanStatus = "failed"
)

// Terminal reports whether no further transitions are possible
func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal, forward
// transition of the scan state machine
func (s ScanStatus) CanTransition(next ScanStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusFailed
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// ScanRequest describes what to scan. Exactly one of RepositoryURL or
// RepositoryPath must be set.
type ScanRequest struct {
	RepositoryURL   string   `json:"repository_url,omitempty"`
	RepositoryPath  string   `json:"repository_path,omitempty"`
	Branch          string   `json:"branch,omitempty"`
	FilePaths       []string `json:"file_paths,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
}

// Validate checks the exactly-one-target rule
func (r ScanRequest) Validate() error {
	hasURL := strings.TrimSpace(r.RepositoryURL) != ""
	hasPath := strings.TrimSpace(r.RepositoryPath) != ""
	switch {
	case hasURL && hasPath:
		return fmt.Errorf("%w: repository_url and repository_path are mutually exclusive", ErrInvalidRequest)
	case !hasURL && !hasPath:
		return fmt.Errorf("%w: one of repository_url or repository_path is required", ErrInvalidRequest)
	}
	return nil
}

// Target returns the URL or path being scanned
func (r ScanRequest) Target() string {
	if r.RepositoryURL != "" {
		return r.RepositoryURL
	}
	return r.RepositoryPath
}

// SeverityCounts holds issue counts per severity. All keys are always
// present in its JSON form.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Add increments the counter for sev
func (c *SeverityCounts) Add(sev Severity) {
	switch sev {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	case SeverityInfo:
		c.Info++
	}
}

// Get returns the count for sev
func (c SeverityCounts) Get(sev Severity) int {
	switch sev {
	case SeverityCritical:
		return c.Critical
	case SeverityHigh:
		return c.High
	case SeverityMedium:
		return c.Medium
	case SeverityLow:
		return c.Low
	case SeverityInfo:
		return c.Info
	default:
		return 0
	}
}

// Total sums all severities
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Info
}

// TypeCounts holds issue counts per issue type
type TypeCounts struct {
	Vulnerability int `json:"vulnerability"`
	CodeReview    int `json:"code_review"`
	AutoComment   int `json:"auto_comment"`
}

// Add increments the counter for t
func (c *TypeCounts) Add(t IssueType) {
	switch t {
	case IssueVulnerability:
		c.Vulnerability++
	case IssueCodeReview:
		c.CodeReview++
	case IssueAutoComment:
		c.AutoComment++
	}
}

// Total sums all types
func (c TypeCounts) Total() int {
	return c.Vulnerability + c.CodeReview + c.AutoComment
}

// Summary aggregates an issue set. It is always derived from the issues it
// describes and never stored independently.
type Summary struct {
	TotalIssues int            `json:"total_issues"`
	BySeverity  SeverityCounts `json:"by_severity"`
	ByType      TypeCounts     `json:"by_type"`
}

// Summarize recomputes a summary from issues
func Summarize(issues []Issue) Summary {
	s := Summary{TotalIssues: len(issues)}
	for i := range issues {
		s.BySeverity.Add(issues[i].Severity)
		s.ByType.Add(issues[i].Type)
	}
	return s
}

// Warning records a non-fatal, per-unit problem encountered during a scan
type Warning struct {
	Stage    string `json:"stage"`
	FilePath string `json:"file_path,omitempty"`
	ChunkID  string `json:"chunk_id,omitempty"`
	Pass     string `json:"pass,omitempty"`
	Message  string `json:"message"`
}

// Warning stages
const (
	StageIngest     = "ingest"
	StageChunking   = "chunking"
	StageEmbedding  = "embedding"
	StageRetrieval  = "retrieval"
	StageGeneration = "generation"
)

// ScanResponse is the counts-only view of a scan used for listing and polling
type ScanResponse struct {
	ScanID           string         `json:"scan_id"`
	Status           ScanStatus     `json:"status"`
	RepositoryURL    string         `json:"repository_url,omitempty"`
	RepositoryPath   string         `json:"repository_path,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	TotalFiles       int            `json:"total_files"`
	ScannedFiles     int            `json:"scanned_files"`
	TotalIssues      int            `json:"total_issues"`
	IssuesBySeverity SeverityCounts `json:"issues_by_severity"`
	Warnings         int            `json:"warnings"`
	Error            string         `json:"error,omitempty"`
}

// ScanResult is the full view of a scan including its ordered issues
type ScanResult struct {
	ScanID         string     `json:"scan_id"`
	Status         ScanStatus `json:"status"`
	RepositoryURL  string     `json:"repository_url,omitempty"`
	RepositoryPath string     `json:"repository_path,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	TotalFiles     int        `json:"total_files"`
	ScannedFiles   int        `json:"scanned_files"`
	Error          string     `json:"error,omitempty"`
	Issues         []Issue    `json:"issues"`
	Summary        Summary    `json:"summary"`
	Warnings       []Warning  `json:"warnings,omitempty"`
}

// Response derives the counts-only view from the result
func (r *ScanResult) Response() ScanResponse {
	summary := Summarize(r.Issues)
	return ScanResponse{
		ScanID:           r.ScanID,
		Status:           r.Status,
		RepositoryURL:    r.RepositoryURL,
		RepositoryPath:   r.RepositoryPath,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		TotalFiles:       r.TotalFiles,
		ScannedFiles:     r.ScannedFiles,
		TotalIssues:      summary.TotalIssues,
		IssuesBySeverity: summary.BySeverity,
		Warnings:         len(r.Warnings),
		Error:            r.Error,
	}
}
