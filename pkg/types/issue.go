package types

import (
	"errors"
	"strings"
)

// Severity represents the severity of an issue
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// AllSeverities lists severities from most to least severe
var AllSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Rank returns a comparable rank, higher is more severe. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Max returns the more severe of s and other
func (s Severity) Max(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// ParseSeverity normalizes a severity string. The second return value is
// false when the input does not name a known severity.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	switch sev {
	case "crit":
		sev = SeverityCritical
	case "moderate", "warning":
		sev = SeverityMedium
	case "informational", "note":
		sev = SeverityInfo
	}
	return sev, sev.Valid()
}

// IssueType represents the detection pass family an issue belongs to
type IssueType string

const (
	IssueVulnerability IssueType = "vulnerability"
	IssueCodeReview    IssueType = "code_review"
	IssueAutoComment   IssueType = "auto_comment"
)

// AllIssueTypes lists the issue types in report order
var AllIssueTypes = []IssueType{IssueVulnerability, IssueCodeReview, IssueAutoComment}

// Valid reports whether t is a known issue type
func (t IssueType) Valid() bool {
	switch t {
	case IssueVulnerability, IssueCodeReview, IssueAutoComment:
		return true
	default:
		return false
	}
}

// Location identifies a line range inside a scanned file
type Location struct {
	FilePath     string `json:"file_path"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	StartColumn  *int   `json:"start_column,omitempty"`
	EndColumn    *int   `json:"end_column,omitempty"`
	FunctionName string `json:"function_name,omitempty"`
}

// Validate checks the location invariants
func (l Location) Validate() error {
	if l.FilePath == "" {
		return errors.New("location file path is required")
	}
	if l.StartLine <= 0 || l.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if l.EndLine < l.StartLine {
		return errors.New("end line must be >= start line")
	}
	return nil
}

// Span returns the number of lines covered, inclusive
func (l Location) Span() int {
	if l.EndLine < l.StartLine {
		return 0
	}
	return l.EndLine - l.StartLine + 1
}

// Overlap returns the number of lines shared with other. Locations in
// different files never overlap.
func (l Location) Overlap(other Location) int {
	if l.FilePath != other.FilePath {
		return 0
	}
	start := max(l.StartLine, other.StartLine)
	end := min(l.EndLine, other.EndLine)
	if end < start {
		return 0
	}
	return end - start + 1
}

// UnionSpan returns the number of lines from the earliest start to the
// latest end of the two locations
func (l Location) UnionSpan(other Location) int {
	return max(l.EndLine, other.EndLine) - min(l.StartLine, other.StartLine) + 1
}

// Contains reports whether line falls inside the location
func (l Location) Contains(line int) bool {
	return line >= l.StartLine && line <= l.EndLine
}

// Finding is a raw detection emitted by one pass for one chunk, before
// deduplication
type Finding struct {
	Type          IssueType      `json:"type"`
	Severity      Severity       `json:"severity"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Location      Location       `json:"location"`
	RuleID        string         `json:"rule_id,omitempty"`
	CWEID         string         `json:"cwe_id,omitempty"`
	OWASPCategory string         `json:"owasp_category,omitempty"`
	Suggestion    string         `json:"suggestion,omitempty"`
	CodeSnippet   string         `json:"code_snippet,omitempty"`
	FixedCode     string         `json:"fixed_code,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`

	// Provenance
	ChunkID string `json:"chunk_id"`
	Pass    string `json:"pass"`
}

// Issue is a canonical, deduplicated finding surfaced in scan results
type Issue struct {
	ID            string         `json:"id"`
	Type          IssueType      `json:"type"`
	Severity      Severity       `json:"severity"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Location      Location       `json:"location"`
	RuleID        string         `json:"rule_id,omitempty"`
	CWEID         string         `json:"cwe_id,omitempty"`
	OWASPCategory string         `json:"owasp_category,omitempty"`
	Suggestion    string         `json:"suggestion,omitempty"`
	CodeSnippet   string         `json:"code_snippet,omitempty"`
	FixedCode     string         `json:"fixed_code,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Validate checks the issue invariants that do not depend on file contents
func (i *Issue) Validate() error {
	if i.ID == "" {
		return errors.New("issue ID is required")
	}
	if !i.Type.Valid() {
		return errors.New("invalid issue type")
	}
	if !i.Severity.Valid() {
		return errors.New("invalid issue severity")
	}
	return i.Location.Validate()
}
