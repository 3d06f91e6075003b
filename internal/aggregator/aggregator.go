// Package aggregator merges raw findings from every (chunk, pass) unit of a
// scan into a canonical, deduplicated issue set with stable identifiers.
package aggregator

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/dshills/codeguard/pkg/types"
)

// Default thresholds
const (
	DefaultOverlapFraction = 0.25
	DefaultTitleSimilarity = 0.8
)

// MetadataMergedCount is the metadata key recording how many findings an
// issue was merged from
const MetadataMergedCount = "merged_count"

// Config holds deduplication thresholds
type Config struct {
	OverlapFraction float64 // Overlap over union span must exceed this
	TitleSimilarity float64 // Title Jaccard must reach this when a rule id is missing
}

// DefaultConfig returns the default thresholds. Config values are used as
// given: a zero OverlapFraction merges any overlapping pair.
func DefaultConfig() Config {
	return Config{OverlapFraction: DefaultOverlapFraction, TitleSimilarity: DefaultTitleSimilarity}
}

// Duplicate reports whether a and b describe the same problem
func (c Config) Duplicate(a, b *types.Finding) bool {
	if a.Type != b.Type || a.Location.FilePath != b.Location.FilePath {
		return false
	}

	union := a.Location.UnionSpan(b.Location)
	if union <= 0 {
		return false
	}
	if float64(a.Location.Overlap(b.Location))/float64(union) <= c.OverlapFraction {
		return false
	}

	if a.RuleID != "" && b.RuleID != "" {
		return a.RuleID == b.RuleID
	}
	return TitleSimilarity(a.Title, b.Title) >= c.TitleSimilarity
}

// Aggregate deduplicates findings into issues. The result depends only on
// the set of findings, not their order, and is ordered by severity
// (descending), file path, start line and id.
func Aggregate(scanID string, findings []types.Finding, cfg Config) ([]types.Issue, error) {
	if len(findings) == 0 {
		return []types.Issue{}, nil
	}

	sorted := slices.Clone(findings)
	slices.SortStableFunc(sorted, compareFindings)

	clusters := cluster(sorted, cfg)

	issues := make([]types.Issue, 0, len(clusters))
	seen := make(map[string]int, len(clusters))
	for _, members := range clusters {
		issue := merge(scanID, members)
		if err := issue.Validate(); err != nil {
			return nil, &types.AggregationError{Err: fmt.Errorf("issue %q: %w", issue.Title, err)}
		}
		if prev, dup := seen[issue.ID]; dup {
			return nil, &types.AggregationError{
				Err: fmt.Errorf("issue id collision %s between %q and %q", issue.ID, issues[prev].Title, issue.Title),
			}
		}
		seen[issue.ID] = len(issues)
		issues = append(issues, issue)
	}

	SortIssues(issues)
	return issues, nil
}

// cluster groups duplicates by single linkage. Members keep canonical order
// and clusters are ordered by their first member.
func cluster(findings []types.Finding, cfg Config) [][]*types.Finding {
	parent := make([]int, len(findings))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	// Only findings of the same type and file can merge, and canonical
	// order keeps those contiguous
	for lo := 0; lo < len(findings); {
		hi := lo + 1
		for hi < len(findings) && sameGroup(&findings[lo], &findings[hi]) {
			hi++
		}
		for i := lo; i < hi; i++ {
			for j := i + 1; j < hi; j++ {
				if cfg.Duplicate(&findings[i], &findings[j]) {
					ri, rj := find(i), find(j)
					if ri != rj {
						parent[max(ri, rj)] = min(ri, rj)
					}
				}
			}
		}
		lo = hi
	}

	index := map[int]int{}
	var clusters [][]*types.Finding
	for i := range findings {
		root := find(i)
		ci, ok := index[root]
		if !ok {
			ci = len(clusters)
			index[root] = ci
			clusters = append(clusters, nil)
		}
		clusters[ci] = append(clusters[ci], &findings[i])
	}
	return clusters
}

func sameGroup(a, b *types.Finding) bool {
	return a.Location.FilePath == b.Location.FilePath && a.Type == b.Type
}

// merge collapses a cluster into one issue around its most severe member
func merge(scanID string, members []*types.Finding) types.Issue {
	rep := members[0]
	for _, m := range members[1:] {
		if m.Severity.Rank() > rep.Severity.Rank() {
			rep = m
		}
	}

	issue := types.Issue{
		Type:          rep.Type,
		Severity:      rep.Severity,
		Title:         rep.Title,
		Description:   rep.Description,
		Location:      rep.Location,
		RuleID:        rep.RuleID,
		CWEID:         rep.CWEID,
		OWASPCategory: rep.OWASPCategory,
		CodeSnippet:   rep.CodeSnippet,
		FixedCode:     rep.FixedCode,
	}

	suggestions := []string{}
	addSuggestion := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(suggestions, s) {
			suggestions = append(suggestions, s)
		}
	}
	addSuggestion(rep.Suggestion)

	meta := map[string]any{}
	for _, m := range members {
		if m == rep {
			continue
		}
		maps.Copy(meta, m.Metadata)
		addSuggestion(m.Suggestion)
		fill(&issue.Description, m.Description)
		fill(&issue.RuleID, m.RuleID)
		fill(&issue.CWEID, m.CWEID)
		fill(&issue.OWASPCategory, m.OWASPCategory)
		fill(&issue.CodeSnippet, m.CodeSnippet)
		fill(&issue.FixedCode, m.FixedCode)
		fill(&issue.Location.FunctionName, m.Location.FunctionName)
	}
	maps.Copy(meta, rep.Metadata)
	if len(members) > 1 {
		meta[MetadataMergedCount] = len(members)
	}
	if len(meta) > 0 {
		issue.Metadata = meta
	}
	issue.Suggestion = strings.Join(suggestions, "\n\n")

	issue.ID = IssueID(scanID, rep)
	return issue
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// IssueID derives a stable id from the scan and the representative
// finding's location, rule (or normalized title) and type
func IssueID(scanID string, f *types.Finding) string {
	key := "rule:" + f.RuleID
	if f.RuleID == "" {
		key = "title:" + NormalizeTitle(f.Title)
	}
	h := sha256.Sum256([]byte(strings.Join([]string{
		scanID,
		f.Location.FilePath,
		fmt.Sprint(f.Location.StartLine),
		fmt.Sprint(f.Location.EndLine),
		key,
		string(f.Type),
	}, "\x00")))
	return hex.EncodeToString(h[:16])
}

// compareFindings is the canonical order applied before clustering
func compareFindings(a, b types.Finding) int {
	return cmp.Or(
		cmp.Compare(a.Location.FilePath, b.Location.FilePath),
		cmp.Compare(a.Type, b.Type),
		cmp.Compare(a.Location.StartLine, b.Location.StartLine),
		cmp.Compare(a.Location.EndLine, b.Location.EndLine),
		cmp.Compare(b.Severity.Rank(), a.Severity.Rank()),
		cmp.Compare(a.RuleID, b.RuleID),
		cmp.Compare(a.Title, b.Title),
		cmp.Compare(a.Description, b.Description),
		cmp.Compare(a.Suggestion, b.Suggestion),
		cmp.Compare(a.CWEID, b.CWEID),
		cmp.Compare(a.OWASPCategory, b.OWASPCategory),
		cmp.Compare(a.CodeSnippet, b.CodeSnippet),
		cmp.Compare(a.FixedCode, b.FixedCode),
		cmp.Compare(a.Location.FunctionName, b.Location.FunctionName),
		cmp.Compare(a.ChunkID, b.ChunkID),
		cmp.Compare(a.Pass, b.Pass),
	)
}

// SortIssues orders issues by severity (descending), path, start line and id
func SortIssues(issues []types.Issue) {
	slices.SortFunc(issues, func(a, b types.Issue) int {
		return cmp.Or(
			cmp.Compare(b.Severity.Rank(), a.Severity.Rank()),
			cmp.Compare(a.Location.FilePath, b.Location.FilePath),
			cmp.Compare(a.Location.StartLine, b.Location.StartLine),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

// Aggregator accumulates findings as a scan progresses and serves the
// current deduplicated issue set. Safe for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	scanID   string
	cfg      Config
	findings []types.Finding
	issues   []types.Issue
	dirty    bool
}

// New creates an empty accumulator for scanID
func New(scanID string, cfg Config) *Aggregator {
	return &Aggregator{scanID: scanID, cfg: cfg, issues: []types.Issue{}}
}

// Add records raw findings
func (a *Aggregator) Add(findings ...types.Finding) {
	if len(findings) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.findings = append(a.findings, findings...)
	a.dirty = true
}

// Len returns the number of raw findings recorded
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.findings)
}

// Issues returns a copy of the deduplicated issue set
func (a *Aggregator) Issues() ([]types.Issue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dirty {
		issues, err := Aggregate(a.scanID, a.findings, a.cfg)
		if err != nil {
			return nil, err
		}
		a.issues = issues
		a.dirty = false
	}
	return slices.Clone(a.issues), nil
}
