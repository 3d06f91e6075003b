package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dshills/codeguard/pkg/types"
)

// WriteMarkdown writes a summary table followed by one section per
// severity that has issues
func WriteMarkdown(w io.Writer, res *types.ScanResult) error {
	var b strings.Builder

	b.WriteString("# Scan report\n\n")
	fmt.Fprintf(&b, "- **Scan:** `%s`\n", res.ScanID)
	if target := target(res); target != "" {
		fmt.Fprintf(&b, "- **Target:** %s\n", target)
	}
	fmt.Fprintf(&b, "- **Status:** %s\n", res.Status)
	fmt.Fprintf(&b, "- **Files:** %d of %d scanned\n", res.ScannedFiles, res.TotalFiles)
	if res.CompletedAt != nil {
		fmt.Fprintf(&b, "- **Duration:** %s\n", res.CompletedAt.Sub(res.StartedAt).Round(time.Millisecond))
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", res.Error)
	}

	summary := types.Summarize(res.Issues)
	b.WriteString("\n## Summary\n\n| Severity | Issues |\n|---|---|\n")
	for _, sev := range types.AllSeverities {
		fmt.Fprintf(&b, "| %s | %d |\n", sev, summary.BySeverity.Get(sev))
	}
	fmt.Fprintf(&b, "| **total** | %d |\n", summary.TotalIssues)

	for _, sev := range types.AllSeverities {
		var issues []*types.Issue
		for i := range res.Issues {
			if res.Issues[i].Severity == sev {
				issues = append(issues, &res.Issues[i])
			}
		}
		if len(issues) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (%d)\n", titleCase(string(sev)), len(issues))
		for _, issue := range issues {
			writeIssue(&b, issue)
		}
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintf(&b, "\n## Warnings (%d)\n\n", len(res.Warnings))
		for _, warn := range res.Warnings {
			where := warn.FilePath
			if warn.Pass != "" {
				where += " [" + warn.Pass + "]"
			}
			fmt.Fprintf(&b, "- `%s` %s: %s\n", warn.Stage, where, warn.Message)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeIssue(b *strings.Builder, issue *types.Issue) {
	fmt.Fprintf(b, "\n### %s\n\n", issue.Title)
	fmt.Fprintf(b, "`%s:%d-%d` · %s", issue.Location.FilePath, issue.Location.StartLine, issue.Location.EndLine, issue.Type)
	if issue.CWEID != "" {
		fmt.Fprintf(b, " · %s", issue.CWEID)
	}
	if issue.OWASPCategory != "" {
		fmt.Fprintf(b, " · %s", issue.OWASPCategory)
	}
	b.WriteString("\n")

	if issue.Description != "" {
		fmt.Fprintf(b, "\n%s\n", issue.Description)
	}
	if issue.CodeSnippet != "" {
		fmt.Fprintf(b, "\n```\n%s\n```\n", strings.TrimRight(issue.CodeSnippet, "\n"))
	}
	if issue.Suggestion != "" {
		fmt.Fprintf(b, "\n**Suggestion:** %s\n", issue.Suggestion)
	}
	if issue.FixedCode != "" {
		fmt.Fprintf(b, "\n```\n%s\n```\n", strings.TrimRight(issue.FixedCode, "\n"))
	}
}

func target(res *types.ScanResult) string {
	if res.RepositoryURL != "" {
		return res.RepositoryURL
	}
	return res.RepositoryPath
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
