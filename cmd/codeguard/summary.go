package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/dshills/codeguard/pkg/types"
)

// printSummary writes a coloured per-severity table for res
func printSummary(w io.Writer, res *types.ScanResult) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	severityColor := map[types.Severity]func(a ...interface{}) string{
		types.SeverityCritical: color.New(color.FgRed, color.Bold).SprintFunc(),
		types.SeverityHigh:     red,
		types.SeverityMedium:   color.New(color.FgYellow).SprintFunc(),
		types.SeverityLow:      color.New(color.FgBlue).SprintFunc(),
		types.SeverityInfo:     gray,
	}

	status := green(string(res.Status))
	if res.Status != types.StatusCompleted {
		status = red(string(res.Status))
	}

	fmt.Fprintf(w, "\n%s %s\n", cyan("Scan"), res.ScanID)
	fmt.Fprintf(w, "  Status:   %s\n", status)
	fmt.Fprintf(w, "  Files:    %d/%d\n", res.ScannedFiles, res.TotalFiles)
	if res.CompletedAt != nil {
		fmt.Fprintf(w, "  Duration: %s\n", res.CompletedAt.Sub(res.StartedAt).Round(time.Millisecond))
	}
	if res.Error != "" {
		fmt.Fprintf(w, "  Error:    %s\n", red(res.Error))
	}

	summary := types.Summarize(res.Issues)
	fmt.Fprintf(w, "\n%s\n", cyan("Issues"))
	for _, sev := range types.AllSeverities {
		n := summary.BySeverity.Get(sev)
		label := fmt.Sprintf("%-9s", sev)
		if n == 0 {
			fmt.Fprintf(w, "  %s %s\n", gray(label), gray(n))
			continue
		}
		fmt.Fprintf(w, "  %s %d\n", severityColor[sev](label), n)
	}
	fmt.Fprintf(w, "  %-9s %d\n", "total", summary.TotalIssues)

	if len(res.Warnings) > 0 {
		fmt.Fprintf(w, "\n%s %d unit(s) degraded or failed\n", color.New(color.FgYellow).Sprint("Warnings:"), len(res.Warnings))
	}
}
