package report

import (
	"fmt"
	"io"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/dshills/codeguard/pkg/types"
)

const (
	toolName = "codeguard"
	toolURI  = "https://github.com/dshills/codeguard"
)

// WriteSARIF writes res as a SARIF 2.1.0 log with one run
func WriteSARIF(w io.Writer, res *types.ScanResult) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return fmt.Errorf("create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(toolName, toolURI)
	for i := range res.Issues {
		issue := &res.Issues[i]
		level := sarifLevel(issue.Severity)

		description := issue.Title
		if issue.CWEID != "" {
			description = fmt.Sprintf("%s (%s)", issue.Title, issue.CWEID)
		}
		rule := run.AddRule(RuleID(issue)).
			WithDescription(description).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: level})

		region := sarif.NewRegion().
			WithStartLine(issue.Location.StartLine).
			WithEndLine(issue.Location.EndLine)
		location := sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(issue.Location.FilePath)).
				WithRegion(region),
		)

		result := sarif.NewRuleResult(rule.ID).
			WithMessage(sarif.NewTextMessage(message(issue))).
			WithLevel(level).
			WithLocations([]*sarif.Location{location})
		result.PropertyBag = *sarif.NewPropertyBag()
		result.Add("issue_id", issue.ID)
		result.Add("severity", string(issue.Severity))
		result.Add("type", string(issue.Type))
		if issue.Suggestion != "" {
			result.Add("suggestion", issue.Suggestion)
		}
		run.AddResult(result)
	}
	report.AddRun(run)

	return report.PrettyWrite(w)
}

// RuleID is the SARIF rule an issue reports under: its rule id, or its
// type and title when no rule id exists
func RuleID(issue *types.Issue) string {
	if issue.RuleID != "" {
		return issue.RuleID
	}
	return string(issue.Type) + ":" + issue.Title
}

func message(issue *types.Issue) string {
	if issue.Description == "" {
		return issue.Title
	}
	return issue.Title + ": " + issue.Description
}

func sarifLevel(sev types.Severity) string {
	switch sev {
	case types.SeverityCritical, types.SeverityHigh:
		return "error"
	case types.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
