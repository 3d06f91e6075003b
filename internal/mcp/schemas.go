package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func scanIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Scan identifier returned by start_scan",
	}
}

func stringArray(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       map[string]interface{}{"type": "string"},
	}
}

// startScanTool returns the tool definition for start_scan
func startScanTool() mcp.Tool {
	return mcp.Tool{
		Name:        "start_scan",
		Description: "Scan a git repository or local directory for vulnerabilities, code review issues and explanatory comments",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"repository_url": map[string]interface{}{
					"type":        "string",
					"description": "Git URL to clone (mutually exclusive with repository_path)",
				},
				"repository_path": map[string]interface{}{
					"type":        "string",
					"description": "Local directory to scan (mutually exclusive with repository_url)",
				},
				"branch": map[string]interface{}{
					"type":        "string",
					"description": "Branch to clone, defaults to the remote default branch",
				},
				"file_paths":       stringArray("Restrict the scan to these repository-relative paths"),
				"include_patterns": stringArray("Glob patterns a file must match, e.g. 'src/*.py'"),
				"exclude_patterns": stringArray("Glob patterns that exclude files; exclusion wins over inclusion"),
				"wait": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, block until the scan finishes and return its status",
					"default":     false,
				},
			},
		},
	}
}

// getScanStatusTool returns the tool definition for get_scan_status
func getScanStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_scan_status",
		Description: "Get progress and issue counts for a scan",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"scan_id": scanIDProperty()},
			Required:   []string{"scan_id"},
		},
	}
}

// getScanResultTool returns the tool definition for get_scan_result
func getScanResultTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_scan_result",
		Description: "Get the issues of a scan, partial while it is still running",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scan_id": scanIDProperty(),
				"format": map[string]interface{}{
					"type":        "string",
					"description": "Report format",
					"enum":        []string{"json", "sarif", "markdown"},
					"default":     "json",
				},
			},
			Required: []string{"scan_id"},
		},
	}
}

// listScansTool returns the tool definition for list_scans
func listScansTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_scans",
		Description: "List all known scans ordered by start time",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// cancelScanTool returns the tool definition for cancel_scan
func cancelScanTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cancel_scan",
		Description: "Stop a running scan. Issues found so far are kept.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"scan_id": scanIDProperty()},
			Required:   []string{"scan_id"},
		},
	}
}

// deleteScanTool returns the tool definition for delete_scan
func deleteScanTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_scan",
		Description: "Delete a scan and its vector index namespace, cancelling it first if running",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"scan_id": scanIDProperty()},
			Required:   []string{"scan_id"},
		},
	}
}
