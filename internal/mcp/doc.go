// Package mcp exposes the scan controller as Model Context Protocol tools
// over stdio.
//
// Tools:
//   - start_scan: start a scan of a repository URL or local path
//   - get_scan_status: counts-only progress view of a scan
//   - get_scan_result: issues in json, sarif or markdown form
//   - list_scans: every known scan ordered by start time
//   - cancel_scan: stop dispatch of new work for a running scan
//   - delete_scan: drop a scan and its vector namespace
//
// # Example
//
//	Request:
//	{
//	  "name": "start_scan",
//	  "arguments": {
//	    "repository_path": "/src/app",
//	    "exclude_patterns": ["tests/*"]
//	  }
//	}
//
//	Response:
//	{
//	  "scan_id": "4f3c0c1e-8d0b-4d53-9a55-1f6b2f0f9d7e",
//	  "status": "pending",
//	  "started_at": "2026-01-02T03:04:05Z",
//	  "total_files": 0,
//	  "scanned_files": 0,
//	  "total_issues": 0,
//	  "issues_by_severity": {"critical": 0, "high": 0, "medium": 0, "low": 0, "info": 0},
//	  "warnings": 0
//	}
//
// Poll get_scan_status until status is completed or failed, then fetch
// get_scan_result. Setting "wait": true on start_scan blocks instead.
//
// # Errors
//
// Handler errors are *MCPError values with JSON-RPC style codes:
//
//	-32602  invalid parameters (missing scan_id, both or neither target, bad format)
//	-32603  internal error
//	-32001  scan not found
//	-32002  scan already finished (cancel_scan on a terminal scan)
//
// Stdout carries the protocol; all logging goes to stderr.
package mcp
