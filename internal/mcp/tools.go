package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codeguard/internal/report"
	"github.com/dshills/codeguard/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeScanNotFound  = -32001 // Unknown scan id
	ErrorCodeScanFinished  = -32002 // Scan already reached a terminal state
)

// handleStartScan handles the start_scan tool invocation
func (s *Server) handleStartScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	req := types.ScanRequest{
		RepositoryURL:   strings.TrimSpace(getStringDefault(args, "repository_url", "")),
		RepositoryPath:  strings.TrimSpace(getStringDefault(args, "repository_path", "")),
		Branch:          getStringDefault(args, "branch", ""),
		FilePaths:       getStringSlice(args, "file_paths"),
		IncludePatterns: getStringSlice(args, "include_patterns"),
		ExcludePatterns: getStringSlice(args, "exclude_patterns"),
	}
	if err := req.Validate(); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), map[string]interface{}{
			"param":  "repository_url|repository_path",
			"reason": "exactly one is required",
		})
	}

	if getBoolDefault(args, "wait", false) {
		res, err := s.scans.Run(ctx, req)
		if err != nil {
			return nil, toMCPError(err)
		}
		return mcp.NewToolResultText(formatJSON(res.Response())), nil
	}

	resp, err := s.scans.Start(ctx, req)
	if err != nil {
		return nil, toMCPError(err)
	}
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// handleGetScanStatus handles the get_scan_status tool invocation
func (s *Server) handleGetScanStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := scanIDArg(request)
	if err != nil {
		return nil, err
	}
	resp, err := s.scans.Status(id)
	if err != nil {
		return nil, toMCPError(err)
	}
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// handleGetScanResult handles the get_scan_result tool invocation
func (s *Server) handleGetScanResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := scanIDArg(request)
	if err != nil {
		return nil, err
	}
	args, _ := request.Params.Arguments.(map[string]interface{})

	format, err := report.ParseFormat(getStringDefault(args, "format", "json"))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid format", map[string]interface{}{
			"param":   "format",
			"value":   args["format"],
			"allowed": report.Formats,
		})
	}

	res, err := s.scans.Result(id)
	if err != nil {
		return nil, toMCPError(err)
	}
	text, err := report.Render(format, res)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to render report", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(text), nil
}

// handleListScans handles the list_scans tool invocation
func (s *Server) handleListScans(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scans := s.scans.List()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"scans": scans,
		"count": len(scans),
	})), nil
}

// handleCancelScan handles the cancel_scan tool invocation
func (s *Server) handleCancelScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := scanIDArg(request)
	if err != nil {
		return nil, err
	}
	if err := s.scans.Cancel(id); err != nil {
		return nil, toMCPError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"scan_id":   id,
		"cancelled": true,
	})), nil
}

// handleDeleteScan handles the delete_scan tool invocation
func (s *Server) handleDeleteScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := scanIDArg(request)
	if err != nil {
		return nil, err
	}
	if err := s.scans.Delete(ctx, id); err != nil {
		return nil, toMCPError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"scan_id": id,
		"deleted": true,
	})), nil
}

// Helper functions

func scanIDArg(request mcp.CallToolRequest) (string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	id := strings.TrimSpace(getStringDefault(args, "scan_id", ""))
	if id == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "scan_id parameter is required", map[string]interface{}{
			"param":  "scan_id",
			"reason": "missing or empty",
		})
	}
	return id, nil
}

// toMCPError maps controller errors onto MCP error codes
func toMCPError(err error) error {
	switch {
	case errors.Is(err, types.ErrScanNotFound):
		return newMCPError(ErrorCodeScanNotFound, err.Error(), nil)
	case errors.Is(err, types.ErrScanFinished):
		return newMCPError(ErrorCodeScanFinished, err.Error(), nil)
	case errors.Is(err, types.ErrInvalidRequest):
		return newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	default:
		return newMCPError(ErrorCodeInternalError, "scan operation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter. A lone string is
// treated as a one-element array.
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(val) != "" {
			return []string{val}
		}
	}
	return nil
}
