package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeguard/pkg/types"
)

// fakeScans implements Scans in memory
type fakeScans struct {
	mu       sync.Mutex
	results  map[string]*types.ScanResult
	requests []types.ScanRequest
	ran      bool
}

func newFakeScans() *fakeScans {
	return &fakeScans{results: map[string]*types.ScanResult{}}
}

func (f *fakeScans) add(res *types.ScanResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[res.ScanID] = res
}

func (f *fakeScans) Start(_ context.Context, req types.ScanRequest) (types.ScanResponse, error) {
	if err := req.Validate(); err != nil {
		return types.ScanResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	res := &types.ScanResult{
		ScanID:         fmt.Sprintf("scan-%d", len(f.requests)),
		Status:         types.StatusPending,
		RepositoryPath: req.RepositoryPath,
		RepositoryURL:  req.RepositoryURL,
		StartedAt:      time.Now(),
		Issues:         []types.Issue{},
	}
	f.results[res.ScanID] = res
	return res.Response(), nil
}

func (f *fakeScans) Run(ctx context.Context, req types.ScanRequest) (*types.ScanResult, error) {
	resp, err := f.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = true
	res := f.results[resp.ScanID]
	res.Status = types.StatusCompleted
	return res, nil
}

func (f *fakeScans) get(id string) (*types.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.results[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrScanNotFound, id)
	}
	return res, nil
}

func (f *fakeScans) Status(id string) (types.ScanResponse, error) {
	res, err := f.get(id)
	if err != nil {
		return types.ScanResponse{}, err
	}
	return res.Response(), nil
}

func (f *fakeScans) Result(id string) (*types.ScanResult, error) {
	return f.get(id)
}

func (f *fakeScans) List() []types.ScanResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.ScanResponse, 0, len(f.results))
	for _, res := range f.results {
		out = append(out, res.Response())
	}
	return out
}

func (f *fakeScans) Cancel(id string) error {
	res, err := f.get(id)
	if err != nil {
		return err
	}
	if res.Status.Terminal() {
		return fmt.Errorf("%w: %s", types.ErrScanFinished, id)
	}
	res.Status = types.StatusFailed
	res.Error = types.ErrScanCancelled.Error()
	return nil
}

func (f *fakeScans) Delete(_ context.Context, id string) error {
	if _, err := f.get(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.results, id)
	return nil
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
}

func completedResult() *types.ScanResult {
	completed := time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)
	issues := []types.Issue{{
		ID:       "abc",
		Type:     types.IssueVulnerability,
		Severity: types.SeverityCritical,
		Title:    "Command injection",
		Location: types.Location{FilePath: "run.py", StartLine: 3, EndLine: 3},
	}}
	return &types.ScanResult{
		ScanID:         "done",
		Status:         types.StatusCompleted,
		RepositoryPath: "/src",
		StartedAt:      completed.Add(-time.Minute),
		CompletedAt:    &completed,
		TotalFiles:     1,
		ScannedFiles:   1,
		Issues:         issues,
		Summary:        types.Summarize(issues),
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(newFakeScans(), "test")
	require.NotNil(t, s.mcp)

	for _, tool := range []mcp.Tool{
		startScanTool(), getScanStatusTool(), getScanResultTool(),
		listScansTool(), cancelScanTool(), deleteScanTool(),
	} {
		assert.Equal(t, "object", tool.InputSchema.Type, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	assert.Equal(t, []string{"scan_id"}, getScanResultTool().InputSchema.Required)
}

func TestHandleStartScan(t *testing.T) {
	scans := newFakeScans()
	s := NewServer(scans, "test")

	res, err := s.handleStartScan(context.Background(), callRequest(map[string]interface{}{
		"repository_path":  "/src/app",
		"exclude_patterns": []interface{}{"tests/*", ""},
		"include_patterns": "*.py",
	}))
	require.NoError(t, err)

	var resp types.ScanResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	assert.Equal(t, "scan-1", resp.ScanID)
	assert.Equal(t, types.StatusPending, resp.Status)

	require.Len(t, scans.requests, 1)
	assert.Equal(t, []string{"tests/*"}, scans.requests[0].ExcludePatterns)
	assert.Equal(t, []string{"*.py"}, scans.requests[0].IncludePatterns)
	assert.False(t, scans.ran)
}

func TestHandleStartScan_Wait(t *testing.T) {
	scans := newFakeScans()
	s := NewServer(scans, "test")

	res, err := s.handleStartScan(context.Background(), callRequest(map[string]interface{}{
		"repository_url": "https://github.com/acme/app.git",
		"wait":           true,
	}))
	require.NoError(t, err)
	assert.True(t, scans.ran)
	assert.Contains(t, resultText(t, res), `"status": "completed"`)
}

func TestHandleStartScan_InvalidTarget(t *testing.T) {
	s := NewServer(newFakeScans(), "test")

	_, err := s.handleStartScan(context.Background(), callRequest(map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleStartScan(context.Background(), callRequest(map[string]interface{}{
		"repository_url":  "https://github.com/acme/app.git",
		"repository_path": "/src/app",
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	var req mcp.CallToolRequest
	req.Params.Arguments = "not a map"
	_, err = s.handleStartScan(context.Background(), req)
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleGetScanStatusAndResult(t *testing.T) {
	scans := newFakeScans()
	scans.add(completedResult())
	s := NewServer(scans, "test")

	res, err := s.handleGetScanStatus(context.Background(), callRequest(map[string]interface{}{"scan_id": "done"}))
	require.NoError(t, err)
	var status types.ScanResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &status))
	assert.Equal(t, 1, status.TotalIssues)
	assert.Equal(t, 1, status.IssuesBySeverity.Critical)

	tests := []struct {
		format string
		want   string
	}{
		{"json", `"title": "Command injection"`},
		{"sarif", `"version": "2.1.0"`},
		{"markdown", "## Critical (1)"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			res, err := s.handleGetScanResult(context.Background(), callRequest(map[string]interface{}{
				"scan_id": "done",
				"format":  tt.format,
			}))
			require.NoError(t, err)
			assert.Contains(t, resultText(t, res), tt.want)
		})
	}

	_, err = s.handleGetScanResult(context.Background(), callRequest(map[string]interface{}{
		"scan_id": "done",
		"format":  "pdf",
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandlers_ScanNotFound(t *testing.T) {
	s := NewServer(newFakeScans(), "test")
	ctx := context.Background()
	req := callRequest(map[string]interface{}{"scan_id": "missing"})

	_, err := s.handleGetScanStatus(ctx, req)
	requireMCPError(t, err, ErrorCodeScanNotFound)
	_, err = s.handleGetScanResult(ctx, req)
	requireMCPError(t, err, ErrorCodeScanNotFound)
	_, err = s.handleCancelScan(ctx, req)
	requireMCPError(t, err, ErrorCodeScanNotFound)
	_, err = s.handleDeleteScan(ctx, req)
	requireMCPError(t, err, ErrorCodeScanNotFound)

	_, err = s.handleGetScanStatus(ctx, callRequest(map[string]interface{}{"scan_id": "  "}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleCancelAndDelete(t *testing.T) {
	scans := newFakeScans()
	scans.add(completedResult())
	s := NewServer(scans, "test")
	ctx := context.Background()

	started, err := scans.Start(ctx, types.ScanRequest{RepositoryPath: "/src"})
	require.NoError(t, err)

	res, err := s.handleCancelScan(ctx, callRequest(map[string]interface{}{"scan_id": started.ScanID}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"cancelled": true`)

	_, err = s.handleCancelScan(ctx, callRequest(map[string]interface{}{"scan_id": "done"}))
	requireMCPError(t, err, ErrorCodeScanFinished)

	res, err = s.handleListScans(ctx, callRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"count": 2`)

	_, err = s.handleDeleteScan(ctx, callRequest(map[string]interface{}{"scan_id": "done"}))
	require.NoError(t, err)
	assert.Len(t, scans.List(), 1)
}

func TestGetStringSlice(t *testing.T) {
	args := map[string]interface{}{
		"list":   []interface{}{"a", 3, " ", "b"},
		"single": "c",
		"native": []string{"d"},
		"empty":  "",
	}
	assert.Equal(t, []string{"a", "b"}, getStringSlice(args, "list"))
	assert.Equal(t, []string{"c"}, getStringSlice(args, "single"))
	assert.Equal(t, []string{"d"}, getStringSlice(args, "native"))
	assert.Nil(t, getStringSlice(args, "empty"))
	assert.Nil(t, getStringSlice(args, "missing"))
}
