package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/codeguard/internal/logging"
	"github.com/dshills/codeguard/pkg/types"
)

// ServerName is the MCP server name
const ServerName = "codeguard"

// Scans is the scan lifecycle the tools drive. *scanner.Controller
// implements it.
type Scans interface {
	Start(ctx context.Context, req types.ScanRequest) (types.ScanResponse, error)
	Run(ctx context.Context, req types.ScanRequest) (*types.ScanResult, error)
	Status(id string) (types.ScanResponse, error)
	Result(id string) (*types.ScanResult, error)
	List() []types.ScanResponse
	Cancel(id string) error
	Delete(ctx context.Context, id string) error
}

// Server wraps the MCP server with the scan controller
type Server struct {
	mcp    *server.MCPServer
	scans  Scans
	logger zerolog.Logger
}

// NewServer creates a new MCP server instance over scans
func NewServer(scans Scans, version string) *Server {
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, version),
		scans:  scans,
		logger: logging.New("mcp"),
	}
	s.registerTools()
	return s
}

// Serve runs the MCP server on stdio and blocks until stdin closes
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info().Msg("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(startScanTool(), s.handleStartScan)
	s.mcp.AddTool(getScanStatusTool(), s.handleGetScanStatus)
	s.mcp.AddTool(getScanResultTool(), s.handleGetScanResult)
	s.mcp.AddTool(listScansTool(), s.handleListScans)
	s.mcp.AddTool(cancelScanTool(), s.handleCancelScan)
	s.mcp.AddTool(deleteScanTool(), s.handleDeleteScan)
}
