// Package mcp implements the Model Context Protocol server for Gearbox.
//
// The MCP server exposes the orchestration surface — supervisor runs,
// price quotes, and service-history search — as MCP tools so that
// MCP-compatible AI agents can drive the workshop without going through
// the REST API. It is mounted on the HTTP server behind the same auth
// middleware, so handlers read tenant claims from the request context.
package mcp

import (
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/gearbox-hq/gearbox/internal/agent/registry"
	"github.com/gearbox-hq/gearbox/internal/agent/supervisor"
)

// Server wraps the MCP server with Gearbox's orchestration layer.
type Server struct {
	mcpServer  *mcpserver.MCPServer
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	logger     *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(reg *registry.Registry, sup *supervisor.Supervisor, logger *slog.Logger, version string) *Server {
	s := &Server{
		registry:   reg,
		supervisor: sup,
		logger:     logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"gearbox",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
