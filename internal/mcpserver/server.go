// Package mcpserver exposes ledgerlens analyses as MCP tools. It talks to a
// running API server over HTTP.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all ledgerlens tools registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("ledgerlens", version)
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolAnalyzeAccount, h.HandleAnalyzeAccount)
	s.AddTool(ToolScoreAccount, h.HandleScoreAccount)
	s.AddTool(ToolServiceHealth, h.HandleServiceHealth)

	return s
}
