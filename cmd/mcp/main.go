// ledgerlens MCP server - exposes account risk analysis as MCP tools for LLMs
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/ledgerlens/internal/mcpserver"
)

// Version is set by ldflags.
var Version = "dev"

func main() {
	cfg := mcpserver.Config{
		APIURL: envOrDefault("LEDGERLENS_API_URL", "http://localhost:8080"),
	}
	if v := os.Getenv("LEDGERLENS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid LEDGERLENS_TIMEOUT: %v\n", err)
			os.Exit(1)
		}
		cfg.Timeout = d
	}

	s := mcpserver.NewMCPServer(cfg, Version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
