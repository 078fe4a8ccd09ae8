// quotecore MCP Server - Exposes quote pricing capabilities as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/quotecore/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL: envOrDefault("QUOTECORE_API_URL", "http://localhost:8080"),
		OrgID:  os.Getenv("QUOTECORE_ORG_ID"),
	}

	if cfg.OrgID == "" {
		fmt.Fprintln(os.Stderr, "QUOTECORE_ORG_ID is required")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
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
