package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all quotecore tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("quotecore", "1.0.0")
	client := NewQuotecoreClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolCalculatePricing, h.HandleCalculatePricing)
	s.AddTool(ToolGetPricingRecord, h.HandleGetPricingRecord)
	s.AddTool(ToolListQuotePricing, h.HandleListQuotePricing)
	s.AddTool(ToolParseTolerances, h.HandleParseTolerances)
	s.AddTool(ToolLookupMaterial, h.HandleLookupMaterial)
	s.AddTool(ToolGetCatalogVersion, h.HandleGetCatalogVersion)

	return s
}
