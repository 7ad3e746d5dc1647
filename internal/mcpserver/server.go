package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Tendera tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("tendera", "1.0.0")
	client := NewTenderaClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolBrowseRequests, h.HandleBrowseRequests)
	s.AddTool(ToolGetRequest, h.HandleGetRequest)
	s.AddTool(ToolListBids, h.HandleListBids)
	s.AddTool(ToolGetEscrowStatus, h.HandleGetEscrowStatus)
	s.AddTool(ToolMyRequests, h.HandleMyRequests)
	s.AddTool(ToolMyBids, h.HandleMyBids)

	return s
}
