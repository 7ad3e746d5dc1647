// Tendera MCP Server - Exposes marketplace browsing as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/tendera/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:  envOrDefault("TENDERA_API_URL", "http://localhost:8080"),
		ActorID: os.Getenv("TENDERA_ACTOR_ID"),
	}

	if cfg.ActorID == "" {
		fmt.Fprintln(os.Stderr, "TENDERA_ACTOR_ID is required")
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
