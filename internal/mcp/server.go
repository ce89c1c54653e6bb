package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/greplace/internal/searcher"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string
	// Engine executes the search and replace tools.
	Engine *searcher.Engine
	// MaxResults caps how many result files one tool call reports.
	MaxResults int
	// AllowReplace registers the replace tool. Clients of a server
	// started without it can only search.
	AllowReplace bool
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	RegisterSearchTool(s, cfg.Engine, cfg.MaxResults)
	if cfg.AllowReplace {
		RegisterReplaceTool(s, cfg.Engine, cfg.MaxResults)
	}

	return s
}
