package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/greplace/internal/auth"
	"github.com/sha1n/greplace/internal/config"
	mcputil "github.com/sha1n/greplace/internal/mcp"
	"github.com/sha1n/greplace/internal/searcher"
	"github.com/spf13/pflag"
)

// ServerParams contains dependencies for the MCP server mode
type ServerParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *config.Settings) error
	CreateServer      func(*config.Settings) (*mcp.Server, error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultServerParams returns production dependencies
func DefaultServerParams() ServerParams {
	return ServerParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunServer executes the MCP server mode with the provided dependencies
func RunServer(ctx context.Context, params ServerParams, flags *pflag.FlagSet, version string) error {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - never stdout, which stdio transport owns
	config.SetupLogging(&settings.Log)

	slog.Info("Starting greplace MCP server", "version", version)
	config.Log(settings)

	mcpServer, err := params.CreateServer(settings)
	if err != nil {
		return err
	}

	// Start server
	if settings.Server.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}
	slog.Info("Starting SSE server", "host", settings.Server.Host, "port", settings.Server.Port)
	return params.StartSSEServer(mcpServer, settings)
}

// CreateMCPServer creates the MCP server with the engine-backed tools
func CreateMCPServer(settings *config.Settings) (*mcp.Server, error) {
	opts, err := engineOptions(settings)
	if err != nil {
		return nil, err
	}
	return mcputil.CreateServer(mcputil.ServerConfig{
		Name:         "greplace",
		Version:      "1.0.0",
		Engine:       searcher.New(opts),
		MaxResults:   settings.Server.MaxResults,
		AllowReplace: settings.Server.AllowReplace,
	}), nil
}

// StartSSEServer starts the SSE server with authentication
func StartSSEServer(s *mcp.Server, settings *config.Settings) error {
	srv, err := NewSSEServer(s, settings)
	if err != nil {
		return err
	}

	slog.Info("Server listening (HTTP)", "addr", srv.Addr, "auth_type", settings.Auth.Type)
	return srv.ListenAndServe()
}

// NewSSEServer creates a new SSE server with authentication middleware
func NewSSEServer(s *mcp.Server, settings *config.Settings) (*http.Server, error) {
	// Factory function returns the server instance for each request
	sseHandler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return s
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/sse", sseHandler)

	authMiddleware, err := auth.NewMiddleware(settings.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth middleware: %w", err)
	}

	handler := authMiddleware(mux)
	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)

	return &http.Server{
		Addr:    addr,
		Handler: handler,
	}, nil
}
