package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/greplace/internal/domain"
	"github.com/sha1n/greplace/internal/searcher"
)

// SearchArgument defines search parameters.
type SearchArgument struct {
	Pattern       string   `json:"pattern" jsonschema_description:"Text or regular expression to search for"`
	Roots         []string `json:"roots" jsonschema_description:"Directories or files to search"`
	Regex         bool     `json:"regex,omitempty" jsonschema_description:"Treat the pattern as a regular expression"`
	CaseSensitive bool     `json:"case_sensitive,omitempty" jsonschema_description:"Match case sensitively"`
	WholeWords    bool     `json:"whole_words,omitempty" jsonschema_description:"Match whole words only"`
	Include       string   `json:"include,omitempty" jsonschema_description:"File name filter, |-separated wildcards with '-' prefix to exclude (e.g. '*.go|-*_test.go')"`
	ExcludeDirs   string   `json:"exclude_dirs,omitempty" jsonschema_description:"Regular expression excluding directories (e.g. 'node_modules')"`
	Hidden        bool     `json:"hidden,omitempty" jsonschema_description:"Include hidden files and directories"`
}

// ReplaceArgument defines replace parameters.
type ReplaceArgument struct {
	SearchArgument
	Replacement string `json:"replacement" jsonschema_description:"Replacement template; regex mode expands capture groups like $1"`
	Backup      bool   `json:"backup,omitempty" jsonschema_description:"Keep a .bak copy of each replaced file"`
	DryRun      bool   `json:"dry_run,omitempty" jsonschema_description:"Report what would change without writing"`
}

// SearchHandler handles the search MCP tool.
type SearchHandler struct {
	engine     *searcher.Engine
	maxResults int
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(engine *searcher.Engine, maxResults int) *SearchHandler {
	return &SearchHandler{engine: engine, maxResults: maxResults}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if msg := validateArgs(&args); msg != "" {
		return errorResult(msg), nil, nil
	}

	summary, err := h.engine.Run(ctx, requestFrom(&args), searcher.Callbacks{})
	if err != nil {
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	return formatSummary(summary, args.Pattern, h.maxResults, false), summary, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search",
		Description: "Search local files and directories for a text or regex pattern, reporting path, line and column of every match",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, engine *searcher.Engine, maxResults int) {
	handler := NewSearchHandler(engine, maxResults)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// ReplaceHandler handles the replace MCP tool.
type ReplaceHandler struct {
	engine     *searcher.Engine
	maxResults int
}

// NewReplaceHandler creates a new replace handler.
func NewReplaceHandler(engine *searcher.Engine, maxResults int) *ReplaceHandler {
	return &ReplaceHandler{engine: engine, maxResults: maxResults}
}

// Handle executes the replace and returns per-file results.
func (h *ReplaceHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReplaceArgument) (*mcp.CallToolResult, any, error) {
	if msg := validateArgs(&args.SearchArgument); msg != "" {
		return errorResult(msg), nil, nil
	}

	sreq := requestFrom(&args.SearchArgument)
	sreq.Replace = true
	sreq.Replacement = args.Replacement
	sreq.CreateBackup = args.Backup
	sreq.DryRun = args.DryRun

	summary, err := h.engine.Run(ctx, sreq, searcher.Callbacks{})
	if err != nil {
		return errorResult(fmt.Sprintf("Replace failed: %s", err)), nil, nil
	}

	return formatSummary(summary, args.Pattern, h.maxResults, !args.DryRun), summary, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ReplaceHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "replace",
		Description: "Replace every occurrence of a text or regex pattern in local files, optionally keeping backups",
	}
}

// RegisterReplaceTool registers the replace tool with an MCP server.
func RegisterReplaceTool(server *mcp.Server, engine *searcher.Engine, maxResults int) {
	handler := NewReplaceHandler(engine, maxResults)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

func validateArgs(args *SearchArgument) string {
	if strings.TrimSpace(args.Pattern) == "" {
		return "Pattern cannot be empty"
	}
	if len(args.Roots) == 0 {
		return "At least one search root is required"
	}
	return ""
}

func requestFrom(args *SearchArgument) *searcher.Request {
	return &searcher.Request{
		Roots:              args.Roots,
		Pattern:            args.Pattern,
		UseRegex:           args.Regex,
		CaseSensitive:      args.CaseSensitive,
		WholeWords:         args.WholeWords,
		IncludeSubdirs:     true,
		IncludeHidden:      args.Hidden,
		NamePattern:        args.Include,
		ExcludeDirsPattern: args.ExcludeDirs,
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// formatSummary formats a run summary for the MCP response.
func formatSummary(s *searcher.Summary, pattern string, maxResults int, replaced bool) *mcp.CallToolResult {
	if len(s.Results) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("No matches for '%s' (%d files searched)", pattern, s.Searched)},
			},
		}
	}

	var sb strings.Builder
	verb := "matches"
	if replaced {
		verb = "replacements"
	}
	fmt.Fprintf(&sb, "%d %s in %d files for '%s':\n\n", s.Matches, verb, len(s.Results), pattern)

	shown := s.Results
	if maxResults > 0 && len(shown) > maxResults {
		shown = shown[:maxResults]
	}
	for _, out := range shown {
		writeOutcome(&sb, out)
	}
	if rest := len(s.Results) - len(shown); rest > 0 {
		fmt.Fprintf(&sb, "... and %d more files\n", rest)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: sb.String()},
		},
	}
}

func writeOutcome(sb *strings.Builder, out *domain.SearchOutcome) {
	switch {
	case out.ReadError:
		fmt.Fprintf(sb, "### %s\nread error\n\n", out.Path)
		return
	case out.ExceptionMessage != "":
		fmt.Fprintf(sb, "### %s\n%s\n\n", out.Path, out.ExceptionMessage)
		return
	}

	fmt.Fprintf(sb, "### %s (%d matches, %s)\n", out.Path, out.MatchCount, out.EncodingLabel())
	if len(out.Matches) > 0 {
		sb.WriteString("```\n")
		lastLine := int64(-1)
		for _, m := range out.Matches {
			if m.Line == lastLine {
				continue
			}
			lastLine = m.Line
			fmt.Fprintf(sb, "%d:%d: %s\n", m.Line, m.Column, out.LineText(m.Line))
		}
		sb.WriteString("```\n")
	}
	sb.WriteString("\n")
}
