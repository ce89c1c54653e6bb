package main

import (
	"context"
	"os"

	"github.com/sha1n/greplace/internal/app"
	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "greplace"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:     programName + " [flags] PATTERN [PATH...]",
		Short:   "Search and replace over local directory trees",
		Long: "greplace walks directory trees, searches file contents for a text or regex\n" +
			"pattern across text encodings, and optionally rewrites the matches in place\n" +
			"with backups.",
		Version: version,
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if list, _ := cmd.Flags().GetBool("list"); !list {
					return cmd.Help()
				}
			}
			return app.RunSearch(cmd.Context(), app.DefaultRunParams(), cmd.Flags(), args, version)
		},
	}
	rootCmd.SetVersionTemplate(`{{.Version}}
`)
	app.RegisterSearchFlags(rootCmd.Flags())

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the search engine over the Model Context Protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunServer(cmd.Context(), app.DefaultServerParams(), cmd.Flags(), version)
		},
	}
	app.RegisterServerFlags(mcpCmd.Flags())
	rootCmd.AddCommand(mcpCmd)

	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}
