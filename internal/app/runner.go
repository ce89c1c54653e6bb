package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/sha1n/greplace/internal/config"
	"github.com/sha1n/greplace/internal/searcher"
	"github.com/spf13/pflag"
)

// RunParams contains dependencies for the search run function
type RunParams struct {
	LoadSettings  func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings func(*config.Settings) error
	NewEngine     func(searcher.Options) *searcher.Engine
	Stdout        io.Writer
	Stderr        io.Writer
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:  config.LoadSettingsWithFlags,
		ValidSettings: config.ValidateSettings,
		NewEngine:     searcher.New,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
	}
}

// RunSearch executes one search run from the command line: resolve
// settings, build the request, drive the engine and render its output.
// An interrupt cancels the run cooperatively; partial results still print.
func RunSearch(ctx context.Context, params RunParams, flags *pflag.FlagSet, args []string, version string) error {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	config.SetupLogging(&settings.Log)
	slog.Debug("Starting search run", "version", version)

	req, err := resolveRequest(settings, flags, args)
	if err != nil {
		return err
	}

	opts, err := engineOptions(settings)
	if err != nil {
		return err
	}
	engine := params.NewEngine(opts)

	quiet, _ := flags.GetBool("quiet")
	filesOnly, _ := flags.GetBool("files-only")
	renderer := NewRenderer(params.Stdout, quiet, filesOnly)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	started := time.Now()
	summary, err := engine.Run(ctx, req, renderer.Callbacks())
	if err != nil {
		return err
	}

	if stats, _ := flags.GetBool("stats"); stats {
		RenderStats(params.Stderr, summary, time.Since(started))
	}
	if export, _ := flags.GetString("export"); export != "" {
		if err := Export(export, summary.Results); err != nil {
			return err
		}
		slog.Info("Results exported", "path", export, "results", len(summary.Results))
	}
	return nil
}

// resolveRequest builds the effective request: the bookmark (or the
// default request) as the base, explicit flags and arguments on top, and
// the result optionally saved back as a new bookmark.
func resolveRequest(settings *config.Settings, flags *pflag.FlagSet, args []string) (*searcher.Request, error) {
	base := NewDefaultRequest()

	bookmarkName, _ := flags.GetString("bookmark")
	saveName, _ := flags.GetString("save-bookmark")
	var books *Bookmarks
	if bookmarkName != "" || saveName != "" {
		var err error
		if books, err = LoadBookmarks(settings.BookmarksFile); err != nil {
			return nil, err
		}
	}
	if bookmarkName != "" {
		b, err := books.Get(bookmarkName)
		if err != nil {
			return nil, err
		}
		base = b
	}

	req, err := BuildRequest(base, flags, args)
	if err != nil {
		return nil, err
	}

	if saveName != "" {
		books.Set(saveName, req)
		if err := books.Save(settings.BookmarksFile); err != nil {
			return nil, err
		}
		slog.Info("Bookmark saved", "name", saveName, "file", settings.BookmarksFile)
	}
	return req, nil
}

// engineOptions maps resolved settings onto engine options.
func engineOptions(settings *config.Settings) (searcher.Options, error) {
	limit, err := settings.Engine.TextLoadLimitBytes()
	if err != nil {
		return searcher.Options{}, fmt.Errorf("invalid text load limit: %w", err)
	}
	return searcher.Options{
		Workers:         settings.Engine.Workers,
		TextLoadLimit:   limit,
		NullBytesPerMiB: settings.Engine.NullBytesPerMiB,
	}, nil
}
