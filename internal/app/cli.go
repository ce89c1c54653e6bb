package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sha1n/greplace/internal/searcher"
	"github.com/spf13/pflag"
)

// RegisterSearchFlags registers the search command's flags on the given
// FlagSet. Every request field is independently settable so bookmarks and
// scripts can pre-seed a run without interaction.
func RegisterSearchFlags(flags *pflag.FlagSet) {
	// Pattern semantics
	flags.BoolP("regex", "e", false, "Treat the pattern as a regular expression")
	flags.BoolP("case-sensitive", "c", false, "Match case sensitively")
	flags.BoolP("whole-words", "w", false, "Match whole words only")
	flags.Bool("dot-all", false, "Let '.' match newlines in regex mode")
	flags.BoolP("invert", "v", false, "Report files without any match")
	flags.Bool("capture-only", false, "Report the capture template expansion per matched line (regex mode)")

	// Replace pipeline
	flags.StringP("replace", "r", "", "Replace matches with this template")
	flags.BoolP("backup", "b", false, "Keep a backup of each replaced file")
	flags.Bool("backup-in-folder", false, "Collect backups in a shadow folder under the search root")
	flags.Bool("keep-date", false, "Preserve file timestamps across a replace")
	flags.BoolP("dry-run", "n", false, "Run the replace pipeline without writing anything")

	// Enumeration filters
	flags.Bool("recurse", true, "Descend into subdirectories")
	flags.Bool("hidden", false, "Include hidden files and directories")
	flags.Bool("system", false, "Include system files")
	flags.Bool("symlinks", false, "Follow file symlinks")
	flags.Bool("binary", false, "Search binary files")
	flags.Bool("force-binary", false, "Treat every file as binary")
	flags.Bool("force-utf8", false, "Assume UTF-8 when detection is ambiguous")
	flags.StringP("include", "f", "", "File name filter, |-separated wildcards with '-' prefix to exclude")
	flags.Bool("include-regex", false, "Treat the file name filter as a regular expression")
	flags.String("exclude-dirs", "", "Regular expression excluding directories")
	flags.String("size", "", "Size filter: <SIZE, >SIZE or =SIZE (e.g. '<2MB')")
	flags.String("newer", "", "Only files modified at or after this time (YYYY-MM-DD or RFC 3339)")
	flags.String("older", "", "Only files modified at or before this time (YYYY-MM-DD or RFC 3339)")
	flags.BoolP("list", "l", false, "List matching files without a content pattern")

	// Output
	flags.BoolP("quiet", "q", false, "Suppress per-match output")
	flags.Bool("files-only", false, "Print one line per matching file")
	flags.Bool("stats", false, "Print run totals when finished")
	flags.StringP("export", "x", "", "Export results to a file (.csv or text)")

	// Bookmarks
	flags.StringP("bookmark", "B", "", "Start from a saved bookmark")
	flags.String("save-bookmark", "", "Save the effective request under this name")

	// Engine tuning, resolved through the settings layer
	flags.Int("workers", 0, "Number of search workers (0 = auto)")
	flags.String("text-load-limit", "", "Largest file decoded fully into memory (e.g. 16MiB)")
	flags.Int("null-bytes-per-mib", 0, "Null bytes tolerated per MiB before a file counts as binary")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("log-file", "", "Write logs to this rotating file instead of stderr")
	flags.String("bookmarks-file", "", "Bookmarks file location")
}

// RegisterServerFlags registers the MCP server mode flags
func RegisterServerFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")
	flags.Bool("allow-replace", false, "Expose the replace tool to MCP clients")
	flags.Int("max-results", 0, "Cap on result files per MCP search")
	flags.Int("workers", 0, "Number of search workers (0 = auto)")
	flags.String("text-load-limit", "", "Largest file decoded fully into memory (e.g. 16MiB)")
	flags.Int("null-bytes-per-mib", 0, "Null bytes tolerated per MiB before a file counts as binary")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("log-file", "", "Write logs to this rotating file instead of stderr")
}

// NewDefaultRequest returns the request a run starts from before flags and
// bookmarks are applied.
func NewDefaultRequest() *searcher.Request {
	return &searcher.Request{IncludeSubdirs: true}
}

// BuildRequest applies the command line onto a base request. Only flags the
// user actually set override the base, so a bookmarked request keeps its
// values unless the command line says otherwise. Positional arguments are
// the pattern followed by the roots, or just roots in list mode.
func BuildRequest(base *searcher.Request, flags *pflag.FlagSet, args []string) (*searcher.Request, error) {
	req := *base

	list, _ := flags.GetBool("list")
	if list {
		req.Pattern = ""
		req.Roots = appendRoots(nil, args)
	} else if len(args) > 0 {
		req.Pattern = args[0]
		if len(args) > 1 {
			req.Roots = appendRoots(nil, args[1:])
		}
	}
	if len(req.Roots) == 0 {
		req.Roots = []string{"."}
	}

	setBool(flags, "regex", &req.UseRegex)
	setBool(flags, "case-sensitive", &req.CaseSensitive)
	setBool(flags, "whole-words", &req.WholeWords)
	setBool(flags, "dot-all", &req.DotMatchesNewline)
	setBool(flags, "invert", &req.InvertMatch)
	setBool(flags, "capture-only", &req.CaptureOnly)

	// An explicitly passed --replace enables the pipeline even when the
	// template is empty, which deletes the matches.
	if flags.Changed("replace") {
		req.Replace = true
		req.Replacement, _ = flags.GetString("replace")
	}
	setBool(flags, "backup", &req.CreateBackup)
	setBool(flags, "backup-in-folder", &req.BackupInFolder)
	setBool(flags, "keep-date", &req.KeepFileDate)
	setBool(flags, "dry-run", &req.DryRun)

	setBool(flags, "recurse", &req.IncludeSubdirs)
	setBool(flags, "hidden", &req.IncludeHidden)
	setBool(flags, "system", &req.IncludeSystem)
	setBool(flags, "symlinks", &req.IncludeSymlinks)
	setBool(flags, "binary", &req.IncludeBinary)
	setBool(flags, "force-binary", &req.ForceBinary)
	setBool(flags, "force-utf8", &req.ForceUTF8)
	setString(flags, "include", &req.NamePattern)
	setBool(flags, "include-regex", &req.NamePatternIsRegex)
	setString(flags, "exclude-dirs", &req.ExcludeDirsPattern)

	if flags.Changed("size") {
		spec, _ := flags.GetString("size")
		sf, err := ParseSizeFilter(spec)
		if err != nil {
			return nil, err
		}
		req.SizeFilter = sf
	}
	df, err := parseDateFilter(flags, req.DateFilter)
	if err != nil {
		return nil, err
	}
	req.DateFilter = df

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// appendRoots collects roots from positional arguments, splitting any
// |-separated lists.
func appendRoots(roots []string, args []string) []string {
	for _, a := range args {
		roots = append(roots, searcher.SplitRoots(a)...)
	}
	return roots
}

func setBool(flags *pflag.FlagSet, name string, dst *bool) {
	if flags.Changed(name) {
		*dst, _ = flags.GetBool(name)
	}
}

func setString(flags *pflag.FlagSet, name string, dst *string) {
	if flags.Changed(name) {
		*dst, _ = flags.GetString(name)
	}
}

// ParseSizeFilter parses a comparator-prefixed humanized size, such as
// "<2MB", ">512KiB" or "=100". A bare size means "less than".
func ParseSizeFilter(spec string) (*searcher.SizeFilter, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return nil, nil
	}
	cmp := searcher.SizeLess
	switch s[0] {
	case '<':
		s = s[1:]
	case '>':
		cmp = searcher.SizeGreater
		s = s[1:]
	case '=':
		cmp = searcher.SizeEqual
		s = s[1:]
	}
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid size filter %q: %w", spec, err)
	}
	return &searcher.SizeFilter{Cmp: cmp, Bytes: int64(n)}, nil
}

// timeLayouts are the accepted date filter spellings, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a date filter timestamp.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, use YYYY-MM-DD or RFC 3339", s)
}

// parseDateFilter combines the --newer and --older flags into one filter.
func parseDateFilter(flags *pflag.FlagSet, base searcher.DateFilter) (searcher.DateFilter, error) {
	newerSet := flags.Changed("newer")
	olderSet := flags.Changed("older")
	if !newerSet && !olderSet {
		return base, nil
	}

	var newer, older time.Time
	var err error
	if newerSet {
		spec, _ := flags.GetString("newer")
		if newer, err = ParseTime(spec); err != nil {
			return base, err
		}
	}
	if olderSet {
		spec, _ := flags.GetString("older")
		if older, err = ParseTime(spec); err != nil {
			return base, err
		}
	}

	switch {
	case newerSet && olderSet:
		if older.Before(newer) {
			return base, errors.New("--older precedes --newer, the date range is empty")
		}
		return searcher.DateFilter{Kind: searcher.DateBetween, T1: newer, T2: older}, nil
	case newerSet:
		return searcher.DateFilter{Kind: searcher.DateNewer, T1: newer}, nil
	default:
		return searcher.DateFilter{Kind: searcher.DateOlder, T1: older}, nil
	}
}
