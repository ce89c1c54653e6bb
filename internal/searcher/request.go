package searcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// SizeComparator selects how the size filter compares a file size against
// the configured limit.
type SizeComparator int

const (
	// SizeLess keeps files strictly smaller than the limit.
	SizeLess SizeComparator = iota
	// SizeEqual keeps files exactly as large as the limit.
	SizeEqual
	// SizeGreater keeps files strictly larger than the limit.
	SizeGreater
)

// SizeFilter restricts the search to files matching a size comparison.
// A nil filter admits all sizes.
type SizeFilter struct {
	Cmp   SizeComparator
	Bytes int64
}

// DateLimit selects which modification-time window the date filter applies.
type DateLimit int

const (
	// DateAll admits any modification time.
	DateAll DateLimit = iota
	// DateNewer admits files modified at or after T1.
	DateNewer
	// DateOlder admits files modified at or before T1.
	DateOlder
	// DateBetween admits files modified within [T1, T2].
	DateBetween
)

// DateFilter restricts the search to files in a modification-time window.
type DateFilter struct {
	Kind DateLimit
	T1   time.Time
	T2   time.Time
}

// Request describes one search or replace run. Zero values give a
// case-insensitive literal search of visible files without recursion
// filters applied; shells populate the struct from their flag surface.
type Request struct {
	// Roots are the directories or files to search. Nonexistent roots are
	// skipped silently. An empty pattern turns the run into a counting
	// run that only lists matching files and directories.
	Roots       []string
	Pattern     string
	Replacement string

	// Replace enables the replace pipeline. It is separate from
	// Replacement so that replacing matches with nothing stays possible.
	Replace bool

	UseRegex          bool
	CaseSensitive     bool
	WholeWords        bool
	DotMatchesNewline bool

	// CaptureOnly treats Replacement as a capture template: matches are
	// reported with the expanded template instead of line text, and no
	// file is modified.
	CaptureOnly bool

	// InvertMatch surfaces files with no match instead of files with
	// matches. Matching stops at the first hit.
	InvertMatch bool

	IncludeSubdirs  bool
	IncludeHidden   bool
	IncludeSystem   bool
	IncludeSymlinks bool
	IncludeBinary   bool
	ForceBinary     bool
	ForceUTF8       bool

	CreateBackup   bool
	BackupInFolder bool
	KeepFileDate   bool

	// DryRun runs the full match pipeline but never writes temp files,
	// backups, or replacements.
	DryRun bool

	// NamePattern filters file names. In wildcard form it is a list of
	// |-separated tokens where a leading '-' excludes; in regex form it
	// is a single expression tested against the bare name and full path.
	NamePattern        string
	NamePatternIsRegex bool

	// ExcludeDirsPattern is a regex excluding directories; it is tested
	// against the bare directory name, the full path, and the path
	// relative to the search root.
	ExcludeDirsPattern string

	SizeFilter *SizeFilter
	DateFilter DateFilter
}

// SplitRoots splits a |-separated root list as entered on a command line.
// Empty segments are dropped.
func SplitRoots(s string) []string {
	var roots []string
	for _, part := range strings.Split(s, "|") {
		if part = strings.TrimSpace(part); part != "" {
			roots = append(roots, part)
		}
	}
	return roots
}

// Validate checks the request for contradictions before a run starts.
func (r *Request) Validate() error {
	if len(r.Roots) == 0 {
		return errors.New("at least one search root is required")
	}
	if r.Pattern == "" {
		if r.Replace {
			return errors.New("replace requires a search pattern")
		}
		if r.InvertMatch {
			return errors.New("inverted search requires a search pattern")
		}
		if r.CaptureOnly {
			return errors.New("capture search requires a search pattern")
		}
	}
	if r.CaptureOnly {
		if !r.UseRegex {
			return errors.New("capture search requires regex mode")
		}
		if r.Replace {
			return errors.New("capture search and replace are mutually exclusive")
		}
	}
	if r.Replace && r.InvertMatch {
		return errors.New("replace and inverted search are mutually exclusive")
	}
	if r.UseRegex && r.Pattern != "" {
		// Trial-compile with the path variables bound to a stand-in file.
		probe := expandPathVariables(r.Pattern, "probe.txt", regexp.QuoteMeta)
		if _, err := regexp.Compile(probe); err != nil {
			return fmt.Errorf("invalid search pattern: %w", err)
		}
	}
	if r.NamePatternIsRegex && r.NamePattern != "" {
		if _, err := regexp.Compile("(?i)" + r.NamePattern); err != nil {
			return fmt.Errorf("invalid file name pattern: %w", err)
		}
	}
	if r.ExcludeDirsPattern != "" {
		if _, err := regexp.Compile("(?i)" + r.ExcludeDirsPattern); err != nil {
			return fmt.Errorf("invalid exclude dirs pattern: %w", err)
		}
	}
	if r.DateFilter.Kind == DateBetween && r.DateFilter.T2.Before(r.DateFilter.T1) {
		return errors.New("date filter range end precedes its start")
	}
	if r.SizeFilter != nil && r.SizeFilter.Bytes < 0 {
		return errors.New("size filter limit must not be negative")
	}
	return nil
}

// pathVariables are expanded in regex-mode patterns and replacements before
// a file is matched.
const (
	varFilePath = "${filepath}"
	varFileName = "${filename}"
	varFileExt  = "${fileext}"
)

func hasPathVariables(s string) bool {
	return strings.Contains(s, varFilePath) ||
		strings.Contains(s, varFileName) ||
		strings.Contains(s, varFileExt)
}

// expandPathVariables substitutes the file path variables into s. Values are
// escaped with the given escape function so the substitution cannot change
// the surrounding syntax.
func expandPathVariables(s, filePath string, escape func(string) string) string {
	base := filepath.Base(filePath)
	stem := base
	ext := ""
	if dot := strings.LastIndex(base, "."); dot >= 0 {
		stem = base[:dot]
		ext = base[dot+1:]
	}
	s = strings.ReplaceAll(s, varFilePath, escape(filePath))
	s = strings.ReplaceAll(s, varFileName, escape(stem))
	s = strings.ReplaceAll(s, varFileExt, escape(ext))
	return s
}

// escapeReplacement makes a string safe for use as a literal inside a
// replacement template, where only '$' is special.
func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

// normalizeExpandTemplate rewrites the classic $& whole-match reference into
// the ${0} group form the template expander understands. $$ still escapes a
// literal dollar.
func normalizeExpandTemplate(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '$' && i+1 < len(s) {
			switch s[i+1] {
			case '$':
				b.WriteString("$$")
				i++
				continue
			case '&':
				b.WriteString("${0}")
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// compiledRequest is the run-ready form of a Request: name and directory
// filters compiled, the pattern escaped and flagged, and the shared regexp
// prepared when no per-file expansion is needed.
type compiledRequest struct {
	req *Request

	namePatterns []nameToken
	nameRegex    *regexp.Regexp
	excludeDirs  *regexp.Regexp

	// pattern and replacement are templates still containing the path
	// variables when perFile is set.
	pattern     string
	replacement string
	perFile     bool
	re          *regexp.Regexp

	counting bool
}

// compileRequest validates and prepares a request for execution.
func compileRequest(req *Request) (*compiledRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c := &compiledRequest{req: req, counting: req.Pattern == ""}

	if req.NamePattern != "" {
		if req.NamePatternIsRegex {
			re, err := regexp.Compile("(?i)" + req.NamePattern)
			if err != nil {
				return nil, fmt.Errorf("invalid file name pattern: %w", err)
			}
			c.nameRegex = re
		} else {
			c.namePatterns = parseNameTokens(req.NamePattern)
		}
	}
	if req.ExcludeDirsPattern != "" {
		re, err := regexp.Compile("(?i)" + req.ExcludeDirsPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude dirs pattern: %w", err)
		}
		c.excludeDirs = re
	}

	if c.counting {
		return c, nil
	}

	expr := req.Pattern
	repl := req.Replacement
	if req.UseRegex {
		c.perFile = hasPathVariables(expr) || ((req.Replace || req.CaptureOnly) && hasPathVariables(repl))
		repl = normalizeExpandTemplate(repl)
	} else {
		expr = regexp.QuoteMeta(expr)
		// A literal CRLF in the needle should find any line ending.
		expr = strings.ReplaceAll(expr, "\r\n", `(?:\r\n|\n|\r)`)
		if req.WholeWords {
			expr = `\b(?:` + expr + `)\b`
		}
		repl = escapeReplacement(repl)
	}
	c.pattern = regexFlags(req) + expr
	c.replacement = repl

	if !c.perFile {
		re, err := regexp.Compile(c.pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid search pattern: %w", err)
		}
		c.re = re
	}
	return c, nil
}

// regexFlags builds the inline flag prefix for the search expression. ^ and
// $ always anchor to lines, matching what a content search tool is expected
// to do.
func regexFlags(req *Request) string {
	flags := "m"
	if !req.CaseSensitive {
		flags += "i"
	}
	if req.DotMatchesNewline {
		flags += "s"
	}
	return "(?" + flags + ")"
}

// regexFor returns the pattern and replacement for one file, expanding the
// path variables when the request uses them.
func (c *compiledRequest) regexFor(filePath string) (*regexp.Regexp, string, error) {
	if !c.perFile {
		return c.re, c.replacement, nil
	}
	expr := expandPathVariables(c.pattern, filePath, regexp.QuoteMeta)
	repl := expandPathVariables(c.replacement, filePath, escapeReplacement)
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, "", fmt.Errorf("invalid search pattern: %w", err)
	}
	return re, repl, nil
}
