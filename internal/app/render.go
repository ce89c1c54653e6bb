package app

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sha1n/greplace/internal/domain"
	"github.com/sha1n/greplace/internal/searcher"
)

// Renderer streams search results to a writer in grep-style lines as they
// arrive from the engine.
type Renderer struct {
	out       io.Writer
	quiet     bool
	filesOnly bool
}

// NewRenderer creates a renderer. quiet suppresses all per-result output;
// filesOnly collapses each result file to a single line.
func NewRenderer(out io.Writer, quiet, filesOnly bool) *Renderer {
	return &Renderer{out: out, quiet: quiet, filesOnly: filesOnly}
}

// Callbacks returns the engine callback set backing this renderer. The
// engine serializes callback invocations, so the writer needs no locking.
func (r *Renderer) Callbacks() searcher.Callbacks {
	return searcher.Callbacks{
		OnFound: r.RenderOutcome,
	}
}

// RenderOutcome prints one result file.
func (r *Renderer) RenderOutcome(out *domain.SearchOutcome) {
	if r.quiet {
		return
	}
	switch {
	case out.ReadError:
		fmt.Fprintf(r.out, "%s: read error\n", out.Path)
	case out.ExceptionMessage != "":
		fmt.Fprintf(r.out, "%s: %s\n", out.Path, out.ExceptionMessage)
	case r.filesOnly || len(out.Matches) == 0:
		// Counting and invert runs carry no match records; the path is
		// the whole result.
		fmt.Fprintln(r.out, out.Path)
	default:
		lastLine := int64(-1)
		for _, m := range out.Matches {
			if m.Line == lastLine {
				continue
			}
			lastLine = m.Line
			fmt.Fprintf(r.out, "%s:%d:%d: %s\n", out.Path, m.Line, m.Column, out.LineText(m.Line))
		}
	}
}

// RenderStats prints the run totals.
func RenderStats(w io.Writer, s *searcher.Summary, elapsed time.Duration) {
	fmt.Fprintf(w, "%s matches in %s files (%s scanned, %s searched) in %s\n",
		humanize.Comma(s.Matches),
		humanize.Comma(int64(len(s.Results))),
		humanize.Comma(s.Scanned),
		humanize.Comma(s.Searched),
		elapsed.Round(time.Millisecond))
	if s.ReadErrors > 0 {
		fmt.Fprintf(w, "%s files could not be read\n", humanize.Comma(s.ReadErrors))
	}
	if s.Cancelled {
		fmt.Fprintln(w, "run was cancelled, results are partial")
	}
}
