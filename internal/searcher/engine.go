// Package searcher implements recursive content search and replace over
// local directory trees: filtered enumeration, encoding detection, block
// wise regular expression matching over decoded text or raw bytes, and
// atomic write-back with optional backups.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sha1n/greplace/internal/domain"
)

// Default sizing for content matching.
const (
	// DefaultBlockBytes is the window size for block-wise matching over
	// raw content. Windows overlap by half so matches up to a quarter
	// window never straddle a seam undetected.
	DefaultBlockBytes = 64 << 20

	// DefaultTextLoadLimit is the size at which files stop being decoded
	// fully into memory and are matched over a read-only mapping instead.
	DefaultTextLoadLimit = 16 << 20
)

// Options configure an Engine. Zero values select the defaults.
type Options struct {
	// Workers bounds how many files are searched concurrently.
	Workers int
	// BlockBytes is the matching window size for raw content.
	BlockBytes int64
	// TextLoadLimit is the decode-in-memory size threshold.
	TextLoadLimit int64
	// NullBytesPerMiB tunes binary detection: a file counts as binary
	// once it contains this many NUL bytes per MiB. Zero means a single
	// NUL suffices.
	NullBytesPerMiB int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkerCount()
	}
	if o.BlockBytes <= 0 {
		o.BlockBytes = DefaultBlockBytes
	}
	if o.TextLoadLimit <= 0 {
		o.TextLoadLimit = DefaultTextLoadLimit
	}
	return o
}

// Callbacks observe a running search. They are invoked from worker
// goroutines but never concurrently with each other; nil members are
// skipped.
type Callbacks struct {
	// OnStart fires once before enumeration begins.
	OnStart func()
	// OnProgress fires for every item considered. scanned counts all of
	// them, searched only those whose content was actually examined.
	OnProgress func(scanned, searched int64)
	// OnFound receives each file that qualifies as a result, after its
	// match records are complete.
	OnFound func(*domain.SearchOutcome)
	// OnEnd fires once after the last worker finished.
	OnEnd func()
}

// Summary totals one finished run.
type Summary struct {
	// Scanned is every file the filters considered, searched or not.
	Scanned int64 `json:"scanned"`
	// Searched counts files whose content was examined.
	Searched int64 `json:"searched"`
	// Matches is the total match count across all results.
	Matches int64 `json:"matches"`
	// ReadErrors counts files that could not be loaded.
	ReadErrors int64 `json:"read_errors"`
	// Cancelled reports whether the run was stopped early.
	Cancelled bool `json:"cancelled"`
	// Results holds one outcome per qualifying file, in completion order.
	Results []*domain.SearchOutcome `json:"results"`
}

// Engine runs search and replace requests over local trees. An Engine is
// reusable but runs one request at a time.
type Engine struct {
	opts      Options
	cancelled atomic.Bool
}

// New creates an engine with the given options.
func New(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults()}
}

// Cancel stops the running search as soon as the workers notice. It is safe
// to call from any goroutine and at any time.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

// Run executes one request to completion and returns its summary. Matching
// work is spread over the configured worker pool; cb observes progress as
// it happens. Run returns an error only when the request itself is invalid.
func (e *Engine) Run(ctx context.Context, req *Request, cb Callbacks) (*Summary, error) {
	creq, err := compileRequest(req)
	if err != nil {
		return nil, err
	}
	e.cancelled.Store(false)

	excl := NewExclusionSet()
	run := &runState{
		creq: creq,
		cb:   cb,
		excl: excl,
		ld: &loader{
			textLoadLimit:   e.opts.TextLoadLimit,
			nullBytesPerMiB: e.opts.NullBytesPerMiB,
			forceUTF8:       req.ForceUTF8,
			forceBinary:     req.ForceBinary,
		},
		rp:         &replacer{req: req, excl: excl},
		blockBytes: e.opts.BlockBytes,
		cancelled: func() bool {
			return e.cancelled.Load() || ctx.Err() != nil
		},
	}

	slog.Info("Search starting", "roots", req.Roots, "pattern", req.Pattern, "replace", req.Replace, "workers", e.opts.Workers)
	run.emit(cb.OnStart)

	sched := newScheduler(e.opts.Workers)
	sched.start(run.searchEntry)

	w := &walker{
		creq:      creq,
		excl:      excl,
		cancelled: run.cancelled,
		onCandidate: func(fe FileEntry) bool {
			if creq.counting {
				run.countEntry(fe)
				return true
			}
			return sched.enqueue(ctx, fe)
		},
		onFiltered: func(FileEntry) {
			run.progress(false)
		},
	}
	w.walk(ctx)
	sched.drain()

	run.emit(cb.OnEnd)
	s := run.summary()
	s.Cancelled = run.cancelled()
	slog.Info("Search finished", "scanned", s.Scanned, "searched", s.Searched, "matches", s.Matches, "results", len(s.Results), "cancelled", s.Cancelled)
	return s, nil
}

// runState carries the per-run coordinator: counters, the result arena and
// callback serialization.
type runState struct {
	creq       *compiledRequest
	cb         Callbacks
	excl       *ExclusionSet
	ld         *loader
	rp         *replacer
	blockBytes int64
	cancelled  func() bool

	scanned  atomic.Int64
	searched atomic.Int64
	matches  atomic.Int64
	readErrs atomic.Int64

	cbMu  sync.Mutex
	resMu sync.Mutex
	arena []*domain.SearchOutcome
}

func (run *runState) emit(fn func()) {
	if fn == nil {
		return
	}
	run.cbMu.Lock()
	defer run.cbMu.Unlock()
	fn()
}

// progress accounts one considered item; searched marks items whose content
// was examined rather than filtered or skipped.
func (run *runState) progress(searched bool) {
	scanned := run.scanned.Add(1)
	count := run.searched.Load()
	if searched {
		count = run.searched.Add(1)
	}
	if run.cb.OnProgress != nil {
		run.cbMu.Lock()
		run.cb.OnProgress(scanned, count)
		run.cbMu.Unlock()
	}
}

// found appends a qualifying outcome to the arena and reports it.
func (run *runState) found(out *domain.SearchOutcome) {
	run.resMu.Lock()
	run.arena = append(run.arena, out)
	run.resMu.Unlock()
	run.matches.Add(int64(out.MatchCount))
	if run.cb.OnFound != nil {
		run.cbMu.Lock()
		run.cb.OnFound(out)
		run.cbMu.Unlock()
	}
}

// countEntry records a filter hit in a counting run, where every admitted
// entry is itself the result.
func (run *runState) countEntry(fe FileEntry) {
	out := outcomeFor(fe)
	run.found(out)
	run.progress(true)
}

// deliver closes out one searched entry: progress accounting and, when the
// outcome qualifies, result reporting. found follows the original contract:
// negative means the file was skipped or unreadable.
func (run *runState) deliver(out *domain.SearchOutcome, found int) {
	if out.ReadError {
		run.readErrs.Add(1)
	}
	run.progress(found >= 0)
	isResult := found > 0
	if run.creq.req.InvertMatch {
		isResult = found <= 0
	}
	if isResult {
		run.found(out)
	}
}

func outcomeFor(fe FileEntry) *domain.SearchOutcome {
	return &domain.SearchOutcome{
		Path:    fe.Path,
		Folder:  fe.IsDir,
		Size:    fe.Size,
		ModTime: fe.ModTime,
	}
}

// searchEntry loads and matches a single file. Every entry produces exactly
// one deliver call, even when cancelled before loading.
func (run *runState) searchEntry(fe FileEntry) {
	out := outcomeFor(fe)
	if run.cancelled() {
		run.deliver(out, -1)
		return
	}

	found := -1
	fc, err := run.ld.load(fe.Path, fe.Size)
	if err != nil {
		slog.Debug("Could not load file", "path", fe.Path, "error", err)
		out.ReadError = true
		run.deliver(out, found)
		return
	}
	defer fc.close()
	out.Encoding = fc.enc
	out.HasBOM = fc.hasBOM
	out.MimeType = fc.mime

	mc := &matchContext{
		creq:       run.creq,
		blockBytes: run.blockBytes,
		replacing:  run.creq.req.Replace && !run.creq.req.DryRun,
		cancelled:  run.cancelled,
	}
	if fc.textual {
		found = run.searchDecoded(mc, fc, out, fe.Root)
	} else if fc.enc != domain.EncodingBinary || run.creq.req.IncludeBinary || run.creq.req.ForceBinary {
		found = run.searchRaw(mc, fc, out, fe.Root)
	}
	run.deliver(out, found)
}

// searchDecoded matches decoded text and, for replace runs, writes and
// adopts the substituted file. A panic inside matching surfaces as an
// exception on the outcome so one corrupt file cannot take the run down.
func (run *runState) searchDecoded(mc *matchContext, fc *fileContent, out *domain.SearchOutcome, root string) (found int) {
	defer func() {
		if r := recover(); r != nil {
			out.ExceptionMessage = fmt.Sprint(r)
			found = 1
		}
	}()

	found, replaced, ok, err := mc.matchText(fc, out)
	if err != nil {
		out.ExceptionMessage = err.Error()
		return 1
	}
	if ok {
		// Re-check after matching so a cancelled run never rewrites a file.
		if run.cancelled() {
			return found
		}
		tmp, err := run.rp.writeText(fc, replaced)
		if err != nil {
			out.ExceptionMessage = err.Error()
			return 1
		}
		if err := run.rp.adopt(out, root, tmp); err != nil {
			slog.Debug("Could not adopt replaced file", "path", out.Path, "error", err)
			out.ExceptionMessage = err.Error()
			return 1
		}
	}
	return found
}

// searchRaw matches raw content, trying each encoding assumption in turn
// until one yields hits. Wide assumptions over binary content retry one
// byte off so headerless UTF-16 with a leading odd byte is still seen; the
// aligned and misaligned passes of one endianness pool their hits.
func (run *runState) searchRaw(mc *matchContext, fc *fileContent, out *domain.SearchOutcome, root string) (found int) {
	defer func() {
		if r := recover(); r != nil {
			out.ExceptionMessage = fmt.Sprint(r)
			if found <= 0 {
				found = 1
			}
		}
	}()

	tries := rawTries(fc.enc, run.creq.req.UseRegex)
	for i := 0; i < len(tries); i++ {
		if run.cancelled() {
			break
		}
		try := tries[i]
		c := newCodec(try)
		out.Encoding = try.enc

		var sink *tempStream
		if mc.replacing {
			var err error
			sink, err = run.rp.openRaw(fc, c)
			if err != nil {
				slog.Debug("Could not open temp file", "path", out.Path, "error", err)
				return -1
			}
		}

		n, err := mc.matchRaw(fc, c, out, sink)
		cut := run.cancelled()
		if sink != nil {
			adoptIt, ferr := sink.finish(n, cut)
			if err == nil {
				err = ferr
			}
			if adoptIt && err == nil {
				err = run.rp.adopt(out, root, sink.path)
			}
		}
		found += n
		if err != nil {
			out.ExceptionMessage = err.Error()
			if found <= 0 {
				found = 1
			}
			return found
		}

		if found > 0 {
			// In search mode the misaligned sibling still runs so both
			// phases contribute records.
			if !mc.replacing && i+1 < len(tries) && tries[i+1].misaligned {
				continue
			}
			break
		}
	}
	if found <= 0 {
		out.Encoding = fc.enc
	}
	return found
}

func (run *runState) summary() *Summary {
	return &Summary{
		Scanned:    run.scanned.Load(),
		Searched:   run.searched.Load(),
		Matches:    run.matches.Load(),
		ReadErrors: run.readErrs.Load(),
		Results:    run.arena,
	}
}
