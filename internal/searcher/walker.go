package searcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FileEntry describes one filesystem item the walker considered.
type FileEntry struct {
	// Path is the absolute path of the entry.
	Path string
	// Root is the search root the entry was found under. For a file
	// given directly as a root this is its parent directory.
	Root    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// walker enumerates candidate files beneath the request roots, applying the
// attribute, name, size and date filters in order. Directories are visited
// breadth first; unreadable directories and vanished entries are skipped
// silently.
type walker struct {
	creq *compiledRequest
	excl *ExclusionSet

	// cancelled is polled between entries.
	cancelled func() bool

	// onCandidate receives entries that passed every filter. Returning
	// false stops the walk.
	onCandidate func(FileEntry) bool

	// onFiltered receives files the name, size or date filters rejected,
	// so progress totals still account for them.
	onFiltered func(FileEntry)
}

// walk enumerates all roots in order. It returns early when cancelled or
// when onCandidate stops the walk.
func (w *walker) walk(ctx context.Context) {
	for _, root := range w.creq.req.Roots {
		if w.stopped(ctx) {
			return
		}
		if !w.walkRoot(ctx, root) {
			return
		}
	}
}

func (w *walker) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || w.cancelled()
}

// walkRoot enumerates one root. It returns false when the walk should stop
// entirely.
func (w *walker) walkRoot(ctx context.Context, root string) bool {
	root, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		slog.Debug("Ignoring unresolvable search root", "root", root, "error", err)
		return true
	}
	info, err := os.Stat(root)
	if err != nil {
		slog.Debug("Ignoring missing search root", "root", root)
		return true
	}

	// A file named directly bypasses every filter: the caller asked for
	// exactly this file. Only self-created files are still excluded.
	if !info.IsDir() {
		if w.excl.Contains(root) {
			return true
		}
		return w.onCandidate(FileEntry{
			Path:    root,
			Root:    filepath.Dir(root),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	queue := []string{root}
	for len(queue) > 0 {
		if w.stopped(ctx) {
			return false
		}
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			slog.Debug("Skipping unreadable directory", "dir", dir, "error", err)
			continue
		}
		for _, entry := range entries {
			if w.stopped(ctx) {
				return false
			}
			cont, descend := w.visit(root, dir, entry)
			if !cont {
				return false
			}
			if descend != "" {
				queue = append(queue, descend)
			}
		}
	}
	return true
}

// visit applies the filter chain to a single directory entry. It returns
// whether the walk continues and, for directories that should be descended
// into, the directory path to enqueue.
func (w *walker) visit(root, dir string, entry fs.DirEntry) (cont bool, descend string) {
	req := w.creq.req
	path := filepath.Join(dir, entry.Name())

	if w.excl.Contains(path) {
		return true, ""
	}
	if entry.Type()&fs.ModeSymlink != 0 {
		if !req.IncludeSymlinks {
			return true, ""
		}
		// Symlinked files are searched; symlinked directories are never
		// followed, so link cycles cannot trap the walk.
		target, err := os.Stat(path)
		if err != nil || target.IsDir() {
			return true, ""
		}
		return w.visitFile(FileEntry{
			Path: path, Root: root, Size: target.Size(), ModTime: target.ModTime(),
		}), ""
	}

	info, err := entry.Info()
	if err != nil {
		return true, ""
	}
	hidden, system := entryHiddenSystem(entry.Name(), info)
	if (hidden && !req.IncludeHidden) || (system && !req.IncludeSystem) {
		return true, ""
	}

	fe := FileEntry{
		Path:    path,
		Root:    root,
		IsDir:   entry.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	if fe.IsDir {
		if !req.IncludeSubdirs {
			return true, ""
		}
		if w.creq.excludedDir(entry.Name(), path, root) {
			return true, ""
		}
		// Directories themselves are candidates only in a counting run.
		if w.creq.counting &&
			w.creq.matchName(path) &&
			w.creq.admitsSize(fe.Size) &&
			w.creq.admitsDate(fe.ModTime) {
			return w.onCandidate(fe), path
		}
		return true, path
	}

	return w.visitFile(fe), ""
}

// visitFile runs the name, size and date filters on a file and forwards it
// as a candidate or as filtered.
func (w *walker) visitFile(fe FileEntry) bool {
	if !w.creq.matchName(fe.Path) ||
		!w.creq.admitsSize(fe.Size) ||
		!w.creq.admitsDate(fe.ModTime) {
		w.onFiltered(fe)
		return true
	}
	return w.onCandidate(fe)
}
