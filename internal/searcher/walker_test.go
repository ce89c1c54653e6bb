package searcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

type walkCollector struct {
	candidates []FileEntry
	filtered   []FileEntry
}

func newTestWalker(t *testing.T, mutate func(*Request)) (*walker, *walkCollector) {
	t.Helper()
	req := validRequest()
	if mutate != nil {
		mutate(req)
	}
	creq, err := compileRequest(req)
	if err != nil {
		t.Fatalf("compileRequest: %v", err)
	}
	col := &walkCollector{}
	w := &walker{
		creq:      creq,
		excl:      NewExclusionSet(),
		cancelled: func() bool { return false },
		onCandidate: func(fe FileEntry) bool {
			col.candidates = append(col.candidates, fe)
			return true
		},
		onFiltered: func(fe FileEntry) {
			col.filtered = append(col.filtered, fe)
		},
	}
	return w, col
}

func relPaths(t *testing.T, root string, entries []FileEntry) []string {
	t.Helper()
	out := make([]string, 0, len(entries))
	for _, fe := range entries {
		rel, err := filepath.Rel(root, fe.Path)
		if err != nil {
			t.Fatalf("rel %s: %v", fe.Path, err)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)
	return out
}

func checkPaths(t *testing.T, root string, entries []FileEntry, want []string) {
	t.Helper()
	got := relPaths(t, root, entries)
	if len(got) != len(want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWalker_Recursion(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt":          []byte("x"),
		"sub/b.txt":      []byte("x"),
		"sub/deep/c.txt": []byte("x"),
	})

	w, col := newTestWalker(t, func(r *Request) { r.Roots = []string{dir} })
	w.walk(context.Background())
	checkPaths(t, dir, col.candidates, []string{"a.txt", "sub/b.txt", "sub/deep/c.txt"})

	w, col = newTestWalker(t, func(r *Request) {
		r.Roots = []string{dir}
		r.IncludeSubdirs = false
	})
	w.walk(context.Background())
	checkPaths(t, dir, col.candidates, []string{"a.txt"})
}

func TestWalker_NameFilterReportsFiltered(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"main.go":  []byte("x"),
		"note.txt": []byte("x"),
	})

	w, col := newTestWalker(t, func(r *Request) {
		r.Roots = []string{dir}
		r.NamePattern = "*.go"
	})
	w.walk(context.Background())

	checkPaths(t, dir, col.candidates, []string{"main.go"})
	checkPaths(t, dir, col.filtered, []string{"note.txt"})
}

func TestWalker_ExcludedDirsAreNotDescended(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"keep/a.txt":   []byte("x"),
		"skipme/b.txt": []byte("x"),
	})

	w, col := newTestWalker(t, func(r *Request) {
		r.Roots = []string{dir}
		r.ExcludeDirsPattern = "^skipme$"
	})
	w.walk(context.Background())

	checkPaths(t, dir, col.candidates, []string{"keep/a.txt"})
	if len(col.filtered) != 0 {
		t.Errorf("excluded subtree leaked into filtered: %v", relPaths(t, dir, col.filtered))
	}
}

func TestWalker_HiddenEntries(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		".hidden/secret.txt": []byte("x"),
		".dot.txt":           []byte("x"),
		"plain.txt":          []byte("x"),
	})

	w, col := newTestWalker(t, func(r *Request) { r.Roots = []string{dir} })
	w.walk(context.Background())
	checkPaths(t, dir, col.candidates, []string{"plain.txt"})

	w, col = newTestWalker(t, func(r *Request) {
		r.Roots = []string{dir}
		r.IncludeHidden = true
	})
	w.walk(context.Background())
	checkPaths(t, dir, col.candidates, []string{".dot.txt", ".hidden/secret.txt", "plain.txt"})
}

func TestWalker_SelfCreatedFilesAreInvisible(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"keep.txt": []byte("x"),
		"skip.txt": []byte("x"),
	})

	w, col := newTestWalker(t, func(r *Request) { r.Roots = []string{dir} })
	w.excl.Add(filepath.Join(dir, "skip.txt"))
	w.walk(context.Background())

	checkPaths(t, dir, col.candidates, []string{"keep.txt"})
	if len(col.filtered) != 0 {
		t.Errorf("excluded file surfaced as filtered: %v", relPaths(t, dir, col.filtered))
	}
}

func TestWalker_FileRootBypassesFilters(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{"f.txt": []byte("x")})
	path := filepath.Join(dir, "f.txt")

	w, col := newTestWalker(t, func(r *Request) {
		r.Roots = []string{path}
		r.NamePattern = "*.go"
	})
	w.walk(context.Background())

	if len(col.candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(col.candidates))
	}
	if col.candidates[0].Path != path {
		t.Errorf("candidate path = %q, want %q", col.candidates[0].Path, path)
	}
	if col.candidates[0].Root != dir {
		t.Errorf("candidate root = %q, want parent %q", col.candidates[0].Root, dir)
	}
}

func TestWalker_SizeFilter(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"big.txt":   make([]byte, 20),
		"small.txt": make([]byte, 3),
	})

	w, col := newTestWalker(t, func(r *Request) {
		r.Roots = []string{dir}
		r.SizeFilter = &SizeFilter{Cmp: SizeGreater, Bytes: 10}
	})
	w.walk(context.Background())

	checkPaths(t, dir, col.candidates, []string{"big.txt"})
	checkPaths(t, dir, col.filtered, []string{"small.txt"})
}

func TestWalker_DateFilter(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"old.txt": []byte("x"),
		"new.txt": []byte("x"),
	})
	cutoff := time.Now().Add(-time.Hour)
	past := cutoff.Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "old.txt"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	w, col := newTestWalker(t, func(r *Request) {
		r.Roots = []string{dir}
		r.DateFilter = DateFilter{Kind: DateOlder, T1: cutoff}
	})
	w.walk(context.Background())

	checkPaths(t, dir, col.candidates, []string{"old.txt"})
	checkPaths(t, dir, col.filtered, []string{"new.txt"})
}

func TestWalker_CountingRunIncludesDirectories(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"top.txt":   []byte("x"),
		"sub/a.txt": []byte("x"),
	})

	w, col := newTestWalker(t, func(r *Request) {
		r.Roots = []string{dir}
		r.Pattern = ""
	})
	w.walk(context.Background())

	checkPaths(t, dir, col.candidates, []string{"sub", "sub/a.txt", "top.txt"})
	dirs := 0
	for _, fe := range col.candidates {
		if fe.IsDir {
			dirs++
		}
	}
	if dirs != 1 {
		t.Errorf("directory candidates = %d, want 1", dirs)
	}
}

func TestWalker_StopsWhenCandidateRefuses(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("x"),
		"b.txt": []byte("x"),
		"c.txt": []byte("x"),
	})

	w, col := newTestWalker(t, func(r *Request) { r.Roots = []string{dir} })
	w.onCandidate = func(fe FileEntry) bool {
		col.candidates = append(col.candidates, fe)
		return false
	}
	w.walk(context.Background())

	if len(col.candidates) != 1 {
		t.Errorf("candidates = %d, want 1 after refusal", len(col.candidates))
	}
}

func TestWalker_CancelledStopsWalk(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{"a.txt": []byte("x")})

	w, col := newTestWalker(t, func(r *Request) { r.Roots = []string{dir} })
	w.cancelled = func() bool { return true }
	w.walk(context.Background())

	if len(col.candidates) != 0 {
		t.Errorf("candidates = %d, want 0", len(col.candidates))
	}
}

func TestWalker_Symlinks(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"target.txt":     []byte("x"),
		"subd/inner.txt": []byte("x"),
	})
	if err := os.Symlink(filepath.Join(dir, "target.txt"), filepath.Join(dir, "ln.txt")); err != nil {
		t.Skipf("symlinks unsupported here: %v", err)
	}
	if err := os.Symlink(filepath.Join(dir, "subd"), filepath.Join(dir, "lnd")); err != nil {
		t.Skipf("symlinks unsupported here: %v", err)
	}

	w, col := newTestWalker(t, func(r *Request) { r.Roots = []string{dir} })
	w.walk(context.Background())
	checkPaths(t, dir, col.candidates, []string{"subd/inner.txt", "target.txt"})

	// Symlinked files join the walk when asked; symlinked directories are
	// never followed.
	w, col = newTestWalker(t, func(r *Request) {
		r.Roots = []string{dir}
		r.IncludeSymlinks = true
	})
	w.walk(context.Background())
	checkPaths(t, dir, col.candidates, []string{"ln.txt", "subd/inner.txt", "target.txt"})
}
