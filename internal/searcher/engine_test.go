package searcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sha1n/greplace/internal/domain"
)

func runEngine(t *testing.T, req *Request) (*Summary, *ResultCollector) {
	t.Helper()
	rc := &ResultCollector{}
	engine := New(Options{Workers: 1})
	s, err := engine.Run(context.Background(), req, rc.Callbacks())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return s, rc
}

func resultPaths(s *Summary) map[string]*domain.SearchOutcome {
	byPath := make(map[string]*domain.SearchOutcome, len(s.Results))
	for _, out := range s.Results {
		byPath[filepath.Base(out.Path)] = out
	}
	return byPath
}

func TestEngineRun_LiteralSearch(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt":     []byte("foo bar\nbaz\nfoo again\n"),
		"b.txt":     []byte("only FOO here\n"),
		"sub/c.txt": []byte("nothing\n"),
	})

	s, rc := runEngine(t, &Request{
		Roots:          []string{dir},
		Pattern:        "foo",
		IncludeSubdirs: true,
	})

	if s.Matches != 3 {
		t.Errorf("Expected 3 matches, got %d", s.Matches)
	}
	if len(s.Results) != 2 {
		t.Fatalf("Expected 2 result files, got %d", len(s.Results))
	}
	if s.Scanned != 3 || s.Searched != 3 {
		t.Errorf("Expected 3 scanned and searched, got %d/%d", s.Scanned, s.Searched)
	}

	byPath := resultPaths(s)
	a := byPath["a.txt"]
	if a == nil {
		t.Fatal("Expected a result for a.txt")
	}
	if a.MatchCount != 2 {
		t.Errorf("Expected 2 matches in a.txt, got %d", a.MatchCount)
	}
	want := []domain.MatchRecord{
		{Line: 1, Column: 1, Length: 3},
		{Line: 3, Column: 1, Length: 3},
	}
	for i, m := range want {
		if a.Matches[i] != m {
			t.Errorf("Expected match %d to be %+v, got %+v", i, m, a.Matches[i])
		}
	}
	if a.LineText(1) != "foo bar" {
		t.Errorf("Expected line excerpt 'foo bar', got %q", a.LineText(1))
	}
	if a.Encoding != domain.EncodingUTF8 {
		t.Errorf("Expected UTF-8, got %s", a.Encoding)
	}

	// Case-insensitive by default
	if byPath["b.txt"] == nil {
		t.Error("Expected FOO to match case-insensitively")
	}

	starts, ends, _ := rc.Counts()
	if starts != 1 || ends != 1 {
		t.Errorf("Expected one start and one end, got %d/%d", starts, ends)
	}
}

func TestEngineRun_CaseSensitive(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("foo\nFOO\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:         []string{dir},
		Pattern:       "FOO",
		CaseSensitive: true,
	})

	if s.Matches != 1 {
		t.Fatalf("Expected 1 match, got %d", s.Matches)
	}
	if s.Results[0].Matches[0].Line != 2 {
		t.Errorf("Expected match on line 2, got %d", s.Results[0].Matches[0].Line)
	}
}

func TestEngineRun_WholeWords(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("cat catalog concat\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:      []string{dir},
		Pattern:    "cat",
		WholeWords: true,
	})

	if s.Matches != 1 {
		t.Errorf("Expected 1 whole-word match, got %d", s.Matches)
	}
}

func TestEngineRun_RegexSearch(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("id=42\nid=abc\nid=777\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:    []string{dir},
		Pattern:  `id=(\d+)`,
		UseRegex: true,
	})

	if s.Matches != 2 {
		t.Errorf("Expected 2 regex matches, got %d", s.Matches)
	}
}

func TestEngineRun_ReplaceWithBackup(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("foo\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:        []string{dir},
		Pattern:      "foo",
		Replace:      true,
		Replacement:  "bar",
		CreateBackup: true,
	})

	if s.Matches != 1 {
		t.Fatalf("Expected 1 replacement, got %d", s.Matches)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "bar\n" {
		t.Errorf("Expected replaced content 'bar', got %q", string(data))
	}
	backup, err := os.ReadFile(filepath.Join(dir, "a.txt.bak"))
	if err != nil {
		t.Fatalf("Expected sibling backup: %v", err)
	}
	if string(backup) != "foo\n" {
		t.Errorf("Expected backup to hold 'foo', got %q", string(backup))
	}
	if !s.Results[0].Backedup {
		t.Error("Expected outcome to record the backup")
	}
}

func TestEngineRun_ReplaceBackupInFolder(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"sub/a.txt": []byte("foo\n"),
	})

	_, _ = runEngine(t, &Request{
		Roots:          []string{dir},
		Pattern:        "foo",
		Replace:        true,
		Replacement:    "bar",
		CreateBackup:   true,
		BackupInFolder: true,
		IncludeSubdirs: true,
	})

	backup := filepath.Join(dir, "greplace_backup", "sub", "a.txt")
	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("Expected shadow folder backup at %s: %v", backup, err)
	}
	if string(data) != "foo\n" {
		t.Errorf("Expected backup to hold 'foo', got %q", string(data))
	}
}

func TestEngineRun_ReplaceIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("foo foo\n"),
	})

	req := &Request{
		Roots:        []string{dir},
		Pattern:      "foo",
		Replace:      true,
		Replacement:  "bar",
		CreateBackup: true,
		NamePattern:  "*.txt",
	}
	first, _ := runEngine(t, req)
	if first.Matches != 2 {
		t.Fatalf("Expected 2 replacements, got %d", first.Matches)
	}

	// The second run sees only the replaced file and changes nothing
	second, _ := runEngine(t, req)
	if second.Matches != 0 {
		t.Errorf("Expected no matches on the second run, got %d", second.Matches)
	}
	backup, err := os.ReadFile(filepath.Join(dir, "a.txt.bak"))
	if err != nil {
		t.Fatal(err)
	}
	if string(backup) != "foo foo\n" {
		t.Errorf("Expected backup to keep original content, got %q", string(backup))
	}
}

func TestEngineRun_ReplaceRegexCaptures(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("name: alice\nname: bob\n"),
	})

	_, _ = runEngine(t, &Request{
		Roots:       []string{dir},
		Pattern:     `name: (\w+)`,
		UseRegex:    true,
		Replace:     true,
		Replacement: "user=$1",
	})

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "user=alice\nuser=bob\n" {
		t.Errorf("Expected capture expansion, got %q", string(data))
	}
}

func TestEngineRun_DryRunLeavesFilesAlone(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("foo\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:        []string{dir},
		Pattern:      "foo",
		Replace:      true,
		Replacement:  "bar",
		CreateBackup: true,
		DryRun:       true,
	})

	if s.Matches != 1 {
		t.Errorf("Expected the dry run to report 1 match, got %d", s.Matches)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "foo\n" {
		t.Errorf("Expected file untouched, got %q", string(data))
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt.bak")); !os.IsNotExist(err) {
		t.Error("Expected no backup to be written on a dry run")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected no extra files after a dry run, got %d entries", len(entries))
	}
}

func TestEngineRun_KeepFileDate(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("foo\n"),
	})
	path := filepath.Join(dir, "a.txt")
	stamp := time.Date(2020, 6, 1, 12, 0, 0, 0, time.Local)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatal(err)
	}

	_, _ = runEngine(t, &Request{
		Roots:        []string{dir},
		Pattern:      "foo",
		Replace:      true,
		Replacement:  "bar",
		KeepFileDate: true,
	})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(stamp) {
		t.Errorf("Expected mod time %v to be preserved, got %v", stamp, info.ModTime())
	}
}

func TestEngineRun_BinaryFilesSkippedByDefault(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"data.bin": append([]byte("foo"), 0x00, 0x01, 0x02),
		"a.txt":    []byte("foo\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:   []string{dir},
		Pattern: "foo",
	})

	if len(s.Results) != 1 || filepath.Base(s.Results[0].Path) != "a.txt" {
		t.Fatalf("Expected only a.txt, got %d results", len(s.Results))
	}
	// The binary file is still walked and counted
	if s.Scanned != 2 {
		t.Errorf("Expected 2 scanned, got %d", s.Scanned)
	}

	s, _ = runEngine(t, &Request{
		Roots:         []string{dir},
		Pattern:       "foo",
		IncludeBinary: true,
	})
	byPath := resultPaths(s)
	bin := byPath["data.bin"]
	if bin == nil {
		t.Fatal("Expected the binary file to match with IncludeBinary")
	}
	if bin.Encoding != domain.EncodingANSI {
		t.Errorf("Expected an ANSI raw-assumption hit, got %s", bin.Encoding)
	}
}

func TestEngineRun_UTF16Search(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"le.txt": UTF16LE("hello foo\nworld\n", true),
		"be.txt": UTF16BE("foo early\n", true),
	})

	s, _ := runEngine(t, &Request{
		Roots:   []string{dir},
		Pattern: "foo",
	})

	byPath := resultPaths(s)
	le := byPath["le.txt"]
	if le == nil {
		t.Fatal("Expected a result for le.txt")
	}
	if le.Encoding != domain.EncodingUTF16LE {
		t.Errorf("Expected UTF-16 LE, got %s", le.Encoding)
	}
	if !le.HasBOM {
		t.Error("Expected the BOM to be recorded")
	}
	if le.Matches[0].Line != 1 || le.Matches[0].Column != 7 {
		t.Errorf("Expected match at 1:7, got %d:%d", le.Matches[0].Line, le.Matches[0].Column)
	}
	be := byPath["be.txt"]
	if be == nil {
		t.Fatal("Expected a result for be.txt")
	}
	if be.Encoding != domain.EncodingUTF16BE {
		t.Errorf("Expected UTF-16 BE, got %s", be.Encoding)
	}
}

func TestEngineRun_InvertMatch(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"hit.txt":  []byte("foo\n"),
		"miss.txt": []byte("bar\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:       []string{dir},
		Pattern:     "foo",
		InvertMatch: true,
	})

	if len(s.Results) != 1 || filepath.Base(s.Results[0].Path) != "miss.txt" {
		t.Fatalf("Expected only miss.txt, got %d results", len(s.Results))
	}
	if len(s.Results[0].Matches) != 0 {
		t.Error("Expected an inverted result to carry no match records")
	}
}

func TestEngineRun_CountingRun(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt":     []byte("x"),
		"b.log":     []byte("x"),
		"sub/c.txt": []byte("x"),
	})

	s, _ := runEngine(t, &Request{
		Roots:          []string{dir},
		NamePattern:    "*.txt",
		IncludeSubdirs: true,
	})

	byPath := resultPaths(s)
	if byPath["a.txt"] == nil || byPath["c.txt"] == nil {
		t.Errorf("Expected both .txt files, got %d results", len(s.Results))
	}
	if byPath["b.log"] != nil {
		t.Error("Expected b.log to be filtered out")
	}
}

func TestEngineRun_NamePatternExclusion(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"keep.go":      []byte("foo\n"),
		"skip_test.go": []byte("foo\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:       []string{dir},
		Pattern:     "foo",
		NamePattern: "*.go|-*_test.go",
	})

	if len(s.Results) != 1 || filepath.Base(s.Results[0].Path) != "keep.go" {
		t.Fatalf("Expected only keep.go, got %d results", len(s.Results))
	}
}

func TestEngineRun_ExcludeDirs(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"src/a.txt":              []byte("foo\n"),
		"node_modules/b.txt":     []byte("foo\n"),
		"src/node_modules/c.txt": []byte("foo\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:              []string{dir},
		Pattern:            "foo",
		IncludeSubdirs:     true,
		ExcludeDirsPattern: "node_modules",
	})

	if len(s.Results) != 1 || filepath.Base(s.Results[0].Path) != "a.txt" {
		t.Fatalf("Expected only src/a.txt, got %d results", len(s.Results))
	}
}

func TestEngineRun_HiddenFiles(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"visible.txt": []byte("foo\n"),
		".hidden.txt": []byte("foo\n"),
	})

	s, _ := runEngine(t, &Request{Roots: []string{dir}, Pattern: "foo"})
	if len(s.Results) != 1 || filepath.Base(s.Results[0].Path) != "visible.txt" {
		t.Fatalf("Expected hidden files to be skipped, got %d results", len(s.Results))
	}

	s, _ = runEngine(t, &Request{Roots: []string{dir}, Pattern: "foo", IncludeHidden: true})
	if len(s.Results) != 2 {
		t.Errorf("Expected both files with IncludeHidden, got %d results", len(s.Results))
	}
}

func TestEngineRun_NoRecursionByDefault(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"top.txt":     []byte("foo\n"),
		"sub/low.txt": []byte("foo\n"),
	})

	s, _ := runEngine(t, &Request{Roots: []string{dir}, Pattern: "foo"})

	if len(s.Results) != 1 || filepath.Base(s.Results[0].Path) != "top.txt" {
		t.Fatalf("Expected only the top-level file, got %d results", len(s.Results))
	}
}

func TestEngineRun_DateFilter(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"old.txt": []byte("foo\n"),
		"new.txt": []byte("foo\n"),
	})
	past := time.Date(2000, 1, 1, 0, 0, 0, 0, time.Local)
	if err := os.Chtimes(filepath.Join(dir, "old.txt"), past, past); err != nil {
		t.Fatal(err)
	}

	s, _ := runEngine(t, &Request{
		Roots:      []string{dir},
		Pattern:    "foo",
		DateFilter: DateFilter{Kind: DateNewer, T1: time.Now().Add(-24 * time.Hour)},
	})

	if len(s.Results) != 1 || filepath.Base(s.Results[0].Path) != "new.txt" {
		t.Fatalf("Expected only new.txt, got %d results", len(s.Results))
	}
}

func TestEngineRun_SizeFilter(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"small.txt": []byte("foo\n"),
		"large.txt": append([]byte("foo\n"), make([]byte, 4096)...),
	})

	s, _ := runEngine(t, &Request{
		Roots:      []string{dir},
		Pattern:    "foo",
		SizeFilter: &SizeFilter{Cmp: SizeLess, Bytes: 100},
	})

	if len(s.Results) != 1 || filepath.Base(s.Results[0].Path) != "small.txt" {
		t.Fatalf("Expected only the small file, got %d results", len(s.Results))
	}
}

func TestEngineRun_CaptureOnly(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("version = 1.2.3\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:       []string{dir},
		Pattern:     `version = (\S+)`,
		UseRegex:    true,
		CaptureOnly: true,
		Replacement: "$1",
	})

	if s.Matches != 1 {
		t.Fatalf("Expected 1 match, got %d", s.Matches)
	}
	out := s.Results[0]
	if out.LineText(out.Matches[0].Line) != "1.2.3" {
		t.Errorf("Expected the capture expansion as line text, got %q", out.LineText(out.Matches[0].Line))
	}
	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "version = 1.2.3\n" {
		t.Errorf("Expected file untouched in capture mode, got %q", string(data))
	}
}

func TestEngineRun_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("foo\n"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := New(Options{Workers: 1})
	s, err := engine.Run(ctx, &Request{Roots: []string{dir}, Pattern: "foo"}, Callbacks{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !s.Cancelled {
		t.Error("Expected the summary to report cancellation")
	}
}

func TestCancelledRunNeverRewritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("foo bar\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	req := &Request{Roots: []string{dir}, Pattern: "foo", Replacement: "qux", Replace: true}
	creq, err := compileRequest(req)
	if err != nil {
		t.Fatalf("compileRequest: %v", err)
	}
	excl := NewExclusionSet()
	run := &runState{
		creq:       creq,
		excl:       excl,
		ld:         &loader{textLoadLimit: DefaultTextLoadLimit},
		rp:         &replacer{req: req, excl: excl},
		blockBytes: DefaultBlockBytes,
		cancelled:  func() bool { return true },
	}

	fc, err := run.ld.load(path, 8)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer fc.close()

	// Matching is allowed to finish; cancellation lands just before the write.
	mc := &matchContext{
		creq:       creq,
		blockBytes: run.blockBytes,
		replacing:  true,
		cancelled:  func() bool { return false },
	}
	out := &domain.SearchOutcome{Path: path, Encoding: fc.enc}

	if found := run.searchDecoded(mc, fc, out, dir); found != 1 {
		t.Fatalf("found = %d, want 1", found)
	}
	if out.ExceptionMessage != "" {
		t.Fatalf("Unexpected exception: %s", out.ExceptionMessage)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "foo bar\n" {
		t.Errorf("Expected the file untouched, got %q", string(data))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected no temp or backup files, got %d entries", len(entries))
	}
}

func TestEngineRun_InvalidRequest(t *testing.T) {
	engine := New(Options{})

	_, err := engine.Run(context.Background(), &Request{Pattern: "foo"}, Callbacks{})
	if err == nil {
		t.Error("Expected error for a request without roots")
	}
}

func TestEngineRun_MissingRootIsSkipped(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("foo\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:   []string{filepath.Join(dir, "absent"), dir},
		Pattern: "foo",
	})

	if len(s.Results) != 1 {
		t.Errorf("Expected the existing root to be searched, got %d results", len(s.Results))
	}
}

func TestEngineRun_SingleFileRoot(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"a.txt": []byte("foo\n"),
		"b.txt": []byte("foo\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:   []string{filepath.Join(dir, "a.txt")},
		Pattern: "foo",
	})

	if len(s.Results) != 1 || filepath.Base(s.Results[0].Path) != "a.txt" {
		t.Fatalf("Expected only the named file, got %d results", len(s.Results))
	}
}

func TestEngineRun_PathVariables(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string][]byte{
		"readme.txt": []byte("see readme for details\n"),
		"other.txt":  []byte("see readme for details\n"),
	})

	s, _ := runEngine(t, &Request{
		Roots:    []string{dir},
		Pattern:  `${filename}`,
		UseRegex: true,
	})

	// The pattern expands per file, so only readme.txt matches itself
	if len(s.Results) != 1 || filepath.Base(s.Results[0].Path) != "readme.txt" {
		t.Fatalf("Expected only readme.txt, got %d results", len(s.Results))
	}
}
