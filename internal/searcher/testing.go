package searcher

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sha1n/greplace/internal/domain"
)

// WriteTree lays the given files out under dir, creating parent directories
// as needed. Keys are slash-separated relative paths.
// This is exported for use in integration tests.
func WriteTree(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// UTF16LE encodes s as little-endian UTF-16 for wide fixtures.
func UTF16LE(s string, withBOM bool) []byte {
	out := encodeUTF16Bytes(s, binary.LittleEndian)
	if withBOM {
		return append([]byte{0xFF, 0xFE}, out...)
	}
	return out
}

// UTF16BE encodes s as big-endian UTF-16 for wide fixtures.
func UTF16BE(s string, withBOM bool) []byte {
	out := encodeUTF16Bytes(s, binary.BigEndian)
	if withBOM {
		return append([]byte{0xFE, 0xFF}, out...)
	}
	return out
}

// ResultCollector gathers callback traffic so tests can assert on delivery
// counts and reported outcomes.
type ResultCollector struct {
	mu       sync.Mutex
	starts   int
	ends     int
	progress int
	found    []*domain.SearchOutcome
}

// Callbacks returns a callback set that feeds this collector.
func (rc *ResultCollector) Callbacks() Callbacks {
	return Callbacks{
		OnStart: func() {
			rc.mu.Lock()
			rc.starts++
			rc.mu.Unlock()
		},
		OnProgress: func(_, _ int64) {
			rc.mu.Lock()
			rc.progress++
			rc.mu.Unlock()
		},
		OnFound: func(out *domain.SearchOutcome) {
			rc.mu.Lock()
			rc.found = append(rc.found, out)
			rc.mu.Unlock()
		},
		OnEnd: func() {
			rc.mu.Lock()
			rc.ends++
			rc.mu.Unlock()
		},
	}
}

// Found returns the outcomes reported so far.
func (rc *ResultCollector) Found() []*domain.SearchOutcome {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]*domain.SearchOutcome(nil), rc.found...)
}

// Counts returns how often each lifecycle callback fired.
func (rc *ResultCollector) Counts() (starts, ends, progress int) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.starts, rc.ends, rc.progress
}
