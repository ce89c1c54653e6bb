package searcher

import (
	"path/filepath"
	"sync"
)

// ExclusionSet tracks paths the engine itself creates during a run, such as
// replacement temp files and backups, so the walker never feeds them back
// into the search. A set is scoped to a single run and discarded afterwards.
type ExclusionSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// NewExclusionSet returns an empty exclusion set.
func NewExclusionSet() *ExclusionSet {
	return &ExclusionSet{paths: make(map[string]struct{})}
}

// Add registers a path. Adding the same path twice is harmless.
func (s *ExclusionSet) Add(path string) {
	p := filepath.Clean(path)
	s.mu.Lock()
	s.paths[p] = struct{}{}
	s.mu.Unlock()
}

// Contains reports whether the path has been registered.
func (s *ExclusionSet) Contains(path string) bool {
	p := filepath.Clean(path)
	s.mu.Lock()
	_, ok := s.paths[p]
	s.mu.Unlock()
	return ok
}

// Len returns the number of registered paths.
func (s *ExclusionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}
