package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sha1n/greplace/internal/searcher"
	"gopkg.in/yaml.v3"
)

// ErrBookmarkNotFound is returned when a named bookmark does not exist.
var ErrBookmarkNotFound = errors.New("bookmark not found")

// Bookmarks is a named collection of saved search requests, persisted as a
// YAML file so presets survive between runs.
type Bookmarks struct {
	Entries map[string]*searcher.Request `yaml:"bookmarks"`
}

// LoadBookmarks reads the bookmarks file. A missing file yields an empty,
// usable collection.
func LoadBookmarks(path string) (*Bookmarks, error) {
	b := &Bookmarks{Entries: make(map[string]*searcher.Request)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("read bookmarks %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("parse bookmarks %s: %w", path, err)
	}
	if b.Entries == nil {
		b.Entries = make(map[string]*searcher.Request)
	}
	return b, nil
}

// Get returns the named request.
func (b *Bookmarks) Get(name string) (*searcher.Request, error) {
	req, ok := b.Entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBookmarkNotFound, name)
	}
	return req, nil
}

// Set stores a request under the given name, replacing any previous one.
func (b *Bookmarks) Set(name string, req *searcher.Request) {
	b.Entries[name] = req
}

// Names returns the bookmark names in sorted order.
func (b *Bookmarks) Names() []string {
	names := make([]string, 0, len(b.Entries))
	for name := range b.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes the collection back to its file, creating the directory when
// needed.
func (b *Bookmarks) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create bookmarks dir: %w", err)
	}
	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bookmarks: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write bookmarks %s: %w", path, err)
	}
	return nil
}
