//go:build !windows

package searcher

import (
	"io/fs"
	"os"
	"strings"
	"time"
)

// entryHiddenSystem reports the hidden and system attributes of an entry.
// On Unix a leading dot means hidden; there is no system attribute.
func entryHiddenSystem(name string, _ fs.FileInfo) (hidden, system bool) {
	return strings.HasPrefix(name, "."), false
}

// fileTimes returns the access and modification times to restore after a
// replace. Unix exposes no portable access time, so the modification time
// stands in for both.
func fileTimes(info fs.FileInfo) (atime, mtime time.Time) {
	return info.ModTime(), info.ModTime()
}

// clearFileAttrs lifts attributes that would block rewriting the file, which
// on Unix means a missing owner write bit. The returned restore puts the
// original mode back and is non-nil only when something was changed.
func clearFileAttrs(path string, info fs.FileInfo) (restore func(), err error) {
	mode := info.Mode().Perm()
	if mode&0o200 != 0 {
		return nil, nil
	}
	if err := os.Chmod(path, mode|0o200); err != nil {
		return nil, err
	}
	return func() {
		_ = os.Chmod(path, mode)
	}, nil
}
