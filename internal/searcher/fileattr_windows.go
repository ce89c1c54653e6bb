//go:build windows

package searcher

import (
	"io/fs"
	"syscall"
	"time"
)

const restrictiveAttrs = syscall.FILE_ATTRIBUTE_HIDDEN |
	syscall.FILE_ATTRIBUTE_READONLY |
	syscall.FILE_ATTRIBUTE_SYSTEM

// entryHiddenSystem reports the hidden and system attributes of an entry
// from its Win32 file attribute data.
func entryHiddenSystem(_ string, info fs.FileInfo) (hidden, system bool) {
	sys, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return false, false
	}
	return sys.FileAttributes&syscall.FILE_ATTRIBUTE_HIDDEN != 0,
		sys.FileAttributes&syscall.FILE_ATTRIBUTE_SYSTEM != 0
}

// fileTimes returns the access and modification times to restore after a
// replace.
func fileTimes(info fs.FileInfo) (atime, mtime time.Time) {
	mtime = info.ModTime()
	atime = mtime
	if sys, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		atime = time.Unix(0, sys.LastAccessTime.Nanoseconds())
	}
	return atime, mtime
}

// clearFileAttrs lifts the hidden, readonly and system attributes so the
// file can be renamed over. The returned restore puts the original
// attributes back and is non-nil only when something was changed.
func clearFileAttrs(path string, _ fs.FileInfo) (restore func(), err error) {
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	attrs, err := syscall.GetFileAttributes(p)
	if err != nil {
		return nil, err
	}
	if attrs&restrictiveAttrs == 0 {
		return nil, nil
	}
	if err := syscall.SetFileAttributes(p, attrs&^uint32(restrictiveAttrs)); err != nil {
		return nil, err
	}
	return func() {
		_ = syscall.SetFileAttributes(p, attrs)
	}, nil
}
