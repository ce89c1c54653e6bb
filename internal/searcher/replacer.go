package searcher

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sha1n/greplace/internal/domain"
)

const (
	// tempSuffix marks the sibling file replacement results stream into
	// before they replace the original.
	tempSuffix = ".greplaced"
	// backupSiblingSuffix is appended for plain sibling backups.
	backupSiblingSuffix = ".bak"
	// backupFolderName is the shadow tree created under the search root
	// when backups are collected in one place.
	backupFolderName = "greplace_backup"
)

const (
	timeRestoreAttempts = 5
	timeRestoreDelay    = 50 * time.Millisecond
)

// replacer owns everything that touches disk after a match pass: temp
// files, backups, attribute juggling and the final rename. Every file it
// creates is registered for exclusion so the running search never descends
// into its own output.
type replacer struct {
	req  *Request
	excl *ExclusionSet
}

// tempStream writes a raw-path replacement as the scan advances: prelude
// bytes first, then alternating untouched spans and expansion output.
type tempStream struct {
	f       *os.File
	w       *bufio.Writer
	path    string
	data    []byte
	prelude int64
	c       *codec
}

// openRaw creates the temp stream for one encoding try and copies the BOM
// and any alignment byte through unchanged.
func (rp *replacer) openRaw(fc *fileContent, c *codec) (*tempStream, error) {
	tmp := fc.path + tempSuffix
	rp.excl.Add(tmp)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp %s: %w", tmp, err)
	}
	ts := &tempStream{
		f:       f,
		w:       bufio.NewWriter(f),
		path:    tmp,
		data:    fc.data,
		prelude: fc.prelude(),
		c:       c,
	}
	head := ts.prelude + int64(c.phase)
	if head > int64(len(fc.data)) {
		head = int64(len(fc.data))
	}
	if _, err := ts.w.Write(fc.data[:head]); err != nil {
		ts.discard()
		return nil, err
	}
	return ts, nil
}

// copyUnits copies source units [lo, hi) through unchanged.
func (ts *tempStream) copyUnits(lo, hi int64) error {
	if hi <= lo {
		return nil
	}
	blo, bhi := ts.c.byteRange(ts.prelude, lo, hi)
	_, err := ts.w.Write(ts.data[blo:bhi])
	return err
}

func (ts *tempStream) write(p []byte) error {
	_, err := ts.w.Write(p)
	return err
}

// finish completes the stream. With no hits the temp file is removed; a
// cancelled pass that did hit keeps the partial temp on disk as a hint and
// reports that it must not be adopted.
func (ts *tempStream) finish(found int, cut bool) (adopt bool, err error) {
	if found > 0 && !cut {
		usable := int64(len(ts.data)) - ts.prelude - int64(ts.c.phase)
		if drop := usable % int64(ts.c.width); drop > 0 {
			if _, err := ts.w.Write(ts.data[int64(len(ts.data))-drop:]); err != nil {
				ts.discard()
				return false, err
			}
		}
	}
	if err := ts.w.Flush(); err != nil {
		ts.discard()
		return false, err
	}
	if err := ts.f.Close(); err != nil {
		return false, err
	}
	if found == 0 {
		return false, os.Remove(ts.path)
	}
	return !cut, nil
}

// discard abandons the stream and removes the temp file.
func (ts *tempStream) discard() {
	_ = ts.f.Close()
	_ = os.Remove(ts.path)
}

// writeText writes a decoded-path replacement result to the temp file,
// re-encoding it the way the original was stored.
func (rp *replacer) writeText(fc *fileContent, replaced string) (string, error) {
	tmp := fc.path + tempSuffix
	rp.excl.Add(tmp)
	out := make([]byte, 0, len(replaced)+4)
	if fc.hasBOM {
		out = append(out, bomFor(fc.enc)...)
	}
	out = append(out, encodeTextFile(replaced, fc.enc)...)
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return "", fmt.Errorf("write temp %s: %w", tmp, err)
	}
	return tmp, nil
}

func encodeTextFile(text string, enc domain.Encoding) []byte {
	switch enc {
	case domain.EncodingUTF16LE:
		return encodeUTF16Bytes(text, binary.LittleEndian)
	case domain.EncodingUTF16BE:
		return encodeUTF16Bytes(text, binary.BigEndian)
	case domain.EncodingANSI:
		return encodeCP1252(text)
	default:
		return []byte(text)
	}
}

// adopt promotes a finished temp file over the original: capture times,
// lift blocking attributes, take the backup, rename, restore. The first
// failing step aborts and leaves the temp file for inspection.
func (rp *replacer) adopt(out *domain.SearchOutcome, root, tempPath string) error {
	orig := out.Path
	info, err := os.Stat(orig)
	if err != nil {
		return fmt.Errorf("stat %s: %w", orig, err)
	}
	var atime, mtime time.Time
	if rp.req.KeepFileDate {
		atime, mtime = fileTimes(info)
	}

	restore, err := clearFileAttrs(orig, info)
	if err != nil {
		slog.Debug("Could not lift file attributes", "path", orig, "error", err)
	}

	if rp.req.CreateBackup && !out.Backedup {
		backup, err := rp.backupPath(orig, root)
		if err != nil {
			return err
		}
		rp.excl.Add(backup)
		if err := os.Rename(orig, backup); err != nil {
			return fmt.Errorf("backup %s: %w", orig, err)
		}
		out.Backedup = true
	}

	if err := os.Rename(tempPath, orig); err != nil {
		return fmt.Errorf("adopt %s: %w", orig, err)
	}

	if rp.req.KeepFileDate {
		for i := 0; i < timeRestoreAttempts; i++ {
			if err = os.Chtimes(orig, atime, mtime); err == nil {
				break
			}
			time.Sleep(timeRestoreDelay)
		}
		if err != nil {
			slog.Debug("Could not restore file times", "path", orig, "error", err)
		}
	}
	if restore != nil {
		restore()
	}
	return nil
}

// backupPath resolves where the pre-replace copy of a file goes: a .bak
// sibling, or the file's place in a shadow tree under the search root.
func (rp *replacer) backupPath(path, root string) (string, error) {
	if !rp.req.BackupInFolder {
		return path + backupSiblingSuffix, nil
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("backup path for %s: %w", path, err)
	}
	dest := filepath.Join(root, backupFolderName, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("backup dir for %s: %w", path, err)
	}
	return dest, nil
}
