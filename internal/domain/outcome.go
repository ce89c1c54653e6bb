package domain

import "time"

// Encoding identifies the text encoding assumed while a file's content
// was searched. A completed SearchOutcome never carries EncodingAuto.
type Encoding int

const (
	// EncodingAuto means the encoding has not been detected yet.
	EncodingAuto Encoding = iota
	// EncodingANSI is a single-byte codepage, decoded as Windows-1252.
	EncodingANSI
	// EncodingUTF8 is UTF-8, with or without a byte order mark.
	EncodingUTF8
	// EncodingUTF16LE is little-endian UTF-16.
	EncodingUTF16LE
	// EncodingUTF16BE is big-endian UTF-16.
	EncodingUTF16BE
	// EncodingBinary marks content that is not treated as text at all.
	EncodingBinary
)

// String returns the display name for the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingANSI:
		return "ANSI"
	case EncodingUTF8:
		return "UTF-8"
	case EncodingUTF16LE:
		return "UTF-16 LE"
	case EncodingUTF16BE:
		return "UTF-16 BE"
	case EncodingBinary:
		return "BINARY"
	default:
		return "AUTO"
	}
}

// MarshalText implements encoding.TextMarshaler so serialized outcomes
// carry readable encoding names instead of enum ordinals.
func (e Encoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Wide reports whether the encoding uses two-byte code units.
func (e Encoding) Wide() bool {
	return e == EncodingUTF16LE || e == EncodingUTF16BE
}

// MatchRecord locates a single match inside a file.
type MatchRecord struct {
	// Line is the 1-based line number where the match starts. A match
	// spanning several lines produces one record per spanned line.
	Line int64 `json:"line"`

	// Column is the 1-based offset of the match start within its line,
	// counted in the code units of the searched text.
	Column int64 `json:"column"`

	// Length is the match length in code units, clamped to the end of
	// the line for multi-line matches.
	Length int64 `json:"length"`
}

// SearchOutcome accumulates everything discovered about one file (or, in
// counting mode, one directory) during a search run.
type SearchOutcome struct {
	// Path is the absolute path of the searched item.
	Path string `json:"path"`

	// Folder is true when the item is a directory listed in counting mode.
	Folder bool `json:"folder,omitempty"`

	// Size is the file size in bytes at the time it was examined.
	Size int64 `json:"size"`

	// ModTime is the file's last modification time when it was examined.
	ModTime time.Time `json:"mod_time"`

	// Encoding is the encoding assumption the reported matches came from.
	Encoding Encoding `json:"encoding"`

	// HasBOM records whether the file carried a byte order mark.
	HasBOM bool `json:"has_bom,omitempty"`

	// MimeType is the detected MIME type for binary files, display only.
	MimeType string `json:"mime_type,omitempty"`

	// MatchCount is the authoritative number of matches. A match spanning
	// several lines adds one to the count but one record per line, so it
	// does not always equal len(Matches).
	MatchCount int64 `json:"match_count"`

	// Matches holds one record per match, ordered by position.
	Matches []MatchRecord `json:"matches,omitempty"`

	// ReadError is true when the file could not be opened or decoded.
	// A read-error outcome never carries match records.
	ReadError bool `json:"read_error,omitempty"`

	// ExceptionMessage carries the text of a matching failure, such as a
	// replacement expansion error, when one occurred mid-file.
	ExceptionMessage string `json:"exception,omitempty"`

	// Backedup is true once a backup copy of the file has been created
	// during this run. At most one backup is made per file per run.
	Backedup bool `json:"-"`

	// lineText maps line numbers to excerpted line text. Only lines that
	// contain matches and are short enough to display are populated. In
	// capture-only mode the value is the capture expansion instead.
	lineText map[int64]string
}

// SetLineText stores the excerpt for a line, allocating the map on first use.
func (o *SearchOutcome) SetLineText(line int64, text string) {
	if o.lineText == nil {
		o.lineText = make(map[int64]string)
	}
	o.lineText[line] = text
}

// LineText returns the stored excerpt for a line, or the empty string when
// the line was never excerpted.
func (o *SearchOutcome) LineText(line int64) string {
	return o.lineText[line]
}

// HasLineText reports whether an excerpt was stored for the line.
func (o *SearchOutcome) HasLineText(line int64) bool {
	_, ok := o.lineText[line]
	return ok
}

// EncodingLabel returns the encoding display name, with a BOM suffix when
// the file carried a byte order mark.
func (o *SearchOutcome) EncodingLabel() string {
	if o.HasBOM && !o.ReadError {
		return o.Encoding.String() + " BOM"
	}
	return o.Encoding.String()
}
