package searcher

import (
	"bytes"
	"unicode/utf8"

	"github.com/sha1n/greplace/internal/domain"
)

// Byte order marks recognized during detection.
var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// bomFor returns the byte order mark for an encoding, or nil when the
// encoding has none.
func bomFor(enc domain.Encoding) []byte {
	switch enc {
	case domain.EncodingUTF8:
		return bomUTF8
	case domain.EncodingUTF16LE:
		return bomUTF16LE
	case domain.EncodingUTF16BE:
		return bomUTF16BE
	default:
		return nil
	}
}

// detectEncoding classifies file content. data is the probe buffer, which is
// the whole file for fully loaded files and a prefix for large ones; size is
// the full file size, which scales the null byte tolerance.
//
// Precedence: byte order mark, then the null byte scan, then UTF-8 validity.
// Valid UTF-8 without multibyte sequences is plain ASCII and reported as
// ANSI unless forceUTF8 lifts it.
func detectEncoding(data []byte, size int64, nullBytesPerMiB int, forceUTF8 bool) (enc domain.Encoding, hasBOM bool) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return domain.EncodingUTF8, true
	case bytes.HasPrefix(data, bomUTF16LE):
		return domain.EncodingUTF16LE, true
	case bytes.HasPrefix(data, bomUTF16BE):
		return domain.EncodingUTF16BE, true
	}

	// With no tolerance configured a single null byte means binary;
	// otherwise the budget grows with the file size.
	nullLimit := int64(1)
	if nullBytesPerMiB > 0 {
		nullLimit = int64(nullBytesPerMiB) * (size/(1<<20) + 1)
	}
	if int64(bytes.Count(data, []byte{0})) >= nullLimit {
		return domain.EncodingBinary, false
	}

	if utf8.Valid(data) {
		if forceUTF8 || hasMultibyte(data) {
			return domain.EncodingUTF8, false
		}
		return domain.EncodingANSI, false
	}
	if forceUTF8 {
		return domain.EncodingUTF8, false
	}
	return domain.EncodingANSI, false
}

func hasMultibyte(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// encodingTry is one raw-path matching attempt: an encoding assumption plus
// the treatment of the bytes under it.
type encodingTry struct {
	enc domain.Encoding
	// wideText selects decoded two-byte-unit matching; otherwise the try
	// matches byte code units directly.
	wideText bool
	// misaligned repeats a wide try shifted by one byte, for wide content
	// embedded at odd offsets inside binary files.
	misaligned bool
	// transcodeNeedle matches a literal needle transcoded to UTF-16 bytes
	// against raw bytes. Only meaningful for byte tries in literal mode.
	transcodeNeedle bool
}

// rawTries returns the assumption list for the raw matching path, in order.
// Each try runs only until one of them produces matches.
//
// Detected text encodings get exactly their own assumption. Binary content
// is probed more broadly: byte assumptions first, then, in regex mode, wide
// assumptions including the misaligned retry. In literal mode wide content
// is instead covered cheaply by matching the UTF-16 transcoded needle
// against raw bytes.
func rawTries(enc domain.Encoding, useRegex bool) []encodingTry {
	switch enc {
	case domain.EncodingANSI, domain.EncodingUTF8:
		return []encodingTry{{enc: enc}}
	case domain.EncodingUTF16LE, domain.EncodingUTF16BE:
		if useRegex {
			return []encodingTry{{enc: enc, wideText: true}}
		}
		return []encodingTry{{enc: enc, transcodeNeedle: true}}
	case domain.EncodingBinary:
		tries := []encodingTry{
			{enc: domain.EncodingANSI},
			{enc: domain.EncodingUTF8},
		}
		if useRegex {
			tries = append(tries,
				encodingTry{enc: domain.EncodingUTF16LE, wideText: true},
				encodingTry{enc: domain.EncodingUTF16LE, wideText: true, misaligned: true},
				encodingTry{enc: domain.EncodingUTF16BE, wideText: true},
				encodingTry{enc: domain.EncodingUTF16BE, wideText: true, misaligned: true},
			)
		} else {
			tries = append(tries,
				encodingTry{enc: domain.EncodingUTF16LE, transcodeNeedle: true},
				encodingTry{enc: domain.EncodingUTF16BE, transcodeNeedle: true},
			)
		}
		return tries
	default:
		return []encodingTry{{enc: domain.EncodingANSI}}
	}
}
