package searcher

import (
	"unicode/utf8"

	"github.com/sha1n/greplace/internal/domain"
)

// maxExcerptUnits is the longest line, in code units, that still gets its
// text attached to a match record. Longer lines report an empty excerpt and
// a zero match length.
const maxExcerptUnits = 4096

// matchContext runs the pattern of one request over loaded file content.
// Decoded text is matched in one pass; raw content is matched through half
// overlapping windows so matches never silently straddle a window seam.
type matchContext struct {
	creq       *compiledRequest
	blockBytes int64
	replacing  bool
	cancelled  func() bool
}

type rawRecord struct {
	unit   int64
	length int64
}

// matchText searches decoded text. It returns the number of pattern hits
// and, when replacing, the fully substituted text. A cancellation mid file
// yields no replacement text so the original file stays untouched.
func (mc *matchContext) matchText(fc *fileContent, out *domain.SearchOutcome) (found int, replaced string, ok bool, err error) {
	re, repl, err := mc.creq.regexFor(fc.path)
	if err != nil {
		return 0, "", false, err
	}

	text := fc.text
	index := buildTextLineIndex(text)
	runes := &unitCursor{text: text, perRune: oneUnitPerRune}
	matches := re.FindAllStringSubmatchIndex(text, -1)

	var stream []byte
	last := 0
	for _, m := range matches {
		if mc.cancelled() {
			return found, "", false, nil
		}
		s, e := m[0], m[1]
		found++
		if mc.creq.req.InvertMatch {
			break
		}

		startRune := runes.unitAt(s)
		line := index.lineNumber(s)
		col := index.runeColumn(line, startRune)
		if mc.creq.req.CaptureOnly {
			if !out.HasLineText(line) {
				out.SetLineText(line, string(re.ExpandString(nil, repl, text, m)))
			}
			out.Matches = append(out.Matches, domain.MatchRecord{
				Line:   line,
				Column: col,
				Length: int64(utf8.RuneCountInString(out.LineText(line))),
			})
		} else {
			lineEnd := line
			if e > s {
				lineEnd = index.lineNumber(e - 1)
			}
			lenMatch := int64(utf8.RuneCountInString(text[s:e]))
			for l := line; l <= lineEnd; l++ {
				if !out.HasLineText(l) {
					out.SetLineText(l, index.lineContent(l))
				}
				lenOnLine := int64(utf8.RuneCountInString(out.LineText(l))) - col + 1
				if lenMatch < lenOnLine {
					lenOnLine = lenMatch
				}
				out.Matches = append(out.Matches, domain.MatchRecord{Line: l, Column: col, Length: lenOnLine})
				if lenMatch > lenOnLine {
					col = 1
					lenMatch -= lenOnLine
				}
			}
		}
		out.MatchCount++

		if mc.replacing {
			stream = append(stream, text[last:s]...)
			stream = re.ExpandString(stream, repl, text, m)
			last = e
		}
	}

	if mc.replacing && found > 0 {
		stream = append(stream, text[last:]...)
		return found, string(stream), true, nil
	}
	return found, "", false, nil
}

// matchRaw searches raw content through the view of one encoding
// assumption. Matches are recorded as absolute code unit offsets and mapped
// to line positions afterwards; when a sink is given, untouched spans and
// replacement expansions stream to it as the scan advances.
func (mc *matchContext) matchRaw(fc *fileContent, c *codec, out *domain.SearchOutcome, sink *tempStream) (int, error) {
	re, repl, err := c.pattern(mc.creq, fc.path)
	if err != nil {
		return 0, err
	}

	prelude := fc.prelude()
	total := c.units(int64(len(fc.data)), prelude)
	if total <= 0 {
		return 0, nil
	}

	blockUnits := mc.blockBytes / int64(c.width)
	if blockUnits < 2 {
		blockUnits = 2
	}
	half := blockUnits / 2

	var (
		found      int
		recs       []rawRecord
		prevEnd    int64
		lastEnd    int64
		lastCopied int64
		wasCut     bool
	)

scan:
	for k := int64(0); ; k++ {
		lo := k * half
		hi := lo + blockUnits
		lastWindow := hi >= total
		if lastWindow {
			hi = total
		}
		if lo >= hi {
			break
		}

		var (
			window []byte
			text   string
			cursor *unitCursor
			ms     [][]int
		)
		if c.directBytes() {
			blo, bhi := c.byteRange(prelude, lo, hi)
			window = fc.data[blo:bhi]
			cursor = &unitCursor{base: lo}
			ms = re.FindAllSubmatchIndex(window, -1)
		} else {
			text, cursor = c.decodeWindow(fc.data, prelude, lo, hi)
			ms = re.FindAllStringSubmatchIndex(text, -1)
		}
		for _, m := range ms {
			if mc.cancelled() {
				wasCut = true
				break scan
			}
			s := cursor.unitAt(m[0])
			e := cursor.unitAt(m[1])
			if !lastWindow && e >= hi {
				// The match touches the window end; the overlapping
				// window sees its full extent.
				break
			}
			if k > 0 {
				if s == e {
					if s < prevEnd {
						continue
					}
				} else if e < prevEnd {
					continue
				}
			}
			if s < lastEnd {
				continue
			}

			found++
			if mc.creq.req.InvertMatch {
				break scan
			}
			recs = append(recs, rawRecord{unit: s, length: e - s})
			out.MatchCount++
			if sink != nil {
				if err := sink.copyUnits(lastCopied, s); err != nil {
					return found, err
				}
				var exp []byte
				if window != nil {
					exp = re.Expand(nil, []byte(repl), window, m)
				} else {
					exp = c.encodeText(string(re.ExpandString(nil, repl, text, m)))
				}
				if err := sink.write(exp); err != nil {
					return found, err
				}
				lastCopied = e
			}
			lastEnd = e
		}
		prevEnd = hi
		if lastWindow {
			break
		}
	}

	if sink != nil && !wasCut {
		if err := sink.copyUnits(lastCopied, total); err != nil {
			return found, err
		}
	}

	if len(recs) > 0 {
		mc.resolveRawRecords(fc, c, recs, out, total)
	}
	return found, nil
}

// resolveRawRecords converts unit offset records into line and column
// positions under the try's encoding assumption. Offsets and columns are in
// that assumption's code units.
func (mc *matchContext) resolveRawRecords(fc *fileContent, c *codec, recs []rawRecord, out *domain.SearchOutcome, total int64) {
	blockUnits := mc.blockBytes / int64(c.width)
	cancelled := mc.cancelled
	if total < 4*blockUnits {
		// Indexing a modest file is cheap enough to finish even during
		// cancellation, so positions stay exact.
		cancelled = nil
	}
	prelude := fc.prelude()
	index := buildLineIndex(fc.data, prelude, c, total, cancelled)
	for _, r := range recs {
		line := index.lineNumber(r.unit)
		start, end := index.lineBounds(line, fc.data, prelude, c)
		rec := domain.MatchRecord{Line: line, Column: r.unit - start + 1}
		lineLen := end - start
		if lineLen > 0 && lineLen < maxExcerptUnits {
			if !out.HasLineText(line) {
				out.SetLineText(line, c.excerpt(fc.data, prelude, start, end))
			}
			rec.Length = r.length
			if rest := end - r.unit; rec.Length > rest {
				rec.Length = rest
			}
			if rec.Length < 0 {
				rec.Length = 0
			}
		} else {
			out.SetLineText(line, "")
		}
		out.Matches = append(out.Matches, rec)
	}
}
