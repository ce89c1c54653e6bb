package searcher

import (
	"sort"
	"unicode/utf8"
)

// lineIndex records the starting code unit of every line in raw content.
// LF, CR and CRLF each terminate a line. The index is built once after
// matching; a cancelled build leaves a consistent prefix so positions keep
// giving nearby hints.
type lineIndex struct {
	starts []int64
	total  int64
}

// cancelCheckStride is how many code units the index scanner advances
// between cancellation polls.
const cancelCheckStride = 1 << 20

func buildLineIndex(src []byte, prelude int64, c *codec, total int64, cancelled func() bool) *lineIndex {
	idx := &lineIndex{starts: make([]int64, 1, 64), total: total}
	for u := int64(0); u < total; u++ {
		if cancelled != nil && u%cancelCheckStride == 0 && cancelled() {
			break
		}
		switch c.unit(src, prelude, u) {
		case '\n':
			idx.starts = append(idx.starts, u+1)
		case '\r':
			if u+1 < total && c.unit(src, prelude, u+1) == '\n' {
				u++
			}
			idx.starts = append(idx.starts, u+1)
		}
	}
	return idx
}

// lineNumber returns the 1-based line containing the given unit offset.
func (li *lineIndex) lineNumber(u int64) int64 {
	j := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > u })
	return int64(j)
}

// lineBounds returns the content range of a line, excluding its terminator.
func (li *lineIndex) lineBounds(line int64, src []byte, prelude int64, c *codec) (start, end int64) {
	start = li.starts[line-1]
	if int(line) < len(li.starts) {
		end = li.starts[line]
		if end > start && c.unit(src, prelude, end-1) == '\n' {
			end--
			if end > start && c.unit(src, prelude, end-1) == '\r' {
				end--
			}
		} else if end > start && c.unit(src, prelude, end-1) == '\r' {
			end--
		}
		return start, end
	}
	return start, li.total
}

// textLineIndex indexes decoded text. Line starts are tracked as both byte
// offsets into the text and rune offsets, so columns and lengths come out
// in runes while the regexp engine keeps reporting bytes.
type textLineIndex struct {
	byteStarts []int
	runeStarts []int64
	text       string
}

func buildTextLineIndex(text string) *textLineIndex {
	idx := &textLineIndex{
		byteStarts: make([]int, 1, 64),
		runeStarts: make([]int64, 1, 64),
		text:       text,
	}
	var runeOff int64
	for i := 0; i < len(text); {
		switch text[i] {
		case '\n':
			i++
			runeOff++
		case '\r':
			i++
			runeOff++
			if i < len(text) && text[i] == '\n' {
				i++
				runeOff++
			}
		default:
			_, sz := utf8.DecodeRuneInString(text[i:])
			i += sz
			runeOff++
			continue
		}
		idx.byteStarts = append(idx.byteStarts, i)
		idx.runeStarts = append(idx.runeStarts, runeOff)
	}
	return idx
}

// lineNumber returns the 1-based line containing the given text byte offset.
func (ti *textLineIndex) lineNumber(byteOff int) int64 {
	j := sort.Search(len(ti.byteStarts), func(i int) bool { return ti.byteStarts[i] > byteOff })
	return int64(j)
}

// lineContent returns a line's text without its terminator.
func (ti *textLineIndex) lineContent(line int64) string {
	start := ti.byteStarts[line-1]
	end := len(ti.text)
	if int(line) < len(ti.byteStarts) {
		end = ti.byteStarts[line]
		if end > start && ti.text[end-1] == '\n' {
			end--
		}
		if end > start && ti.text[end-1] == '\r' {
			end--
		}
	}
	return ti.text[start:end]
}

// runeColumn returns the 1-based rune column of an absolute rune offset
// within the given line.
func (ti *textLineIndex) runeColumn(line, runeOff int64) int64 {
	return runeOff - ti.runeStarts[line-1] + 1
}
