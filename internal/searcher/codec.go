package searcher

import (
	"encoding/binary"
	"regexp"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/sha1n/greplace/internal/domain"
)

// codec presents raw file bytes under one encoding assumption. It decodes
// code-unit windows to text the regexp engine can search, maps text offsets
// back to absolute code-unit offsets, and encodes replacement text to source
// bytes. A code unit is one byte for narrow assumptions and two bytes for
// wide ones.
type codec struct {
	enc   domain.Encoding
	width int64
	phase int64
	order binary.ByteOrder

	wideText        bool
	transcodeNeedle bool
}

func newCodec(try encodingTry) *codec {
	c := &codec{
		enc:             try.enc,
		width:           1,
		wideText:        try.wideText,
		transcodeNeedle: try.transcodeNeedle,
	}
	switch try.enc {
	case domain.EncodingUTF16LE:
		c.order = binary.LittleEndian
	case domain.EncodingUTF16BE:
		c.order = binary.BigEndian
	}
	if try.wideText {
		c.width = 2
		if try.misaligned {
			c.phase = 1
		}
	}
	return c
}

// units returns the number of whole code units in a source of srcLen bytes,
// after the BOM prelude and alignment phase.
func (c *codec) units(srcLen, prelude int64) int64 {
	n := srcLen - prelude - c.phase
	if n < 0 {
		return 0
	}
	return n / c.width
}

// byteRange converts a code-unit range to a source byte range.
func (c *codec) byteRange(prelude, lo, hi int64) (int64, int64) {
	base := prelude + c.phase
	return base + lo*c.width, base + hi*c.width
}

// directBytes reports whether windows can be handed to the regexp engine
// without decoding, which holds for the UTF-8 assumption.
func (c *codec) directBytes() bool {
	return c.enc == domain.EncodingUTF8 && !c.transcodeNeedle
}

// decodeWindow decodes the code-unit window [lo,hi) and returns the text
// together with a cursor mapping text byte offsets to absolute code units.
func (c *codec) decodeWindow(src []byte, prelude, lo, hi int64) (string, *unitCursor) {
	blo, bhi := c.byteRange(prelude, lo, hi)
	window := src[blo:bhi]

	var text string
	perRune := oneUnitPerRune
	switch {
	case c.wideText:
		text = decodeUTF16Bytes(window, c.order)
		perRune = wideUnitsPerRune
	case c.enc == domain.EncodingANSI:
		text = decodeCP1252(window)
	case c.transcodeNeedle:
		text = latin1String(window)
	default:
		// UTF-8 bytes map one to one; the cursor degenerates to identity.
		return string(window), &unitCursor{base: lo}
	}
	return text, &unitCursor{text: text, base: lo, perRune: perRune}
}

// pattern adapts the run's pattern to this codec's text space. For the
// transcoded-needle assumption the literal needle and replacement are
// re-expressed as UTF-16 bytes; the whole-words wrap does not carry into
// byte space and is dropped there.
func (c *codec) pattern(creq *compiledRequest, filePath string) (*regexp.Regexp, string, error) {
	if !c.transcodeNeedle {
		return creq.regexFor(filePath)
	}
	needle := latin1String(encodeUTF16Bytes(creq.req.Pattern, c.order))
	re, err := regexp.Compile(regexFlags(creq.req) + regexp.QuoteMeta(needle))
	if err != nil {
		return nil, "", err
	}
	repl := escapeReplacement(latin1String(encodeUTF16Bytes(creq.req.Replacement, c.order)))
	return re, repl, nil
}

// encodeText converts expanded replacement text back to source bytes.
func (c *codec) encodeText(s string) []byte {
	switch {
	case c.wideText:
		return encodeUTF16Bytes(s, c.order)
	case c.transcodeNeedle:
		return latin1Bytes(s)
	case c.enc == domain.EncodingANSI:
		return encodeCP1252(s)
	default:
		return []byte(s)
	}
}

// excerpt decodes a line for display. Unlike decodeWindow it always honors
// the assumed encoding, so byte-space assumptions over wide content still
// produce readable text.
func (c *codec) excerpt(src []byte, prelude, lo, hi int64) string {
	blo, bhi := c.byteRange(prelude, lo, hi)
	window := src[blo:bhi]
	switch c.enc {
	case domain.EncodingUTF16LE, domain.EncodingUTF16BE:
		return decodeUTF16Bytes(window[:len(window)&^1], c.order)
	case domain.EncodingANSI:
		return decodeCP1252(window)
	default:
		return string(window)
	}
}

// unit returns the code unit at index u, for line scanning.
func (c *codec) unit(src []byte, prelude, u int64) uint16 {
	if c.width == 2 {
		return c.order.Uint16(src[prelude+c.phase+2*u:])
	}
	return uint16(src[prelude+u])
}

// unitCursor translates byte offsets inside decoded window text to absolute
// code-unit offsets. Offsets must be queried in non-decreasing order, which
// match lists guarantee. A nil perRune means text bytes and code units are
// the same thing.
type unitCursor struct {
	text    string
	base    int64
	perRune func(r rune) int64

	textOff int
	unitOff int64
}

func (m *unitCursor) unitAt(textOff int) int64 {
	if m.perRune == nil {
		return m.base + int64(textOff)
	}
	for m.textOff < textOff {
		r, sz := utf8.DecodeRuneInString(m.text[m.textOff:])
		m.textOff += sz
		m.unitOff += m.perRune(r)
	}
	return m.base + m.unitOff
}

func oneUnitPerRune(rune) int64 { return 1 }

func wideUnitsPerRune(r rune) int64 {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

func encodeUTF16Bytes(s string, order binary.ByteOrder) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, len(units)*2)
	for i, u := range units {
		order.PutUint16(b[i*2:], u)
	}
	return b
}

func decodeUTF16Bytes(b []byte, order binary.ByteOrder) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = order.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}

func decodeCP1252(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = charmap.Windows1252.DecodeByte(c)
	}
	return string(rs)
}

func encodeCP1252(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// latin1String widens raw bytes so each byte becomes one rune, letting the
// regexp engine match arbitrary byte values.
func latin1String(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

// latin1Bytes narrows widened text back to raw bytes.
func latin1Bytes(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}
