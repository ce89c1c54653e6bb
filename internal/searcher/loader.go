package searcher

import (
	"fmt"
	"os"

	"github.com/blevesearch/mmap-go"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sha1n/greplace/internal/domain"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// encodingProbeSize caps how many leading bytes feed encoding and MIME
// detection when a file is too large to decode in memory.
const encodingProbeSize = 64 << 10

// fileContent is one file's bytes plus everything detection learned about
// them. Small text files carry a decoded string and are matched rune-wise;
// everything else stays raw and is matched through a codec view.
type fileContent struct {
	path    string
	size    int64
	data    []byte
	mapped  mmap.MMap
	enc     domain.Encoding
	hasBOM  bool
	mime    string
	text    string
	textual bool
	oddTail bool
}

// prelude returns how many leading bytes the BOM occupies.
func (fc *fileContent) prelude() int64 {
	if !fc.hasBOM {
		return 0
	}
	return int64(len(bomFor(fc.enc)))
}

// body returns the content bytes after the BOM.
func (fc *fileContent) body() []byte {
	return fc.data[fc.prelude():]
}

func (fc *fileContent) close() error {
	if fc.mapped != nil {
		m := fc.mapped
		fc.mapped = nil
		fc.data = nil
		return m.Unmap()
	}
	fc.data = nil
	return nil
}

// loader decides per file between decoding into memory and mapping raw
// bytes, and runs encoding detection either way.
type loader struct {
	textLoadLimit   int64
	nullBytesPerMiB int
	forceUTF8       bool
	forceBinary     bool
}

func (l *loader) load(path string, size int64) (*fileContent, error) {
	fc := &fileContent{path: path, size: size, enc: domain.EncodingAuto}

	if l.forceBinary || size >= l.textLoadLimit {
		if err := l.loadRaw(fc); err != nil {
			return nil, err
		}
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fc.data = data
	fc.size = int64(len(data))
	fc.enc, fc.hasBOM = detectEncoding(data, fc.size, l.nullBytesPerMiB, l.forceUTF8)
	fc.mime = mimetype.Detect(data).String()
	if fc.enc == domain.EncodingBinary {
		return fc, nil
	}
	if err := fc.decode(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	fc.textual = true
	return fc, nil
}

// loadRaw maps the file read-only. Zero-length files cannot be mapped and
// get an empty heap slice instead.
func (l *loader) loadRaw(fc *fileContent) error {
	f, err := os.Open(fc.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", fc.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", fc.path, err)
	}
	fc.size = info.Size()
	if fc.size == 0 {
		fc.data = []byte{}
	} else {
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			return fmt.Errorf("map %s: %w", fc.path, err)
		}
		fc.mapped = m
		fc.data = m
	}

	probe := fc.data
	if int64(len(probe)) > encodingProbeSize {
		probe = probe[:encodingProbeSize]
	}
	fc.mime = mimetype.Detect(probe).String()
	if l.forceBinary {
		fc.enc = domain.EncodingBinary
		return nil
	}
	fc.enc, fc.hasBOM = detectEncoding(probe, int64(len(probe)), l.nullBytesPerMiB, l.forceUTF8)
	return nil
}

// decode converts the raw bytes into a Go string according to the detected
// encoding. Wide content with an odd trailing byte decodes without it; the
// stray byte is carried through replacement untouched.
func (fc *fileContent) decode() error {
	body := fc.body()
	switch fc.enc {
	case domain.EncodingUTF16LE, domain.EncodingUTF16BE:
		if len(body)%2 == 1 {
			fc.oddTail = true
			body = body[:len(body)-1]
		}
		endian := unicode.LittleEndian
		if fc.enc == domain.EncodingUTF16BE {
			endian = unicode.BigEndian
		}
		dec := unicode.UTF16(endian, unicode.IgnoreBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, body)
		if err != nil {
			return err
		}
		fc.text = string(out)
	case domain.EncodingANSI:
		out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), body)
		if err != nil {
			return err
		}
		fc.text = string(out)
	default:
		fc.text = string(body)
	}
	return nil
}
