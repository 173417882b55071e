package wml

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
)

// Format is the sniffed envelope of a document.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatPlain   Format = "plain"
	FormatGzip    Format = "gzip"
	FormatBzip2   Format = "bzip2"
)

const decodeChunkSize = 32 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Container is the per-call envelope around a document. It is never retained
// past the parse that created it.
type Container struct {
	Format     Format
	MaxDecoded int64
	Raw        []byte
	Decoded    []byte
}

// Sniff inspects the leading bytes of a document.
func Sniff(prefix []byte) Format {
	switch {
	case len(prefix) >= 2 && prefix[0] == 0x1f && prefix[1] == 0x8b:
		return FormatGzip
	case len(prefix) >= 3 && prefix[0] == 'B' && prefix[1] == 'Z' && prefix[2] == 'h':
		return FormatBzip2
	}
	p := bytes.TrimPrefix(prefix, utf8BOM)
	if len(p) == 0 {
		return FormatUnknown
	}
	switch c := p[0]; {
	case c == '[' || c == '#' || c == ' ' || c == '\t' || c == '\r' || c == '\n':
		return FormatPlain
	case isIdentByte(c):
		return FormatPlain
	}
	return FormatUnknown
}

// DecodeContainer strips the compression envelope from raw. The decoded size
// is checked on every chunk, so an input that inflates past maxDecoded fails
// without being materialized.
func DecodeContainer(raw []byte, maxDecoded int64) (*Container, error) {
	rc, format, err := OpenContainer(bytes.NewReader(raw), maxDecoded)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	c := &Container{Format: format, MaxDecoded: maxDecoded, Raw: raw}
	if format == FormatPlain {
		c.Decoded = bytes.TrimPrefix(raw, utf8BOM)
		if int64(len(c.Decoded)) > maxDecoded {
			return nil, &ContainerError{Kind: ContainerSizeExceeded, Format: format, Limit: maxDecoded}
		}
		return c, nil
	}

	var buf bytes.Buffer
	chunk := make([]byte, decodeChunkSize)
	for {
		n, rerr := rc.Read(chunk)
		buf.Write(chunk[:n])
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, rerr
		}
	}
	c.Decoded = buf.Bytes()
	return c, nil
}

// OpenContainer sniffs r and returns a reader over the decoded text. Reads
// past maxDecoded bytes fail with a size-limit-exceeded ContainerError.
func OpenContainer(r io.Reader, maxDecoded int64) (io.ReadCloser, Format, error) {
	if maxDecoded <= 0 {
		return nil, FormatUnknown, &ContainerError{Kind: ContainerSizeExceeded, Format: FormatUnknown, Limit: maxDecoded}
	}
	br := bufio.NewReaderSize(r, decodeChunkSize)
	prefix, _ := br.Peek(len(utf8BOM) + 1)
	format := Sniff(prefix)

	switch format {
	case FormatPlain:
		if bytes.HasPrefix(prefix, utf8BOM) {
			_, _ = br.Discard(len(utf8BOM))
		}
		return &limitReader{r: br, format: format, limit: maxDecoded}, format, nil
	case FormatGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, format, &ContainerError{Kind: ContainerCorrupt, Format: format, Err: err}
		}
		return &limitReader{r: zr, closer: zr, format: format, limit: maxDecoded}, format, nil
	case FormatBzip2:
		zr, err := bzip2.NewReader(br, nil)
		if err != nil {
			return nil, format, &ContainerError{Kind: ContainerCorrupt, Format: format, Err: err}
		}
		return &limitReader{r: zr, closer: zr, format: format, limit: maxDecoded}, format, nil
	default:
		return nil, FormatUnknown, &ContainerError{Kind: ContainerUnsupported, Format: FormatUnknown}
	}
}

// limitReader counts decoded bytes and converts decompressor failures into
// ContainerErrors.
type limitReader struct {
	r      io.Reader
	closer io.Closer
	format Format
	limit  int64
	n      int64
	err    error
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	// one byte of headroom detects the overflow without reading further
	if rem := l.limit - l.n + 1; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.limit {
		l.err = &ContainerError{Kind: ContainerSizeExceeded, Format: l.format, Limit: l.limit}
		return 0, l.err
	}
	if err != nil && err != io.EOF {
		var cerr *ContainerError
		if !errors.As(err, &cerr) {
			err = &ContainerError{Kind: ContainerCorrupt, Format: l.format, Err: err}
		}
		l.err = err
	}
	return n, err
}

func (l *limitReader) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
