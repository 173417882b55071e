package mpclient

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/gzip"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
)

const (
	// DefaultMaxFrameBytes caps both the compressed payload and its
	// decoded text.
	DefaultMaxFrameBytes = 1 << 20
	frameHeaderLen       = 4
)

var frameLimits = wml.Limits{MaxDepth: 16, MaxNodes: 4096}

var (
	errFrameTooLarge = errors.New("frame exceeds size limit")
	errEmptyFrame    = errors.New("empty frame")
	errNoMessage     = errors.New("frame carries no message")
)

// encodeFrame renders n as a server frame: a big-endian payload length
// followed by the gzip-compressed, NUL-terminated WML text.
func encodeFrame(n *wml.Node) ([]byte, error) {
	var payload bytes.Buffer
	payload.Write(make([]byte, frameHeaderLen))
	zw := gzip.NewWriter(&payload)
	if err := wml.Write(zw, n); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if _, err := zw.Write([]byte{0}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	out := payload.Bytes()
	binary.BigEndian.PutUint32(out[:frameHeaderLen], uint32(len(out)-frameHeaderLen))
	return out, nil
}

// message wraps a single tag the way the server expects it.
func message(tag string, attrs ...[2]string) *wml.Node {
	root := wml.NewNode(wml.RootTag)
	m := root.AddChild(wml.NewNode(tag))
	for _, kv := range attrs {
		m.Set(kv[0], kv[1])
	}
	return root
}

// frameBuffer assembles frames from arbitrarily split reads.
type frameBuffer struct {
	buf []byte
	max int
}

func (b *frameBuffer) push(p []byte) { b.buf = append(b.buf, p...) }

// next pops one complete payload. ok is false until the whole frame has
// arrived.
func (b *frameBuffer) next() (payload []byte, ok bool, err error) {
	if len(b.buf) < frameHeaderLen {
		return nil, false, nil
	}
	size := binary.BigEndian.Uint32(b.buf[:frameHeaderLen])
	if size == 0 {
		return nil, false, errEmptyFrame
	}
	if uint64(size) > uint64(b.max) {
		return nil, false, fmt.Errorf("%w: %d > %d bytes", errFrameTooLarge, size, b.max)
	}
	end := frameHeaderLen + int(size)
	if len(b.buf) < end {
		return nil, false, nil
	}
	payload = make([]byte, size)
	copy(payload, b.buf[frameHeaderLen:end])
	n := copy(b.buf, b.buf[end:])
	b.buf = b.buf[:n]
	return payload, true, nil
}

// decodeFrame returns the first top-level node of a payload.
func decodeFrame(payload []byte, maxDecoded int) (*wml.Node, error) {
	c, err := wml.DecodeContainer(payload, int64(maxDecoded))
	if err != nil {
		return nil, err
	}
	text := bytes.TrimRight(c.Decoded, "\x00")
	root, err := wml.Build(wml.NewTokenizer(bytes.NewReader(text), wml.TokenizerOptions{}), frameLimits)
	if err != nil {
		return nil, err
	}
	if len(root.Children) == 0 {
		return nil, errNoMessage
	}
	return root.Children[0], nil
}
