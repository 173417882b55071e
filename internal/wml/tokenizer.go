package wml

import (
	"bufio"
	"bytes"
	"io"
)

// DefaultMaxTokenBytes bounds a single tag name, key or value.
const DefaultMaxTokenBytes = 1 << 20

type TokenType uint8

const (
	TokenEOF TokenType = iota
	TokenOpenTag
	TokenCloseTag
	TokenAttribute
)

func (t TokenType) String() string {
	switch t {
	case TokenOpenTag:
		return "open"
	case TokenCloseTag:
		return "close"
	case TokenAttribute:
		return "attribute"
	default:
		return "eof"
	}
}

// Token is one lexical item. Name holds the tag name or attribute key.
type Token struct {
	Type         TokenType
	Name         string
	Value        string
	Kind         Kind
	Translatable bool
	Line         int
	Col          int
}

// TokenSource yields tokens until TokenEOF or an error.
type TokenSource interface {
	Next() (Token, error)
}

type TokenizerOptions struct {
	// AllowRootAttributes accepts key=value lines before any tag is open.
	// Save files carry top-level attributes, protocol frames do not.
	AllowRootAttributes bool
	MaxTokenBytes       int
}

// Tokenizer is a single forward pass over WML text. Memory is bounded by the
// longest token plus the stack of open tag names.
type Tokenizer struct {
	r    *bufio.Reader
	opts TokenizerOptions

	line int
	col  int
	open []string
	buf  []byte

	ioErr error
	err   error
	done  bool
}

func NewTokenizer(r io.Reader, opts TokenizerOptions) *Tokenizer {
	if opts.MaxTokenBytes <= 0 {
		opts.MaxTokenBytes = DefaultMaxTokenBytes
	}
	return &Tokenizer{
		r:    bufio.NewReaderSize(r, decodeChunkSize),
		opts: opts,
		line: 1,
		col:  1,
	}
}

func (t *Tokenizer) Next() (Token, error) {
	if t.err != nil {
		return Token{}, t.err
	}
	if t.done {
		return Token{Type: TokenEOF, Line: t.line, Col: t.col}, nil
	}
	tok, err := t.scan()
	if err != nil {
		t.err = err
		return Token{}, err
	}
	if tok.Type == TokenEOF {
		t.done = true
	}
	return tok, nil
}

func (t *Tokenizer) scan() (Token, error) {
	for {
		t.skipBlanks()
		b, ok := t.peek()
		if !ok {
			if t.ioErr != nil {
				return Token{}, t.ioErr
			}
			if len(t.open) > 0 {
				return Token{}, t.syntax(SyntaxUnterminatedTag, t.line, t.col, "["+t.open[len(t.open)-1]+"] never closed")
			}
			return Token{Type: TokenEOF, Line: t.line, Col: t.col}, nil
		}
		switch {
		case b == '\n':
			t.read()
		case b == '#':
			t.skipLine()
		case b == '[':
			return t.scanTag()
		case isIdentByte(b):
			return t.scanAttribute()
		default:
			return Token{}, t.syntax(SyntaxUnexpectedChar, t.line, t.col, quoteByte(b))
		}
	}
}

func (t *Tokenizer) scanTag() (Token, error) {
	line, col := t.line, t.col
	t.read() // '['
	closing := false
	if b, ok := t.peek(); ok && b == '/' {
		closing = true
		t.read()
	}
	t.buf = t.buf[:0]
	for {
		b, ok := t.peek()
		if !ok || !isIdentByte(b) {
			break
		}
		t.read()
		if err := t.grow(b, line, col); err != nil {
			return Token{}, err
		}
	}
	b, ok := t.peek()
	if !ok {
		if t.ioErr != nil {
			return Token{}, t.ioErr
		}
		return Token{}, t.syntax(SyntaxInvalidTag, line, col, "tag not terminated by ']'")
	}
	if b != ']' {
		detail := "unexpected " + quoteByte(b) + " in tag name"
		if b == '+' {
			detail = "amendment tags are not supported"
		}
		return Token{}, t.syntax(SyntaxInvalidTag, line, col, detail)
	}
	t.read()
	if len(t.buf) == 0 {
		return Token{}, t.syntax(SyntaxInvalidTag, line, col, "empty tag name")
	}
	name := string(t.buf)

	if !closing {
		t.open = append(t.open, name)
		return Token{Type: TokenOpenTag, Name: name, Line: line, Col: col}, nil
	}
	if len(t.open) == 0 {
		return Token{}, t.syntax(SyntaxUnmatchedClose, line, col, "[/"+name+"]")
	}
	if top := t.open[len(t.open)-1]; top != name {
		return Token{}, t.syntax(SyntaxMismatchedClose, line, col, "expected [/"+top+"], found [/"+name+"]")
	}
	t.open = t.open[:len(t.open)-1]
	return Token{Type: TokenCloseTag, Name: name, Line: line, Col: col}, nil
}

func (t *Tokenizer) scanAttribute() (Token, error) {
	line, col := t.line, t.col
	t.buf = t.buf[:0]
	for {
		b, ok := t.peek()
		if !ok || !isIdentByte(b) {
			break
		}
		t.read()
		if err := t.grow(b, line, col); err != nil {
			return Token{}, err
		}
	}
	key := string(t.buf)
	t.skipBlanks()
	if b, ok := t.peek(); !ok || b != '=' {
		if t.ioErr != nil {
			return Token{}, t.ioErr
		}
		return Token{}, t.syntax(SyntaxInvalidKey, line, col, "expected '=' after "+key)
	}
	t.read()
	if len(t.open) == 0 && !t.opts.AllowRootAttributes {
		return Token{}, t.syntax(SyntaxAttributeOutsideTag, line, col, key)
	}

	tok := Token{Type: TokenAttribute, Name: key, Line: line, Col: col}
	t.buf = t.buf[:0]
	quoted := false
	for {
		t.skipBlanks()
		b, ok := t.peek()
		if !ok || b == '\n' || (b == '#' && len(t.buf) == 0 && !quoted) {
			if t.ioErr != nil {
				return Token{}, t.ioErr
			}
			if ok && b == '#' {
				t.skipLine()
			}
			break
		}

		if b == '_' {
			if p, _ := t.r.Peek(2); len(p) == 2 && (p[1] == ' ' || p[1] == '\t' || p[1] == '"') {
				t.read()
				t.skipBlanks()
				if nb, ok := t.peek(); ok && nb == '"' {
					tok.Translatable = true
					b = nb
				} else {
					// a plain value that happens to start with "_ "
					if err := t.grow('_', line, col); err != nil {
						return Token{}, err
					}
					if err := t.grow(' ', line, col); err != nil {
						return Token{}, err
					}
					if err := t.scanBare(line, col); err != nil {
						return Token{}, err
					}
					break
				}
			}
		}

		var err error
		switch {
		case b == '"':
			quoted = true
			err = t.scanQuoted()
		case b == '<' && t.peekRaw():
			quoted = true
			err = t.scanRaw()
		default:
			if err := t.scanBare(line, col); err != nil {
				return Token{}, err
			}
			goto done
		}
		if err != nil {
			return Token{}, err
		}

		// after a quoted piece: '+' continues, anything else ends the value
		t.skipBlanks()
		nb, ok := t.peek()
		switch {
		case !ok:
			if t.ioErr != nil {
				return Token{}, t.ioErr
			}
			goto done
		case nb == '\n':
			t.read()
			goto done
		case nb == '#':
			t.skipLine()
			goto done
		case nb == '+':
			t.read()
			t.skipContinuation()
			continue
		default:
			return Token{}, t.syntax(SyntaxUnexpectedChar, t.line, t.col, quoteByte(nb)+" after quoted value")
		}
	}
done:
	tok.Value = string(t.buf)
	if quoted {
		tok.Kind = KindString
	} else {
		tok.Kind = inferKind(tok.Value)
	}
	return tok, nil
}

// scanQuoted reads "..." with doubled quotes as escapes. Newlines are kept.
func (t *Tokenizer) scanQuoted() error {
	line, col := t.line, t.col
	t.read() // opening quote
	for {
		b, ok := t.read()
		if !ok {
			if t.ioErr != nil {
				return t.ioErr
			}
			return t.syntax(SyntaxUnterminatedQuote, line, col, "")
		}
		if b == '"' {
			if nb, ok := t.peek(); ok && nb == '"' {
				t.read()
			} else {
				return nil
			}
		}
		if err := t.grow(b, line, col); err != nil {
			return err
		}
	}
}

// scanRaw reads <<...>> verbatim.
func (t *Tokenizer) scanRaw() error {
	line, col := t.line, t.col
	t.read()
	t.read()
	for {
		b, ok := t.read()
		if !ok {
			if t.ioErr != nil {
				return t.ioErr
			}
			return t.syntax(SyntaxUnterminatedQuote, line, col, "raw string")
		}
		if b == '>' {
			if p, _ := t.r.Peek(1); len(p) == 1 && p[0] == '>' {
				t.read()
				return nil
			}
		}
		if err := t.grow(b, line, col); err != nil {
			return err
		}
	}
}

// scanBare reads an unquoted value to end of line. A '#' preceded by blank
// space starts a comment.
func (t *Tokenizer) scanBare(line, col int) error {
	for {
		b, ok := t.peek()
		if !ok {
			if t.ioErr != nil {
				return t.ioErr
			}
			break
		}
		if b == '\n' {
			t.read()
			break
		}
		if b == '#' && (len(t.buf) == 0 || t.buf[len(t.buf)-1] == ' ' || t.buf[len(t.buf)-1] == '\t') {
			t.skipLine()
			break
		}
		t.read()
		if err := t.grow(b, line, col); err != nil {
			return err
		}
	}
	t.buf = bytes.TrimRight(t.buf, " \t")
	return nil
}

func (t *Tokenizer) skipContinuation() {
	for {
		b, ok := t.peek()
		if !ok {
			return
		}
		switch b {
		case ' ', '\t', '\n':
			t.read()
		case '#':
			t.skipLine()
		default:
			return
		}
	}
}

func (t *Tokenizer) peekRaw() bool {
	p, _ := t.r.Peek(2)
	return len(p) == 2 && p[0] == '<' && p[1] == '<'
}

func (t *Tokenizer) grow(b byte, line, col int) error {
	if len(t.buf) >= t.opts.MaxTokenBytes {
		return t.syntax(SyntaxTokenTooLong, line, col, "")
	}
	t.buf = append(t.buf, b)
	return nil
}

func (t *Tokenizer) skipBlanks() {
	for {
		b, ok := t.peek()
		if !ok || (b != ' ' && b != '\t') {
			return
		}
		t.read()
	}
}

func (t *Tokenizer) skipLine() {
	for {
		b, ok := t.read()
		if !ok || b == '\n' {
			return
		}
	}
}

// peek returns the next byte with CR normalized to LF.
func (t *Tokenizer) peek() (byte, bool) {
	p, err := t.r.Peek(1)
	if err != nil {
		if err != io.EOF && t.ioErr == nil {
			t.ioErr = err
		}
		return 0, false
	}
	if p[0] == '\r' {
		return '\n', true
	}
	return p[0], true
}

// read consumes one byte, folding CRLF and CR into LF.
func (t *Tokenizer) read() (byte, bool) {
	b, err := t.r.ReadByte()
	if err != nil {
		if err != io.EOF && t.ioErr == nil {
			t.ioErr = err
		}
		return 0, false
	}
	if b == '\r' {
		if p, err := t.r.Peek(1); err == nil && p[0] == '\n' {
			_, _ = t.r.ReadByte()
		}
		b = '\n'
	}
	if b == '\n' {
		t.line++
		t.col = 1
	} else {
		t.col++
	}
	return b, true
}

func (t *Tokenizer) syntax(kind SyntaxErrorKind, line, col int, detail string) error {
	return &SyntaxError{Line: line, Col: col, Kind: kind, Detail: detail}
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func quoteByte(b byte) string {
	if b < 0x20 || b >= 0x7f {
		const hex = "0123456789abcdef"
		return "0x" + string([]byte{hex[b>>4], hex[b&0x0f]})
	}
	return "'" + string(b) + "'"
}
