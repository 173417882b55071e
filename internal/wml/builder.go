package wml

import (
	"errors"
	"fmt"
	"io"
)

var ErrInvalidLimits = errors.New("wml: depth and node limits must be positive")

// Limits caps the shape of a tree. Both fields are required.
type Limits struct {
	MaxDepth int
	MaxNodes int
}

func (l Limits) Validate() error {
	if l.MaxDepth <= 0 || l.MaxNodes <= 0 {
		return fmt.Errorf("%w: depth=%d nodes=%d", ErrInvalidLimits, l.MaxDepth, l.MaxNodes)
	}
	return nil
}

// Build consumes src into a synthetic RootTag node. Caps are enforced as
// each tag opens, so an oversized input fails before it is fully read.
func Build(src TokenSource, lim Limits) (*Node, error) {
	if err := lim.Validate(); err != nil {
		return nil, err
	}
	root := NewNode(RootTag)
	stack := make([]*Node, 1, 16)
	stack[0] = root
	count := 0

	for {
		tok, err := src.Next()
		if err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]
		switch tok.Type {
		case TokenOpenTag:
			if len(stack) > lim.MaxDepth {
				return nil, &StructureError{Kind: StructureTooDeep, Limit: lim.MaxDepth, Tag: tok.Name}
			}
			count++
			if count > lim.MaxNodes {
				return nil, &StructureError{Kind: StructureTooManyNodes, Limit: lim.MaxNodes, Tag: tok.Name}
			}
			n := &Node{Tag: tok.Name}
			top.Children = append(top.Children, n)
			stack = append(stack, n)
		case TokenCloseTag:
			if len(stack) == 1 {
				return nil, &StructureError{Kind: StructureUnmatchedClose, Tag: tok.Name}
			}
			if tok.Name != "" && tok.Name != top.Tag {
				return nil, &StructureError{Kind: StructureUnmatchedClose, Tag: tok.Name}
			}
			stack[len(stack)-1] = nil
			stack = stack[:len(stack)-1]
		case TokenAttribute:
			top.SetAttr(Attr{Key: tok.Name, Value: tok.Value, Kind: tok.Kind, Translatable: tok.Translatable})
		case TokenEOF:
			if len(stack) > 1 {
				return nil, &StructureError{Kind: StructureUnterminatedTree, Tag: top.Tag}
			}
			return root, nil
		}
	}
}

// ParseOptions bundles the caps for a full parse.
type ParseOptions struct {
	MaxDecodedBytes     int64
	Limits              Limits
	AllowRootAttributes bool
	MaxTokenBytes       int
}

// Parse runs container decoding, tokenizing and tree building over raw.
func Parse(raw []byte, opts ParseOptions) (*Node, error) {
	return ParseReader(bytesReader(raw), opts)
}

// ParseReader is Parse over a stream. The decoded text is never held in full.
func ParseReader(r io.Reader, opts ParseOptions) (*Node, error) {
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}
	rc, _, err := OpenContainer(r, opts.MaxDecodedBytes)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	tz := NewTokenizer(rc, TokenizerOptions{
		AllowRootAttributes: opts.AllowRootAttributes,
		MaxTokenBytes:       opts.MaxTokenBytes,
	})
	return Build(tz, opts.Limits)
}

// SliceSource replays a fixed token list. Used for feeding the builder
// directly.
type SliceSource struct {
	Tokens []Token
	pos    int
}

func (s *SliceSource) Next() (Token, error) {
	if s.pos >= len(s.Tokens) {
		return Token{Type: TokenEOF}, nil
	}
	tok := s.Tokens[s.pos]
	s.pos++
	return tok, nil
}
