package wml

import "fmt"

// ContainerErrorKind classifies envelope failures.
type ContainerErrorKind string

const (
	ContainerUnsupported  ContainerErrorKind = "unsupported-format"
	ContainerCorrupt      ContainerErrorKind = "corrupt-stream"
	ContainerSizeExceeded ContainerErrorKind = "size-limit-exceeded"
)

type ContainerError struct {
	Kind   ContainerErrorKind
	Format Format
	Limit  int64
	Err    error
}

func (e *ContainerError) Error() string {
	switch e.Kind {
	case ContainerSizeExceeded:
		return fmt.Sprintf("container %s: decoded size exceeds %d bytes", e.Format, e.Limit)
	case ContainerCorrupt:
		return fmt.Sprintf("container %s: corrupt stream: %v", e.Format, e.Err)
	default:
		return "container: unsupported format"
	}
}

func (e *ContainerError) Unwrap() error { return e.Err }

// SyntaxErrorKind classifies tokenizer failures.
type SyntaxErrorKind string

const (
	SyntaxUnterminatedQuote   SyntaxErrorKind = "unterminated-quote"
	SyntaxUnterminatedTag     SyntaxErrorKind = "unterminated-tag"
	SyntaxAttributeOutsideTag SyntaxErrorKind = "attribute-outside-tag"
	SyntaxUnmatchedClose      SyntaxErrorKind = "unmatched-close"
	SyntaxMismatchedClose     SyntaxErrorKind = "mismatched-close"
	SyntaxInvalidTag          SyntaxErrorKind = "invalid-tag"
	SyntaxInvalidKey          SyntaxErrorKind = "invalid-key"
	SyntaxUnexpectedChar      SyntaxErrorKind = "unexpected-character"
	SyntaxTokenTooLong        SyntaxErrorKind = "token-too-long"
)

type SyntaxError struct {
	Line   int
	Col    int
	Kind   SyntaxErrorKind
	Detail string
}

func (e *SyntaxError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("wml syntax error at %d:%d: %s (%s)", e.Line, e.Col, e.Kind, e.Detail)
	}
	return fmt.Sprintf("wml syntax error at %d:%d: %s", e.Line, e.Col, e.Kind)
}

// StructureErrorKind classifies tree-shape failures.
type StructureErrorKind string

const (
	StructureTooDeep          StructureErrorKind = "too-deep"
	StructureTooManyNodes     StructureErrorKind = "too-many-nodes"
	StructureUnmatchedClose   StructureErrorKind = "unmatched-close"
	StructureUnterminatedTree StructureErrorKind = "unterminated-tree"
)

type StructureError struct {
	Kind  StructureErrorKind
	Limit int
	Tag   string
}

func (e *StructureError) Error() string {
	switch e.Kind {
	case StructureTooDeep:
		return fmt.Sprintf("wml structure: nesting deeper than %d at [%s]", e.Limit, e.Tag)
	case StructureTooManyNodes:
		return fmt.Sprintf("wml structure: more than %d nodes", e.Limit)
	default:
		if e.Tag != "" {
			return fmt.Sprintf("wml structure: %s [%s]", e.Kind, e.Tag)
		}
		return "wml structure: " + string(e.Kind)
	}
}

// AttrErrorKind classifies typed attribute access failures.
type AttrErrorKind string

const (
	AttrMissing   AttrErrorKind = "missing"
	AttrWrongKind AttrErrorKind = "wrong-kind"
	AttrMalformed AttrErrorKind = "malformed"
)

type AttrError struct {
	Tag   string
	Key   string
	Kind  AttrErrorKind
	Value string
	Err   error
}

func (e *AttrError) Error() string {
	if e.Kind == AttrMissing {
		return fmt.Sprintf("[%s] %s: missing attribute", e.Tag, e.Key)
	}
	return fmt.Sprintf("[%s] %s=%q: %s", e.Tag, e.Key, e.Value, e.Kind)
}

func (e *AttrError) Unwrap() error { return e.Err }
