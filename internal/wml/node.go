package wml

import (
	"strconv"
	"strings"
)

// RootTag names the synthetic node that holds a document's top-level
// attributes and records.
const RootTag = "root"

// Kind is the declared kind of an attribute value.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// Attr is one key=value pair. Value always holds the text form.
type Attr struct {
	Key          string
	Value        string
	Kind         Kind
	Translatable bool
}

// Node is a tagged record with attributes and ordered children.
type Node struct {
	Tag      string
	Children []*Node

	attrs []Attr
	index map[string]int
}

// NewNode returns an empty node. Tag must be non-empty.
func NewNode(tag string) *Node {
	return &Node{Tag: tag}
}

// Set stores a string attribute, replacing any previous value for key.
func (n *Node) Set(key, value string) *Node {
	return n.SetAttr(Attr{Key: key, Value: value, Kind: KindString})
}

// SetInt stores an integer attribute.
func (n *Node) SetInt(key string, v int) *Node {
	return n.SetAttr(Attr{Key: key, Value: strconv.Itoa(v), Kind: KindInt})
}

// SetBool stores a boolean attribute using the yes/no spelling.
func (n *Node) SetBool(key string, v bool) *Node {
	text := "no"
	if v {
		text = "yes"
	}
	return n.SetAttr(Attr{Key: key, Value: text, Kind: KindBool})
}

// SetAttr stores a. A repeated key keeps its original position (last value wins).
func (n *Node) SetAttr(a Attr) *Node {
	if n.index == nil {
		n.index = make(map[string]int)
	}
	if i, ok := n.index[a.Key]; ok {
		n.attrs[i] = a
		return n
	}
	n.index[a.Key] = len(n.attrs)
	n.attrs = append(n.attrs, a)
	return n
}

// AddChild appends c and returns it.
func (n *Node) AddChild(c *Node) *Node {
	n.Children = append(n.Children, c)
	return c
}

// Attrs returns a copy of the attributes in insertion order.
func (n *Node) Attrs() []Attr {
	return append([]Attr(nil), n.attrs...)
}

// Len reports the number of attributes.
func (n *Node) Len() int { return len(n.attrs) }

func (n *Node) Has(key string) bool {
	_, ok := n.index[key]
	return ok
}

func (n *Node) Attr(key string) (Attr, bool) {
	i, ok := n.index[key]
	if !ok {
		return Attr{}, false
	}
	return n.attrs[i], true
}

// String returns the text of key regardless of its declared kind.
func (n *Node) String(key string) (string, error) {
	a, ok := n.Attr(key)
	if !ok {
		return "", &AttrError{Tag: n.Tag, Key: key, Kind: AttrMissing}
	}
	return a.Value, nil
}

// StringOr returns the text of key, or def when key is absent or blank.
func (n *Node) StringOr(key, def string) string {
	a, ok := n.Attr(key)
	if !ok || strings.TrimSpace(a.Value) == "" {
		return def
	}
	return a.Value
}

// Int converts key to an integer. Quoted text is accepted as long as it
// holds a decimal integer; boolean attributes are a kind mismatch.
func (n *Node) Int(key string) (int, error) {
	a, ok := n.Attr(key)
	if !ok {
		return 0, &AttrError{Tag: n.Tag, Key: key, Kind: AttrMissing}
	}
	if a.Kind == KindBool {
		return 0, &AttrError{Tag: n.Tag, Key: key, Kind: AttrWrongKind, Value: a.Value}
	}
	v, err := strconv.Atoi(strings.TrimSpace(a.Value))
	if err != nil {
		return 0, &AttrError{Tag: n.Tag, Key: key, Kind: AttrMalformed, Value: a.Value, Err: err}
	}
	return v, nil
}

// Bool converts key to a boolean (yes/no/true/false).
func (n *Node) Bool(key string) (bool, error) {
	a, ok := n.Attr(key)
	if !ok {
		return false, &AttrError{Tag: n.Tag, Key: key, Kind: AttrMissing}
	}
	if a.Kind == KindInt {
		return false, &AttrError{Tag: n.Tag, Key: key, Kind: AttrWrongKind, Value: a.Value}
	}
	v, ok := parseBool(strings.TrimSpace(a.Value))
	if !ok {
		return false, &AttrError{Tag: n.Tag, Key: key, Kind: AttrMalformed, Value: a.Value}
	}
	return v, nil
}

// Child returns the first direct child with tag.
func (n *Node) Child(tag string) *Node {
	for _, c := range n.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// LastChild returns the last direct child with tag.
func (n *Node) LastChild(tag string) *Node {
	for i := len(n.Children) - 1; i >= 0; i-- {
		if n.Children[i].Tag == tag {
			return n.Children[i]
		}
	}
	return nil
}

// ChildrenByTag returns the direct children with tag in document order.
func (n *Node) ChildrenByTag(tag string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// Equal reports whether a and b have the same tags, attributes and child order.
// Attribute order is ignored.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	type pair struct{ a, b *Node }
	stack := []pair{{a, b}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.a.Tag != p.b.Tag || len(p.a.attrs) != len(p.b.attrs) || len(p.a.Children) != len(p.b.Children) {
			return false
		}
		for _, at := range p.a.attrs {
			bt, ok := p.b.Attr(at.Key)
			if !ok || bt != at {
				return false
			}
		}
		for i := range p.a.Children {
			stack = append(stack, pair{p.a.Children[i], p.b.Children[i]})
		}
	}
	return true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "yes", "true":
		return true, true
	case "no", "false":
		return false, true
	default:
		return false, false
	}
}

func inferKind(raw string) Kind {
	if _, ok := parseBool(raw); ok {
		return KindBool
	}
	if raw == "" {
		return KindString
	}
	if _, err := strconv.Atoi(raw); err == nil {
		return KindInt
	}
	return KindString
}
