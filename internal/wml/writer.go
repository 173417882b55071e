package wml

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

// Marshal serializes n as WML text. A RootTag node is written without its
// own brackets: its attributes and children become top-level.
func Marshal(n *Node) []byte {
	var buf bytes.Buffer
	_ = Write(&buf, n)
	return buf.Bytes()
}

// Write serializes n to w. String values are quoted with doubled quotes,
// integer and boolean values are written bare so their kind survives a
// re-parse.
func Write(w io.Writer, n *Node) error {
	bw := bufio.NewWriter(w)
	type frame struct {
		node  *Node
		depth int
		close bool
	}
	var stack []frame
	if n.Tag == RootTag {
		writeAttrs(bw, n, 0)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: n.Children[i], depth: 0})
		}
	} else {
		stack = append(stack, frame{node: n, depth: 0})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		indent := strings.Repeat("\t", f.depth)
		if f.close {
			bw.WriteString(indent + "[/" + f.node.Tag + "]\n")
			continue
		}
		bw.WriteString(indent + "[" + f.node.Tag + "]\n")
		writeAttrs(bw, f.node, f.depth+1)
		stack = append(stack, frame{node: f.node, depth: f.depth, close: true})
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: f.node.Children[i], depth: f.depth + 1})
		}
	}
	return bw.Flush()
}

func writeAttrs(bw *bufio.Writer, n *Node, depth int) {
	indent := strings.Repeat("\t", depth)
	for _, a := range n.attrs {
		bw.WriteString(indent)
		bw.WriteString(a.Key)
		bw.WriteByte('=')
		if a.Translatable {
			bw.WriteString("_ ")
		}
		if a.Kind != KindString && !a.Translatable && inferKind(a.Value) == a.Kind {
			bw.WriteString(a.Value)
		} else {
			bw.WriteByte('"')
			bw.WriteString(strings.ReplaceAll(a.Value, `"`, `""`))
			bw.WriteByte('"')
		}
		bw.WriteByte('\n')
	}
}
