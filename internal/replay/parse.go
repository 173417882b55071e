package replay

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
)

// ParseBytes decodes, parses and validates one replay. Errors are one of
// *wml.ContainerError, *wml.SyntaxError, *wml.StructureError or
// *ValidationError, wrapped with context.
func ParseBytes(raw []byte, p Policy) (MatchFact, error) {
	return ParseReader(bytes.NewReader(raw), p)
}

func ParseReader(r io.Reader, p Policy) (MatchFact, error) {
	if err := p.Validate(); err != nil {
		return MatchFact{}, err
	}
	root, err := wml.ParseReader(r, p.parseOptions())
	if err != nil {
		return MatchFact{}, fmt.Errorf("parse replay: %w", err)
	}
	return Validate(root, p)
}

func ParseFile(path string, p Policy) (MatchFact, error) {
	f, err := os.Open(path)
	if err != nil {
		return MatchFact{}, fmt.Errorf("open replay: %w", err)
	}
	defer f.Close()
	return ParseReader(f, p)
}
