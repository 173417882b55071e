package replay

import (
	"fmt"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
)

const (
	DefaultMinTurns        = 3
	DefaultMaxDecodedBytes = 64 << 20
	DefaultMaxDepth        = 64
	DefaultMaxNodes        = 500000
)

// Policy is passed into every parse. The caps are mandatory.
type Policy struct {
	MinTurns        int
	MaxDecodedBytes int64
	MaxDepth        int
	MaxNodes        int
	RequireRanked   bool
	RejectDesync    bool

	// Vocabulary overrides the tag names; nil means DefaultVocabulary.
	Vocabulary *Vocabulary
}

func DefaultPolicy() Policy {
	return Policy{
		MinTurns:        DefaultMinTurns,
		MaxDecodedBytes: DefaultMaxDecodedBytes,
		MaxDepth:        DefaultMaxDepth,
		MaxNodes:        DefaultMaxNodes,
	}
}

func (p Policy) Validate() error {
	if p.MinTurns < 0 {
		return fmt.Errorf("%w: min turns %d", ErrInvalidPolicy, p.MinTurns)
	}
	if p.MaxDecodedBytes <= 0 || p.MaxDepth <= 0 || p.MaxNodes <= 0 {
		return fmt.Errorf("%w: caps must be positive (decoded=%d depth=%d nodes=%d)",
			ErrInvalidPolicy, p.MaxDecodedBytes, p.MaxDepth, p.MaxNodes)
	}
	return nil
}

func (p Policy) vocab() *Vocabulary {
	if p.Vocabulary != nil {
		return p.Vocabulary
	}
	return &defaultVocabulary
}

func (p Policy) parseOptions() wml.ParseOptions {
	return wml.ParseOptions{
		MaxDecodedBytes:     p.MaxDecodedBytes,
		Limits:              wml.Limits{MaxDepth: p.MaxDepth, MaxNodes: p.MaxNodes},
		AllowRootAttributes: true,
	}
}
