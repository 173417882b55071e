package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type SourceKind string

const (
	SourceFile  SourceKind = "file"
	SourceBytes SourceKind = "bytes"
	SourceURL   SourceKind = "url"
)

var ErrSourceTooLarge = errors.New("replay source exceeds size limit")

// Source names where replay bytes come from.
type Source struct {
	Kind SourceKind
	Ref  string // path, url or display name
	Data []byte
}

func FromFile(path string) Source { return Source{Kind: SourceFile, Ref: path} }

func FromBytes(name string, data []byte) Source {
	return Source{Kind: SourceBytes, Ref: name, Data: data}
}

func FromURL(url string) Source { return Source{Kind: SourceURL, Ref: url} }

// String renders the source for logs and the match record.
func (s Source) String() string {
	if s.Ref == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.Ref
}

// Fetcher downloads replays for URL sources.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

func (s *Service) load(ctx context.Context, src Source) ([]byte, error) {
	limit := s.policy.MaxDecodedBytes
	switch src.Kind {
	case SourceBytes:
		if int64(len(src.Data)) > limit {
			return nil, ErrSourceTooLarge
		}
		return src.Data, nil
	case SourceFile:
		f, err := os.Open(src.Ref)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		raw, err := io.ReadAll(io.LimitReader(f, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(raw)) > limit {
			return nil, ErrSourceTooLarge
		}
		return raw, nil
	case SourceURL:
		if s.fetcher == nil {
			return nil, fmt.Errorf("no fetcher configured for %s", src.Ref)
		}
		return s.fetcher.Fetch(ctx, strings.TrimSpace(src.Ref))
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}
