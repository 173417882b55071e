package replaycache

import (
    "context"
    "errors"
    "fmt"
    "testing"
    "time"

    miniredis "github.com/alicebob/miniredis/v2"
    "github.com/redis/go-redis/v9"

    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/replay"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
    t.Helper()
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(mr.Close)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    return NewStore(rdb, ttl), mr
}

func TestFactRoundTrip(t *testing.T) {
    s, _ := newTestStore(t, time.Hour)
    ctx := context.Background()

    got, err := s.Get(ctx, "ABC", "p1")
    if err != nil || got != nil { t.Fatalf("expected miss, got %+v err=%v", got, err) }

    fact := replay.MatchFact{
        Participants: []replay.Participant{{Side: 1, Name: "alice"}, {Side: 2, Name: "bob"}},
        Winner:       "bob",
        Turns:        7,
        ResultSource: replay.ResultSurrender,
    }
    if err := s.PutFact(ctx, "ABC", "p1", fact, "m-1"); err != nil { t.Fatalf("PutFact: %v", err) }

    // digest lookup is case-insensitive
    got, err = s.Get(ctx, "abc", "p1")
    if err != nil || got == nil || got.Fact == nil { t.Fatalf("expected hit, got %+v err=%v", got, err) }
    if got.Fact.Winner != "bob" || got.Fact.Turns != 7 || len(got.Fact.Participants) != 2 { t.Fatalf("fact mismatch: %+v", got.Fact) }
    if got.MatchID != "m-1" || got.Rejection != nil { t.Fatalf("entry mismatch: %+v", got) }

    if other, _ := s.Get(ctx, "abc", "p2"); other != nil { t.Fatalf("policy tags must not share entries") }
}

func TestRejectionAndTTL(t *testing.T) {
    s, mr := newTestStore(t, time.Minute)
    ctx := context.Background()

    rej := &Rejection{Key: "replay.validation.too-short", Data: map[string]any{"Detail": "2 turns"}, Message: "replay rejected: too-short"}
    if err := s.PutRejection(ctx, "d1", "p", rej); err != nil { t.Fatalf("PutRejection: %v", err) }
    got, err := s.Get(ctx, "d1", "p")
    if err != nil || got == nil || got.Rejection == nil { t.Fatalf("expected rejection, got %+v err=%v", got, err) }
    if k, data := got.Rejection.MessageKey(); k != rej.Key || data["Detail"] != "2 turns" { t.Fatalf("rejection mismatch: %+v", got.Rejection) }

    mr.FastForward(2 * time.Minute)
    if got, _ := s.Get(ctx, "d1", "p"); got != nil { t.Fatalf("entry should expire") }
}

func TestForget(t *testing.T) {
    s, _ := newTestStore(t, 0)
    ctx := context.Background()
    if err := s.PutFact(ctx, "d", "p", replay.MatchFact{Winner: "draw"}, ""); err != nil { t.Fatalf("PutFact: %v", err) }
    if err := s.Forget(ctx, "d", "p"); err != nil { t.Fatalf("Forget: %v", err) }
    if got, _ := s.Get(ctx, "d", "p"); got != nil { t.Fatalf("expected miss after Forget") }
}

func TestParseRedisURL(t *testing.T) {
    opts, err := parseRedisURL("redis://:secret@localhost:6380/2")
    if err != nil { t.Fatalf("parse: %v", err) }
    if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 { t.Fatalf("unexpected opts: %+v", opts) }
    if _, err := parseRedisURL("http://x"); err == nil { t.Fatalf("expected scheme error") }
}

func TestRejectionUnwrapsTypedError(t *testing.T) {
    s, _ := newTestStore(t, time.Minute)
    ctx := context.Background()

    cases := []struct {
        rej   *Rejection
        check func(error) bool
    }{
        {&Rejection{Key: "replay.validation.too-short", Data: map[string]any{"Detail": "2 turns, minimum 3"}, Message: "too short"},
            func(err error) bool { return replay.IsKind(err, replay.ValidationTooShort) }},
        {&Rejection{Key: "replay.container.size-limit-exceeded", Data: map[string]any{"Limit": int64(1024), "Format": "gzip"}, Message: "too big"},
            func(err error) bool {
                var ce *wml.ContainerError
                return errors.As(err, &ce) && ce.Kind == wml.ContainerSizeExceeded && ce.Limit == 1024 && ce.Format == wml.FormatGzip
            }},
        {&Rejection{Key: "replay.structure.too-deep", Data: map[string]any{"Limit": 64, "Tag": "side"}, Message: "too deep"},
            func(err error) bool {
                var se *wml.StructureError
                return errors.As(err, &se) && se.Kind == wml.StructureTooDeep && se.Limit == 64 && se.Tag == "side"
            }},
        {&Rejection{Key: "replay.syntax", Data: map[string]any{"Line": 3, "Col": 7, "Kind": "unterminated-quote"}, Message: "syntax"},
            func(err error) bool {
                var se *wml.SyntaxError
                return errors.As(err, &se) && se.Kind == wml.SyntaxUnterminatedQuote && se.Line == 3 && se.Col == 7
            }},
    }
    for i, tc := range cases {
        if err := s.PutRejection(ctx, "d", "p", tc.rej); err != nil { t.Fatalf("PutRejection: %v", err) }
        got, err := s.Get(ctx, "d", "p")
        if err != nil || got == nil || got.Rejection == nil { t.Fatalf("case %d: expected rejection, got %+v err=%v", i, got, err) }
        if !tc.check(fmt.Errorf("ingest: %w", got.Rejection)) { t.Fatalf("case %d: typed error not recovered from %q", i, got.Rejection.Key) }
        if k, _ := got.Rejection.MessageKey(); k != tc.rej.Key { t.Fatalf("case %d: key = %q", i, k) }
    }

    if (&Rejection{Key: "replay.generic"}).Unwrap() != nil { t.Fatalf("unknown key must unwrap to nil") }
}
