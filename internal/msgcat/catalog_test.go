package msgcat

import (
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/mpclient"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/replay"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
)

func TestDescribeErrors(t *testing.T) {
    c, err := New("")
    if err != nil { t.Fatalf("New: %v", err) }

    cases := []struct {
        err  error
        want string
    }{
        {fmt.Errorf("parse replay: %w", &wml.ContainerError{Kind: wml.ContainerSizeExceeded, Limit: 1024}), "more than 1024 bytes"},
        {&wml.SyntaxError{Line: 3, Col: 7, Kind: wml.SyntaxUnterminatedQuote}, "line 3, column 7"},
        {&wml.StructureError{Kind: wml.StructureTooDeep, Limit: 64}, "deeper than 64"},
        {&replay.ValidationError{Kind: replay.ValidationTooShort, Detail: "2 turns, minimum 3"}, "too short to be ranked (2 turns, minimum 3)"},
        {&replay.ValidationError{Kind: replay.ValidationMissingField, Field: "mp_scenario"}, "(mp_scenario)"},
        {&mpclient.HandshakeError{Kind: mpclient.ErrTimeout}, "did not answer in time"},
        {fmt.Errorf("boom"), "could not be processed"},
    }
    for _, tc := range cases {
        if got := c.Describe(tc.err); !strings.Contains(got, tc.want) { t.Fatalf("Describe(%v) = %q, want substring %q", tc.err, got, tc.want) }
    }
    if got := c.DescribeLogin(mpclient.Result{Outcome: mpclient.OutcomeRejected, Reason: "bad password"}); !strings.Contains(got, "bad password") {
        t.Fatalf("DescribeLogin = %q", got)
    }
}

func TestOverrideDir(t *testing.T) {
    dir := t.TempDir()
    override := "replay:\n  validation:\n    no-turns: \"Partida sin turnos.\"\n"
    if err := os.WriteFile(filepath.Join(dir, "es.yaml"), []byte(override), 0o644); err != nil { t.Fatalf("write: %v", err) }

    c, err := New(dir)
    if err != nil { t.Fatalf("New: %v", err) }
    if got := c.Describe(&replay.ValidationError{Kind: replay.ValidationNoTurns}); got != "Partida sin turnos." { t.Fatalf("override not applied: %q", got) }
    if !c.Has("replay.validation.too-short") { t.Fatalf("embedded key lost after override") }
}

func TestOverrideDuplicateKeys(t *testing.T) {
    dir := t.TempDir()
    body := []byte("login:\n  generic: \"x\"\n")
    _ = os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o644)
    _ = os.WriteFile(filepath.Join(dir, "b.yml"), body, 0o644)
    if _, err := New(dir); err == nil { t.Fatalf("expected duplicate key error") }
}

func TestNonStringLeafRejected(t *testing.T) {
    dir := t.TempDir()
    _ = os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("login:\n  generic: 42\n"), 0o644)
    if _, err := New(dir); err == nil { t.Fatalf("expected error for integer leaf") }
}
