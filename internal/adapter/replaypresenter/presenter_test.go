package replaypresenter

import (
    "context"
    "fmt"
    "strings"
    "testing"
    "time"

    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/domain"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/mpclient"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/msgcat"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/replay"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/replayfetch"
)

func TestMatchRoundTrip(t *testing.T) {
    rec := &domain.MatchRecord{
        ID: "m-1", Winner: "alice", Loser: "bob", MapID: "multiplayer_Tombs_of_Kesorak", MapName: "Tombs of Kesorak",
        Turns: 9, ResultSource: "surrender", Forfeit: true, AutoConfirm: true, Summary: "alice vs bob",
        Participants: []domain.MatchPlayer{{Side: 1, Name: "alice", Faction: "Drakes", Disposition: "active"}, {Side: 2, Name: "bob", Disposition: "surrendered"}},
        IngestedAt: time.Now(),
    }
    dto := ToDTOMatch(rec)
    if dto.Draw || len(dto.Participants) != 2 || dto.Participants[1].Disposition != "surrendered" { t.Fatalf("dto = %+v", dto) }

    out := (&Formatter{}).Match(dto)
    for _, want := range []string{"alice vs bob", "Tombs of Kesorak (multiplayer_Tombs_of_Kesorak)", "side 1: alice [Drakes]", "side 2: bob surrendered", "auto-confirm"} {
        if !strings.Contains(out, want) { t.Fatalf("report missing %q:\n%s", want, out) }
    }
    if ToDTOMatch(nil) != nil { t.Fatalf("nil record should map to nil") }
}

func TestDomainErrors(t *testing.T) {
    cat, err := msgcat.New("")
    if err != nil { t.Fatalf("msgcat: %v", err) }

    cases := []struct {
        err       error
        code      string
        retryable bool
    }{
        {&replay.ValidationError{Kind: replay.ValidationDesynced}, "replay.validation.desynced", false},
        {fmt.Errorf("login: %w", &mpclient.HandshakeError{Kind: mpclient.ErrTimeout}), "login.error.timeout", true},
        {&mpclient.HandshakeError{Kind: mpclient.ErrProtocol}, "login.error.protocol", false},
        {&replayfetch.StatusError{Code: 503}, "internal", true},
        {&replayfetch.StatusError{Code: 404}, "internal", false},
        {context.DeadlineExceeded, "internal", true},
    }
    for _, tc := range cases {
        de := ToDomainError(cat, tc.err)
        if de.Code != tc.code || de.Retryable != tc.retryable { t.Fatalf("%v: got %+v", tc.err, de) }
        if de.Message == "" { t.Fatalf("%v: empty message", tc.err) }
    }
    if ToDomainError(cat, nil) != nil { t.Fatalf("nil error should map to nil") }
}

func TestLoginReport(t *testing.T) {
    res := mpclient.Result{Outcome: mpclient.OutcomeRejected, Reason: "The password you provided was incorrect.", Code: "105", Session: mpclient.SessionInfo{Username: "alice"}}
    dto := ToDTOLogin(res)
    if dto.Authenticated || dto.Code != "105" { t.Fatalf("dto = %+v", dto) }
    if got := (&Formatter{}).Login(dto); !strings.HasPrefix(got, "alice: rejected (The password") { t.Fatalf("report = %q", got) }

    ok := ToDTOLogin(mpclient.Result{Outcome: mpclient.OutcomeAuthenticated, ServerVersion: "1.18.4", Session: mpclient.SessionInfo{Username: "bob", Attrs: map[string]string{"is_moderator": "no"}}})
    got := (&Formatter{Verbose: true}).Login(ok)
    if !strings.Contains(got, "bob: authenticated") || !strings.Contains(got, "is_moderator=no") || !strings.Contains(got, "server: 1.18.4") { t.Fatalf("report = %q", got) }
}
