package replaypresenter

import (
    "context"
    "errors"

    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/domain"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/mpclient"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/msgcat"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/replayfetch"
    "github.com/clmates/wesnoth-tournament-manager-sub003/pkg/replaydto"
)

func ToDTOMatch(m *domain.MatchRecord) *replaydto.MatchResult {
    if m == nil {
        return nil
    }
    out := &replaydto.MatchResult{
        MatchID:        m.ID,
        ReplaySHA256:   m.ReplaySHA256,
        Winner:         m.Winner,
        Loser:          m.Loser,
        Draw:           m.IsDraw(),
        MapID:          m.MapID,
        MapName:        m.MapName,
        EraID:          m.EraID,
        Turns:          m.Turns,
        ResultSource:   m.ResultSource,
        Forfeit:        m.Forfeit,
        Tournament:     m.Tournament,
        TournamentName: m.TournamentName,
        AutoConfirm:    m.AutoConfirm,
        Summary:        m.Summary,
        IngestedAt:     m.IngestedAt,
    }
    out.Participants = make([]replaydto.Participant, 0, len(m.Participants))
    for _, p := range m.Participants {
        out.Participants = append(out.Participants, replaydto.Participant{
            Side:        p.Side,
            Name:        p.Name,
            Faction:     p.Faction,
            Leader:      p.Leader,
            Disposition: p.Disposition,
        })
    }
    return out
}

func ToDTOLogin(res mpclient.Result) *replaydto.LoginResult {
    out := &replaydto.LoginResult{
        Username:      res.Session.Username,
        Authenticated: res.Authenticated(),
        Reason:        res.Reason,
        Code:          res.Code,
        WarningCode:   res.Session.WarningCode,
        ServerVersion: res.ServerVersion,
    }
    if len(res.Session.Attrs) > 0 {
        out.Attrs = make(map[string]string, len(res.Session.Attrs))
        for k, v := range res.Session.Attrs {
            out.Attrs[k] = v
        }
    }
    return out
}

// ToDomainError converts a service error into the transport error shape.
// Code is the catalog key, or "internal" for errors the catalog does not know.
func ToDomainError(cat *msgcat.Catalog, err error) *replaydto.DomainError {
    if err == nil {
        return nil
    }
    code, _ := msgcat.Key(err)
    if code == "" {
        code = "internal"
    }
    msg := err.Error()
    if cat != nil {
        msg = cat.Describe(err)
    }
    return &replaydto.DomainError{Code: code, Message: msg, Retryable: retryable(err)}
}

func retryable(err error) bool {
    if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
        return true
    }
    switch mpclient.KindOf(err) {
    case mpclient.ErrTimeout, mpclient.ErrIO, mpclient.ErrConnectFailed:
        return true
    }
    var serr *replayfetch.StatusError
    if errors.As(err, &serr) {
        return serr.Code >= 500
    }
    return false
}
