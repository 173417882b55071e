package msgcat

import (
    "errors"

    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/mpclient"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/replay"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
)

type keyed interface {
    MessageKey() (string, map[string]any)
}

// Key maps a parse, validation or login error to its message key and
// template data. Unknown errors map to ("", nil).
func Key(err error) (string, map[string]any) {
    var k keyed
    if errors.As(err, &k) {
        return k.MessageKey()
    }
    var (
        cerr *wml.ContainerError
        serr *wml.SyntaxError
        sterr *wml.StructureError
        verr *replay.ValidationError
        herr *mpclient.HandshakeError
    )
    switch {
    case errors.As(err, &verr):
        return "replay.validation." + string(verr.Kind), map[string]any{"Field": verr.Field, "Detail": verr.Detail}
    case errors.As(err, &cerr):
        return "replay.container." + string(cerr.Kind), map[string]any{"Limit": cerr.Limit, "Format": string(cerr.Format)}
    case errors.As(err, &serr):
        return "replay.syntax", map[string]any{"Line": serr.Line, "Col": serr.Col, "Kind": string(serr.Kind)}
    case errors.As(err, &sterr):
        return "replay.structure." + string(sterr.Kind), map[string]any{"Limit": sterr.Limit, "Tag": sterr.Tag}
    case errors.As(err, &herr):
        return "login.error." + string(herr.Kind), map[string]any{"Detail": herr.Detail, "State": string(herr.State)}
    }
    return "", nil
}

// Describe renders user text for err, falling back to the generic replay
// or login message.
func (c *Catalog) Describe(err error) string {
    if err == nil {
        return ""
    }
    key, data := Key(err)
    if key != "" {
        if s, rerr := c.Render(key, data); rerr == nil {
            return s
        }
    }
    fallback := "replay.generic"
    if len(key) >= 5 && key[:5] == "login" {
        fallback = "login.generic"
    }
    s, _ := c.Render(fallback, nil)
    return s
}

// DescribeLogin renders the outcome of a login that was not errored.
func (c *Catalog) DescribeLogin(res mpclient.Result) string {
    if res.Authenticated() {
        return ""
    }
    s, err := c.Render("login.rejected", map[string]any{"Reason": res.Reason})
    if err != nil {
        s, _ = c.Render("login.generic", nil)
    }
    return s
}

// DescribeFact renders the accepted-replay line.
func (c *Catalog) DescribeFact(f replay.MatchFact) string {
    s, err := c.Render("replay.accepted", map[string]any{"Summary": f.Summary()})
    if err != nil {
        return f.Summary()
    }
    return s
}
