package replaypresenter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clmates/wesnoth-tournament-manager-sub003/pkg/replaydto"
)

// Formatter renders replay DTOs as plain text reports.
type Formatter struct {
	Verbose bool
}

func (f *Formatter) Match(m *replaydto.MatchResult) string {
	if m == nil {
		return "no match"
	}
	var sb strings.Builder
	sb.WriteString(m.Summary)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("• match: %s\n", m.MatchID))
	mapLine := m.MapID
	if m.MapName != "" {
		mapLine = fmt.Sprintf("%s (%s)", m.MapName, m.MapID)
	}
	sb.WriteString(fmt.Sprintf("• map: %s\n", mapLine))
	if m.EraID != "" {
		sb.WriteString(fmt.Sprintf("• era: %s\n", m.EraID))
	}
	for _, p := range m.Participants {
		sb.WriteString(fmt.Sprintf("• side %d: %s", p.Side, p.Name))
		if p.Faction != "" {
			sb.WriteString(" [" + p.Faction + "]")
		}
		if p.Disposition != "" && p.Disposition != "active" {
			sb.WriteString(" " + p.Disposition)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("• result: %s", m.ResultSource))
	if m.Tournament {
		name := m.TournamentName
		if name == "" {
			name = "tournament"
		}
		sb.WriteString(fmt.Sprintf(", %s", name))
	}
	if m.AutoConfirm {
		sb.WriteString(", auto-confirm")
	}
	sb.WriteString("\n")
	if f != nil && f.Verbose {
		sb.WriteString(fmt.Sprintf("• sha256: %s\n", m.ReplaySHA256))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) Error(e *replaydto.DomainError) string {
	if e == nil {
		return ""
	}
	if f != nil && f.Verbose {
		retry := ""
		if e.Retryable {
			retry = ", retryable"
		}
		return fmt.Sprintf("%s (%s%s)", e.Message, e.Code, retry)
	}
	return e.Message
}

func (f *Formatter) Login(r *replaydto.LoginResult) string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	if r.Authenticated {
		sb.WriteString(fmt.Sprintf("%s: authenticated", r.Username))
	} else {
		sb.WriteString(fmt.Sprintf("%s: rejected", r.Username))
		if r.Reason != "" {
			sb.WriteString(" (" + r.Reason + ")")
		}
	}
	if r.ServerVersion != "" {
		sb.WriteString(fmt.Sprintf("\n• server: %s", r.ServerVersion))
	}
	if f != nil && f.Verbose && len(r.Attrs) > 0 {
		keys := make([]string, 0, len(r.Attrs))
		for k := range r.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("\n• %s=%s", k, r.Attrs[k]))
		}
	}
	return sb.String()
}
