package replay

import (
	"fmt"
	"strings"
)

// WinnerDraw is the Winner value of a drawn game.
const WinnerDraw = "draw"

type Disposition string

const (
	DispositionActive      Disposition = "active"
	DispositionDefeated    Disposition = "defeated"
	DispositionSurrendered Disposition = "surrendered"
)

// ResultSource records which evidence decided the winner.
type ResultSource string

const (
	ResultEndLevel    ResultSource = "endlevel"
	ResultSurrender   ResultSource = "surrender"
	ResultDisposition ResultSource = "disposition"
)

type Participant struct {
	Side        int
	Name        string
	Faction     string
	Leader      string
	Disposition Disposition
}

type RankedConfig struct {
	Ranked         bool
	Tournament     bool
	TournamentName string
}

type Addon struct {
	ID       string
	Version  string
	Required bool
}

// MatchFact is the validated outcome of one replay. Slices are owned by the
// caller.
type MatchFact struct {
	Participants  []Participant
	Observers     []string
	MapID         string
	MapName       string
	EraID         string
	Turns         int
	Winner        string
	ResultSource  ResultSource
	Forfeit       bool
	Desync        bool
	EngineVersion string
	Ranked        RankedConfig
	Addons        []Addon

	// AutoConfirm is set when an explicit record decided the result and the
	// game is not part of a tournament.
	AutoConfirm bool
}

func (f MatchFact) IsDraw() bool { return f.Winner == WinnerDraw }

// Participant returns the participant called name.
func (f MatchFact) Participant(name string) (Participant, bool) {
	for _, p := range f.Participants {
		if p.Name == name {
			return p, true
		}
	}
	return Participant{}, false
}

// Losers lists every participant other than the winner. Empty for a draw.
func (f MatchFact) Losers() []Participant {
	if f.IsDraw() {
		return nil
	}
	var out []Participant
	for _, p := range f.Participants {
		if p.Name != f.Winner {
			out = append(out, p)
		}
	}
	return out
}

// Summary renders a one-line description for logs and match reports.
func (f MatchFact) Summary() string {
	var b strings.Builder
	for i, p := range f.Participants {
		if i > 0 {
			b.WriteString(" vs ")
		}
		b.WriteString(p.Name)
		if p.Faction != "" {
			b.WriteString(" (" + p.Faction + ")")
		}
	}
	mapName := f.MapName
	if mapName == "" {
		mapName = f.MapID
	}
	b.WriteString(" on " + mapName)
	if f.IsDraw() {
		fmt.Fprintf(&b, ": draw after %d turns", f.Turns)
	} else {
		fmt.Fprintf(&b, ": %s wins after %d turns", f.Winner, f.Turns)
	}
	if f.Forfeit {
		b.WriteString(" (forfeit)")
	}
	return b.String()
}
