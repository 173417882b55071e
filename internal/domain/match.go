package domain

import "time"

// MatchRecord is one accepted replay as stored by the match repository.
type MatchRecord struct {
	ID             string
	ReplaySHA256   string
	Source         string
	Winner         string
	Loser          string
	Participants   []MatchPlayer
	MapID          string
	MapName        string
	EraID          string
	Turns          int
	ResultSource   string
	Forfeit        bool
	Tournament     bool
	TournamentName string
	AutoConfirm    bool
	EngineVersion  string
	Summary        string
	IngestedAt     time.Time
}

type MatchPlayer struct {
	Side        int
	Name        string
	Faction     string
	Leader      string
	Disposition string
}

// IsDraw reports whether the match ended without a winner.
func (m *MatchRecord) IsDraw() bool { return m != nil && m.Winner == "draw" }
