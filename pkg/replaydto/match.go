package replaydto

import "time"

type Participant struct {
	Side        int    `json:"side"`
	Name        string `json:"name"`
	Faction     string `json:"faction,omitempty"`
	Leader      string `json:"leader,omitempty"`
	Disposition string `json:"disposition"`
}

// MatchResult is an accepted replay as served to the tournament frontend.
type MatchResult struct {
	MatchID        string        `json:"match_id"`
	ReplaySHA256   string        `json:"replay_sha256"`
	Winner         string        `json:"winner"`
	Loser          string        `json:"loser,omitempty"`
	Draw           bool          `json:"draw"`
	Participants   []Participant `json:"participants"`
	MapID          string        `json:"map_id"`
	MapName        string        `json:"map_name,omitempty"`
	EraID          string        `json:"era_id,omitempty"`
	Turns          int           `json:"turns"`
	ResultSource   string        `json:"result_source"`
	Forfeit        bool          `json:"forfeit"`
	Tournament     bool          `json:"tournament"`
	TournamentName string        `json:"tournament_name,omitempty"`
	AutoConfirm    bool          `json:"auto_confirm"`
	Summary        string        `json:"summary"`
	IngestedAt     time.Time     `json:"ingested_at"`
}

// IngestResponse carries either a match or the reason it was refused.
type IngestResponse struct {
	Source string       `json:"source"`
	Match  *MatchResult `json:"match,omitempty"`
	Error  *DomainError `json:"error,omitempty"`
}
