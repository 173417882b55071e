package replay

// Vocabulary names the tags and keys the validator reads. The default
// follows the Wesnoth 1.14-1.18 save layout; callers may swap individual
// names when a server emits a variant.
type Vocabulary struct {
	VersionKey string

	// SideContainers are searched in order; the first one holding side
	// records wins.
	SideContainers  []string
	SideTag         string
	SideKey         string
	OldSidePrefix   string
	CarryoverTag    string
	VariablesTag    string
	NameKeys        []string
	FactionKeys     []string
	LeaderKey       string
	LeaderTag       string
	ControllerKey   string
	ObserverControl []string
	DefeatKeys      []string
	SnapshotTag     string

	MultiplayerTag  string
	MapIDKey        string
	MapNameKey      string
	ScenarioIDKey   string
	ScenarioNameKey string
	EraKey          string
	EraTag          string

	ReplayTag       string
	CommandTag      string
	InitSideTag     string
	InitSideKey     string
	TurnAtKey       string
	FromSideKey     string
	EndLevelTag     string
	ResultKey       string
	EndLevelSideKey string

	FireEventTag     string
	RaiseKey         string
	SurrenderRaise   string
	InputTag         string
	InputValueKey    string
	SurrenderConfirm int

	RankedTags        []string
	RankedKey         string
	TournamentKey     string
	TournamentNameKey string

	DesyncTag string
	AddonTag  string
}

// DefaultVocabulary returns a fresh copy of the Wesnoth save vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		VersionKey: "version",

		SideContainers:  []string{"replay_start", "scenario", "snapshot"},
		SideTag:         "side",
		SideKey:         "side",
		OldSidePrefix:   "old_side",
		CarryoverTag:    "carryover_sides_start",
		VariablesTag:    "variables",
		NameKeys:        []string{"current_player", "player_id", "name"},
		FactionKeys:     []string{"faction", "faction_name"},
		LeaderKey:       "type",
		LeaderTag:       "leader",
		ControllerKey:   "controller",
		ObserverControl: []string{"null"},
		DefeatKeys:      []string{"lost", "defeated"},
		SnapshotTag:     "snapshot",

		MultiplayerTag:  "multiplayer",
		MapIDKey:        "mp_scenario",
		MapNameKey:      "mp_scenario_name",
		ScenarioIDKey:   "id",
		ScenarioNameKey: "name",
		EraKey:          "mp_era",
		EraTag:          "era",

		ReplayTag:       "replay",
		CommandTag:      "command",
		InitSideTag:     "init_side",
		InitSideKey:     "side_number",
		TurnAtKey:       "turn_at",
		FromSideKey:     "from_side",
		EndLevelTag:     "endlevel",
		ResultKey:       "result",
		EndLevelSideKey: "side",

		FireEventTag:     "fire_event",
		RaiseKey:         "raise",
		SurrenderRaise:   "menu item surrender",
		InputTag:         "input",
		InputValueKey:    "value",
		SurrenderConfirm: 2,

		RankedTags:        []string{"scenario_data", "multiplayer"},
		RankedKey:         "ranked_mode",
		TournamentKey:     "tournament",
		TournamentNameKey: "tournament_name",

		DesyncTag: "out_of_sync",
		AddonTag:  "addon",
	}
}

var defaultVocabulary = DefaultVocabulary()
