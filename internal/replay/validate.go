package replay

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
)

// player-count prefix of scenario names, e.g. "2p - Caves of the Basilisk"
var playerCountPrefix = regexp.MustCompile(`^\d+p\s*[—–-]\s*`)

type sideRecord struct {
	node *wml.Node
	side int
}

// Validate extracts the match outcome from a parsed save. It reads root and
// p only, so the same inputs always give the same fact or error kind.
//
// Checks run in a fixed order: required fields, participants, turn count,
// result, then the ranked/desync policy switches.
func Validate(root *wml.Node, p Policy) (MatchFact, error) {
	if err := p.Validate(); err != nil {
		return MatchFact{}, err
	}
	if root == nil {
		return MatchFact{}, missing("root")
	}
	v := p.vocab()
	var f MatchFact

	// required fields
	f.EngineVersion = strings.TrimSpace(root.StringOr(v.VersionKey, ""))
	if f.EngineVersion == "" {
		return MatchFact{}, missing(v.VersionKey)
	}
	sides := findSides(root, v)
	if len(sides) == 0 {
		return MatchFact{}, missing(v.SideTag)
	}
	f.MapID, f.MapName = findMap(root, v)
	if f.MapID == "" {
		return MatchFact{}, missing(v.MapIDKey)
	}
	f.EraID = findEra(root, v)
	ranked, err := rankedConfig(root, v)
	if err != nil {
		return MatchFact{}, err
	}
	f.Ranked = ranked
	if f.Addons, err = addons(root, v); err != nil {
		return MatchFact{}, err
	}

	// participants
	f.Participants, f.Observers, err = participants(sides, v)
	if err != nil {
		return MatchFact{}, err
	}
	distinct := make(map[string]struct{}, len(f.Participants))
	for _, pt := range f.Participants {
		distinct[pt.Name] = struct{}{}
	}
	if len(distinct) < 2 {
		return MatchFact{}, &ValidationError{Kind: ValidationTooFewParticipants, Detail: fmt.Sprintf("%d distinct players", len(distinct))}
	}
	if err := applySnapshot(root, f.Participants, v); err != nil {
		return MatchFact{}, err
	}

	// turns
	commands := collectCommands(root, v)
	f.Turns, err = countTurns(root, commands, f.Participants, v)
	if err != nil {
		return MatchFact{}, err
	}
	if f.Turns == 0 {
		return MatchFact{}, &ValidationError{Kind: ValidationNoTurns}
	}
	if f.Turns < p.MinTurns {
		return MatchFact{}, &ValidationError{Kind: ValidationTooShort, Detail: fmt.Sprintf("%d turns, minimum %d", f.Turns, p.MinTurns)}
	}

	// result
	if err := applySurrenders(commands, f.Participants, v); err != nil {
		return MatchFact{}, err
	}
	if err := decideWinner(root, &f, v); err != nil {
		return MatchFact{}, err
	}
	f.Desync = hasDesync(root, commands, v)
	f.AutoConfirm = f.ResultSource != ResultDisposition && !f.Ranked.Tournament

	if p.RequireRanked && !f.Ranked.Ranked {
		return MatchFact{}, &ValidationError{Kind: ValidationNotRanked, Field: v.RankedKey}
	}
	if p.RejectDesync && f.Desync {
		return MatchFact{}, &ValidationError{Kind: ValidationDesynced}
	}
	return f, nil
}

func findSides(root *wml.Node, v *Vocabulary) []sideRecord {
	for _, tag := range v.SideContainers {
		c := root.Child(tag)
		if c == nil {
			continue
		}
		if nodes := c.ChildrenByTag(v.SideTag); hasPlayer(nodes, v) {
			recs := make([]sideRecord, len(nodes))
			for i, n := range nodes {
				recs[i] = sideRecord{node: n, side: i + 1}
			}
			return recs
		}
	}
	// [old_sideN] survives in carryover data when the scenario block was
	// stripped from the save
	if recs := oldSides(root, v); len(recs) > 0 {
		return recs
	}
	for _, co := range root.ChildrenByTag(v.CarryoverTag) {
		for _, vars := range co.ChildrenByTag(v.VariablesTag) {
			if recs := oldSides(vars, v); len(recs) > 0 {
				return recs
			}
		}
	}
	for _, tag := range v.SideContainers {
		if c := root.Child(tag); c != nil {
			if recs := oldSides(c, v); len(recs) > 0 {
				return recs
			}
		}
	}
	return nil
}

// hasPlayer skips side lists that carry no player identity, such as the
// bare [side] flags of a stripped snapshot.
func hasPlayer(nodes []*wml.Node, v *Vocabulary) bool {
	for _, n := range nodes {
		if firstString(n, v.NameKeys) != "" {
			return true
		}
	}
	return false
}

func oldSides(n *wml.Node, v *Vocabulary) []sideRecord {
	var recs []sideRecord
	for _, c := range n.Children {
		suffix, ok := strings.CutPrefix(c.Tag, v.OldSidePrefix)
		if !ok {
			continue
		}
		num, err := strconv.Atoi(suffix)
		if err != nil || num <= 0 {
			continue
		}
		recs = append(recs, sideRecord{node: c, side: num})
	}
	return recs
}

func participants(recs []sideRecord, v *Vocabulary) ([]Participant, []string, error) {
	var out []Participant
	var observers []string
	for _, rec := range recs {
		n := rec.node
		side := rec.side
		if n.Has(v.SideKey) {
			s, err := n.Int(v.SideKey)
			if err != nil {
				return nil, nil, malformed(v.SideKey, err)
			}
			side = s
		}
		name := firstString(n, v.NameKeys)
		if name == "" {
			continue
		}
		if isObserver(n.StringOr(v.ControllerKey, ""), v) {
			observers = append(observers, name)
			continue
		}
		leader := n.StringOr(v.LeaderKey, "")
		if leader == "" {
			if l := n.Child(v.LeaderTag); l != nil {
				leader = l.StringOr(v.LeaderKey, "")
			}
		}
		out = append(out, Participant{
			Side:        side,
			Name:        name,
			Faction:     firstString(n, v.FactionKeys),
			Leader:      leader,
			Disposition: DispositionActive,
		})
	}
	return out, observers, nil
}

func isObserver(controller string, v *Vocabulary) bool {
	for _, c := range v.ObserverControl {
		if controller == c {
			return true
		}
	}
	return false
}

// applySnapshot marks sides flagged as lost in the last snapshot.
func applySnapshot(root *wml.Node, ps []Participant, v *Vocabulary) error {
	snap := root.LastChild(v.SnapshotTag)
	if snap == nil {
		return nil
	}
	for i, s := range snap.ChildrenByTag(v.SideTag) {
		side := i + 1
		if s.Has(v.SideKey) {
			n, err := s.Int(v.SideKey)
			if err != nil {
				return malformed(v.SnapshotTag+"."+v.SideKey, err)
			}
			side = n
		}
		for _, key := range v.DefeatKeys {
			lost, err := optBool(s, key)
			if err != nil {
				return malformed(v.SnapshotTag+"."+key, err)
			}
			if lost {
				setDisposition(ps, side, DispositionDefeated)
			}
		}
	}
	return nil
}

func collectCommands(root *wml.Node, v *Vocabulary) []*wml.Node {
	var cmds []*wml.Node
	for _, r := range root.ChildrenByTag(v.ReplayTag) {
		cmds = append(cmds, r.ChildrenByTag(v.CommandTag)...)
	}
	return cmds
}

// countTurns counts the turns started by the first participant. Replays
// without side numbers on [init_side] are divided evenly between the
// participants; a missing replay log falls back to the snapshot's turn_at.
func countTurns(root *wml.Node, cmds []*wml.Node, ps []Participant, v *Vocabulary) (int, error) {
	first := ps[0].Side
	total, matched, keyed := 0, 0, false
	for _, cmd := range cmds {
		for _, is := range cmd.ChildrenByTag(v.InitSideTag) {
			total++
			if !is.Has(v.InitSideKey) {
				continue
			}
			keyed = true
			s, err := is.Int(v.InitSideKey)
			if err != nil {
				return 0, malformed(v.InitSideTag+"."+v.InitSideKey, err)
			}
			if s == first {
				matched++
			}
		}
	}
	if keyed {
		return matched, nil
	}
	if total > 0 {
		return (total + len(ps) - 1) / len(ps), nil
	}
	if snap := root.LastChild(v.SnapshotTag); snap != nil && snap.Has(v.TurnAtKey) {
		n, err := snap.Int(v.TurnAtKey)
		if err != nil {
			return 0, malformed(v.SnapshotTag+"."+v.TurnAtKey, err)
		}
		if n < 0 {
			n = 0
		}
		return n, nil
	}
	return 0, nil
}

// applySurrenders marks sides whose surrender menu item was confirmed by the
// following command's input.
func applySurrenders(cmds []*wml.Node, ps []Participant, v *Vocabulary) error {
	for i, cmd := range cmds {
		fe := cmd.Child(v.FireEventTag)
		if fe == nil || fe.StringOr(v.RaiseKey, "") != v.SurrenderRaise {
			continue
		}
		if !cmd.Has(v.FromSideKey) || i+1 >= len(cmds) {
			continue
		}
		side, err := cmd.Int(v.FromSideKey)
		if err != nil {
			return malformed(v.CommandTag+"."+v.FromSideKey, err)
		}
		in := cmds[i+1].Child(v.InputTag)
		if in == nil || !in.Has(v.InputValueKey) {
			continue
		}
		val, err := in.Int(v.InputValueKey)
		if err != nil {
			return malformed(v.InputTag+"."+v.InputValueKey, err)
		}
		if val == v.SurrenderConfirm {
			setDisposition(ps, side, DispositionSurrendered)
		}
	}
	return nil
}

// lastEndLevel returns the last [endlevel] in document order, looking at the
// root, the replay blocks and their commands.
func lastEndLevel(root *wml.Node, v *Vocabulary) *wml.Node {
	var last *wml.Node
	for _, c := range root.Children {
		switch c.Tag {
		case v.EndLevelTag:
			last = c
		case v.ReplayTag:
			for _, rc := range c.Children {
				if rc.Tag == v.EndLevelTag {
					last = rc
				} else if rc.Tag == v.CommandTag {
					if e := rc.LastChild(v.EndLevelTag); e != nil {
						last = e
					}
				}
			}
		}
	}
	return last
}

func decideWinner(root *wml.Node, f *MatchFact, v *Vocabulary) error {
	fromEndLevel := false
	if end := lastEndLevel(root, v); end != nil {
		result := strings.ToLower(strings.TrimSpace(end.StringOr(v.ResultKey, "")))
		side, hasSide := 0, end.Has(v.EndLevelSideKey)
		if hasSide {
			n, err := end.Int(v.EndLevelSideKey)
			if err != nil {
				return malformed(v.EndLevelTag+"."+v.EndLevelSideKey, err)
			}
			side = n
		}
		switch {
		case result == "draw":
			f.Winner = WinnerDraw
			f.ResultSource = ResultEndLevel
			f.Forfeit = anySurrendered(f.Participants)
			return nil
		case result == "victory" && hasSide:
			pt, ok := bySide(f.Participants, side)
			if !ok {
				return &ValidationError{Kind: ValidationWinnerNotParticipant, Field: v.EndLevelSideKey, Detail: fmt.Sprintf("side %d", side)}
			}
			f.Winner = pt.Name
			f.ResultSource = ResultEndLevel
			f.Forfeit = anySurrendered(f.Participants)
			return nil
		case (result == "resign" || result == "surrender" || result == "defeat") && hasSide:
			if _, ok := bySide(f.Participants, side); !ok {
				return &ValidationError{Kind: ValidationWinnerNotParticipant, Field: v.EndLevelSideKey, Detail: fmt.Sprintf("losing side %d", side)}
			}
			d := DispositionSurrendered
			if result == "defeat" {
				d = DispositionDefeated
			}
			setDisposition(f.Participants, side, d)
			fromEndLevel = true
		}
	}

	var remaining []Participant
	for _, pt := range f.Participants {
		if pt.Disposition == DispositionActive {
			remaining = append(remaining, pt)
		}
	}
	if len(remaining) != 1 {
		return &ValidationError{Kind: ValidationAmbiguousResult, Detail: fmt.Sprintf("%d sides remaining", len(remaining))}
	}
	f.Winner = remaining[0].Name
	f.Forfeit = anySurrendered(f.Participants)
	switch {
	case fromEndLevel:
		f.ResultSource = ResultEndLevel
	case f.Forfeit:
		f.ResultSource = ResultSurrender
	default:
		f.ResultSource = ResultDisposition
	}
	return nil
}

func findMap(root *wml.Node, v *Vocabulary) (id, name string) {
	if mp := root.Child(v.MultiplayerTag); mp != nil {
		id = strings.TrimSpace(mp.StringOr(v.MapIDKey, ""))
		name = mp.StringOr(v.MapNameKey, "")
	}
	if id == "" {
		id = strings.TrimSpace(root.StringOr(v.MapIDKey, ""))
	}
	for _, tag := range v.SideContainers {
		c := root.Child(tag)
		if c == nil {
			continue
		}
		if id == "" {
			id = strings.TrimSpace(c.StringOr(v.ScenarioIDKey, ""))
		}
		if name == "" {
			name = c.StringOr(v.ScenarioNameKey, "")
		}
	}
	name = playerCountPrefix.ReplaceAllString(strings.TrimSpace(name), "")
	return id, name
}

func findEra(root *wml.Node, v *Vocabulary) string {
	if mp := root.Child(v.MultiplayerTag); mp != nil {
		if era := mp.StringOr(v.EraKey, ""); era != "" {
			return era
		}
	}
	if e := root.Child(v.EraTag); e != nil {
		return e.StringOr("id", "")
	}
	return ""
}

// rankedConfig reads the add-on flags from the side containers first
// ([scenario][scenario_data]) and then from the root.
func rankedConfig(root *wml.Node, v *Vocabulary) (RankedConfig, error) {
	var rc RankedConfig
	type scope struct {
		prefix string
		node   *wml.Node
	}
	var scopes []scope
	for _, tag := range v.SideContainers {
		if c := root.Child(tag); c != nil {
			scopes = append(scopes, scope{tag + ".", c})
		}
	}
	scopes = append(scopes, scope{"", root})

	for _, sc := range scopes {
		for _, tag := range v.RankedTags {
			c := sc.node.Child(tag)
			if c == nil {
				continue
			}
			field := sc.prefix + tag + "."
			ranked, err := optBool(c, v.RankedKey)
			if err != nil {
				return rc, malformed(field+v.RankedKey, err)
			}
			tournament, err := optBool(c, v.TournamentKey)
			if err != nil {
				return rc, malformed(field+v.TournamentKey, err)
			}
			rc.Ranked = rc.Ranked || ranked
			rc.Tournament = rc.Tournament || tournament
			if rc.TournamentName == "" {
				rc.TournamentName = c.StringOr(v.TournamentNameKey, "")
			}
		}
	}
	return rc, nil
}

func addons(root *wml.Node, v *Vocabulary) ([]Addon, error) {
	var out []Addon
	for _, a := range root.ChildrenByTag(v.AddonTag) {
		id := a.StringOr("id", "")
		if id == "" {
			continue
		}
		req, err := optBool(a, "required")
		if err != nil {
			return nil, malformed(v.AddonTag+".required", err)
		}
		out = append(out, Addon{ID: id, Version: a.StringOr("version", ""), Required: req})
	}
	return out, nil
}

func hasDesync(root *wml.Node, cmds []*wml.Node, v *Vocabulary) bool {
	if root.Child(v.DesyncTag) != nil {
		return true
	}
	for _, r := range root.ChildrenByTag(v.ReplayTag) {
		if r.Child(v.DesyncTag) != nil {
			return true
		}
	}
	for _, c := range cmds {
		if c.Child(v.DesyncTag) != nil {
			return true
		}
	}
	return false
}

func firstString(n *wml.Node, keys []string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(n.StringOr(k, "")); s != "" {
			return s
		}
	}
	return ""
}

func optBool(n *wml.Node, key string) (bool, error) {
	if !n.Has(key) {
		return false, nil
	}
	return n.Bool(key)
}

func setDisposition(ps []Participant, side int, d Disposition) {
	for i := range ps {
		if ps[i].Side == side && ps[i].Disposition == DispositionActive {
			ps[i].Disposition = d
		}
	}
}

func bySide(ps []Participant, side int) (Participant, bool) {
	for _, p := range ps {
		if p.Side == side {
			return p, true
		}
	}
	return Participant{}, false
}

func anySurrendered(ps []Participant) bool {
	for _, p := range ps {
		if p.Disposition == DispositionSurrendered {
			return true
		}
	}
	return false
}
