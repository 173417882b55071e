package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
	"github.com/clmates/wesnoth-tournament-manager-sub003/pkg/replaydto"
)

func writeReplay(t *testing.T, dir, name string, turns int) string {
	t.Helper()
	root := wml.NewNode(wml.RootTag)
	root.Set("version", "1.18.0")
	root.AddChild(wml.NewNode("multiplayer")).Set("mp_scenario", "multiplayer_Hamlets").Set("mp_scenario_name", "2p — The Hamlets")
	start := root.AddChild(wml.NewNode("replay_start"))
	start.AddChild(wml.NewNode("side")).SetInt("side", 1).Set("current_player", "alice").Set("faction", "Loyalists")
	start.AddChild(wml.NewNode("side")).SetInt("side", 2).Set("current_player", "bob").Set("faction", "Knalgan Alliance")
	rp := root.AddChild(wml.NewNode("replay"))
	for i := 0; i < turns; i++ {
		rp.AddChild(wml.NewNode("command")).AddChild(wml.NewNode("init_side")).SetInt("side_number", 1)
	}
	root.AddChild(wml.NewNode("endlevel")).Set("result", "victory").SetInt("side", 2)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, wml.Marshal(root), 0o644); err != nil { t.Fatalf("write: %v", err) }
	return path
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"REDIS_URL", "DATABASE_URL", "MESSAGES_DIR", "REPLAY_MIN_TURNS", "REPLAY_REQUIRE_RANKED", "REPLAY_REJECT_DESYNC"} {
		t.Setenv(k, "")
	}
}

func TestParseCommandJSON(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	good := writeReplay(t, dir, "good.cfg", 6)
	short := writeReplay(t, dir, "short.cfg", 1)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"parse", "--json", good, short})
	err := root.Execute()
	if !errors.Is(err, errRejected) { t.Fatalf("expected errRejected, got %v", err) }

	var resp []replaydto.IngestResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil { t.Fatalf("decode output: %v\n%s", err, out.String()) }
	if len(resp) != 2 { t.Fatalf("responses = %d", len(resp)) }
	if resp[0].Match == nil || resp[0].Match.Winner != "bob" || resp[0].Match.MapName != "The Hamlets" { t.Fatalf("good replay: %+v", resp[0]) }
	if resp[1].Error == nil || resp[1].Error.Code != "replay.validation.too-short" || resp[1].Error.Retryable { t.Fatalf("short replay: %+v", resp[1]) }
}

func TestParseCommandText(t *testing.T) {
	isolateEnv(t)
	path := writeReplay(t, t.TempDir(), "game.cfg", 2)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"parse", "--min-turns", "2", path})
	if err := root.Execute(); err != nil { t.Fatalf("Execute: %v\n%s", err, out.String()) }
	if !strings.Contains(out.String(), "alice (Loyalists) vs bob (Knalgan Alliance) on The Hamlets: bob wins after 2 turns") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestLoginRequiresUser(t *testing.T) {
	isolateEnv(t)
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"login"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "--user") { t.Fatalf("expected --user error, got %v", err) }
}
