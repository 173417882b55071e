package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/matchrepo"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/msgcat"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/replay"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/replaycache"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
)

// sampleReplay builds a two-player save where side 2 surrenders.
func sampleReplay(a, b string, turns int) []byte {
	root := wml.NewNode(wml.RootTag)
	root.Set("version", "1.18.2")
	root.AddChild(wml.NewNode("multiplayer")).Set("mp_scenario", "multiplayer_Silverhead_Crossing").Set("mp_scenario_name", "Silverhead Crossing")
	start := root.AddChild(wml.NewNode("replay_start"))
	start.AddChild(wml.NewNode("side")).SetInt("side", 1).Set("current_player", a).Set("faction", "Drakes")
	start.AddChild(wml.NewNode("side")).SetInt("side", 2).Set("current_player", b).Set("faction", "Undead")
	rp := root.AddChild(wml.NewNode("replay"))
	for t := 0; t < turns; t++ {
		rp.AddChild(wml.NewNode("command")).AddChild(wml.NewNode("init_side")).SetInt("side_number", 1)
		rp.AddChild(wml.NewNode("command")).AddChild(wml.NewNode("init_side")).SetInt("side_number", 2)
	}
	cmd := rp.AddChild(wml.NewNode("command")).SetInt("from_side", 2)
	cmd.AddChild(wml.NewNode("fire_event")).Set("raise", "menu item surrender")
	in := rp.AddChild(wml.NewNode("command")).SetInt("from_side", 2)
	in.AddChild(wml.NewNode("input")).SetInt("value", 2)
	return wml.Marshal(root)
}

func testPolicy() replay.Policy {
	p := replay.DefaultPolicy()
	p.MinTurns = 3
	return p
}

func newCache(t *testing.T) *replaycache.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil { t.Fatalf("miniredis: %v", err) }
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return replaycache.NewStore(rdb, time.Hour)
}

func newService(t *testing.T, cfg Config) *Service {
	t.Helper()
	if cfg.Policy.MaxNodes == 0 { cfg.Policy = testPolicy() }
	svc, err := NewService(cfg)
	if err != nil { t.Fatalf("NewService: %v", err) }
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestIngestAcceptsAndCaches(t *testing.T) {
	repo := matchrepo.NewMemoryRepository()
	svc := newService(t, Config{Cache: newCache(t), Repo: repo, Workers: 2})
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "game.cfg")
	if err := os.WriteFile(path, sampleReplay("alice", "bob", 5), 0o644); err != nil { t.Fatalf("write: %v", err) }

	rec, err := svc.Ingest(ctx, FromFile(path))
	if err != nil { t.Fatalf("Ingest: %v", err) }
	if rec.Winner != "alice" || rec.Loser != "bob" || rec.Turns != 5 { t.Fatalf("unexpected record: %+v", rec) }
	if rec.ResultSource != string(replay.ResultSurrender) || !rec.Forfeit || !rec.AutoConfirm { t.Fatalf("surrender not recorded: %+v", rec) }
	if rec.Summary != "alice (Drakes) vs bob (Undead) on Silverhead Crossing: alice wins after 5 turns (forfeit)" { t.Fatalf("summary = %q", rec.Summary) }

	again, err := svc.Ingest(ctx, FromBytes("upload", sampleReplay("alice", "bob", 5)))
	if err != nil { t.Fatalf("second Ingest: %v", err) }
	if again.ID != rec.ID { t.Fatalf("same replay should map to the stored match: %s vs %s", again.ID, rec.ID) }

	stored, _ := repo.GetByReplay(ctx, rec.ReplaySHA256)
	if stored == nil || stored.ID != rec.ID { t.Fatalf("match not persisted: %+v", stored) }
}

func TestIngestRejectionCached(t *testing.T) {
	cache := newCache(t)
	svc := newService(t, Config{Cache: cache})
	ctx := context.Background()
	short := sampleReplay("alice", "bob", 1)

	_, err := svc.Ingest(ctx, FromBytes("short", short))
	if !replay.IsKind(err, replay.ValidationTooShort) { t.Fatalf("expected too-short, got %v", err) }

	_, err = svc.Ingest(ctx, FromBytes("short", short))
	var rej *replaycache.Rejection
	if !errors.As(err, &rej) { t.Fatalf("expected cached rejection, got %v", err) }
	if key, _ := msgcat.Key(err); key != "replay.validation.too-short" { t.Fatalf("key = %q", key) }
	if !replay.IsKind(err, replay.ValidationTooShort) { t.Fatalf("cached rejection lost its kind: %v", err) }

	cat, cerr := msgcat.New("")
	if cerr != nil { t.Fatalf("msgcat: %v", cerr) }
	if got := cat.Describe(err); got != "The game is too short to be ranked (1 turns, minimum 3)." {
		t.Fatalf("Describe = %q", got)
	}
}

func TestIngestDuplicateWithoutCache(t *testing.T) {
	repo := matchrepo.NewMemoryRepository()
	svc := newService(t, Config{Repo: repo})
	ctx := context.Background()
	raw := sampleReplay("carol", "dave", 4)

	first, err := svc.Ingest(ctx, FromBytes("a", raw))
	if err != nil { t.Fatalf("Ingest: %v", err) }
	second, err := svc.Ingest(ctx, FromBytes("b", raw))
	if err != nil { t.Fatalf("Ingest dup: %v", err) }
	if first.ID != second.ID { t.Fatalf("duplicate replay created a second match") }
}

type fetchFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

func TestIngestURLAndErrors(t *testing.T) {
	fetcher := fetchFunc(func(ctx context.Context, url string) ([]byte, error) {
		if url == "https://replays.wesnoth.org/ok.gz" { return sampleReplay("erin", "frank", 3), nil }
		return nil, errors.New("404")
	})
	svc := newService(t, Config{Fetcher: fetcher})
	ctx := context.Background()

	rec, err := svc.Ingest(ctx, FromURL("https://replays.wesnoth.org/ok.gz"))
	if err != nil || rec.Winner != "erin" { t.Fatalf("Ingest url: %+v %v", rec, err) }
	if _, err := svc.Ingest(ctx, FromURL("https://replays.wesnoth.org/missing")); err == nil { t.Fatalf("expected fetch error") }
	if _, err := svc.Ingest(ctx, FromFile(filepath.Join(t.TempDir(), "absent"))); !errors.Is(err, os.ErrNotExist) { t.Fatalf("expected not-exist, got %v", err) }

	p := testPolicy()
	p.MaxDecodedBytes = 16
	small := newService(t, Config{Policy: p})
	if _, err := small.Ingest(ctx, FromBytes("big", sampleReplay("a", "b", 3))); !errors.Is(err, ErrSourceTooLarge) { t.Fatalf("expected ErrSourceTooLarge, got %v", err) }
}

func TestIngestBatchIndependent(t *testing.T) {
	svc := newService(t, Config{Workers: 2})
	var srcs []Source
	for i := 0; i < 8; i++ {
		turns := 4
		if i%3 == 0 { turns = 1 }
		srcs = append(srcs, FromBytes(fmt.Sprintf("g%d", i), sampleReplay(fmt.Sprintf("p%da", i), fmt.Sprintf("p%db", i), turns)))
	}
	srcs = append(srcs, FromBytes("garbage", []byte{0x00, 0x01, 0x02}))

	out := svc.IngestBatch(context.Background(), srcs)
	if len(out) != len(srcs) { t.Fatalf("outcomes = %d", len(out)) }
	for i, o := range out {
		if o.Source.Ref != srcs[i].Ref { t.Fatalf("outcome %d out of order: %s", i, o.Source.Ref) }
		switch {
		case i == 8:
			var cerr *wml.ContainerError
			if !errors.As(o.Err, &cerr) { t.Fatalf("garbage: expected ContainerError, got %v", o.Err) }
		case i%3 == 0:
			if !replay.IsKind(o.Err, replay.ValidationTooShort) { t.Fatalf("g%d: expected too-short, got %v", i, o.Err) }
		default:
			if o.Err != nil || o.Record.Winner != fmt.Sprintf("p%da", i) { t.Fatalf("g%d: %+v %v", i, o.Record, o.Err) }
		}
	}
}

func TestIngestAfterClose(t *testing.T) {
	svc, err := NewService(Config{Policy: testPolicy()})
	if err != nil { t.Fatalf("NewService: %v", err) }
	_ = svc.Close()
	if _, err := svc.Ingest(context.Background(), FromBytes("x", sampleReplay("a", "b", 3))); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestNewServiceRejectsBadPolicy(t *testing.T) {
	p := testPolicy()
	p.MaxNodes = -1
	if _, err := NewService(Config{Policy: p}); !errors.Is(err, replay.ErrInvalidPolicy) { t.Fatalf("expected ErrInvalidPolicy, got %v", err) }
}
