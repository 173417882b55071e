package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/domain"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/matchrepo"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/msgcat"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/replay"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/replaycache"
	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
)

// Cache stores parse outcomes by replay digest. *replaycache.Store
// implements it.
type Cache interface {
	Get(ctx context.Context, digest, policyTag string) (*replaycache.Entry, error)
	PutFact(ctx context.Context, digest, policyTag string, fact replay.MatchFact, matchID string) error
	PutRejection(ctx context.Context, digest, policyTag string, rej *replaycache.Rejection) error
}

type Config struct {
	Policy  replay.Policy
	Workers int
	Cache   Cache                // optional
	Repo    matchrepo.Repository // optional
	Fetcher Fetcher              // required for URL sources
	Logger  *zap.Logger
}

type Service struct {
	policy    replay.Policy
	policyTag string
	pool      *Pool
	cache     Cache
	repo      matchrepo.Repository
	fetcher   Fetcher
	log       *zap.Logger
	now       func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		policy:    cfg.Policy,
		policyTag: policyTag(cfg.Policy),
		pool:      NewPool(cfg.Workers),
		cache:     cfg.Cache,
		repo:      cfg.Repo,
		fetcher:   cfg.Fetcher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close stops accepting work and waits for running parses.
func (s *Service) Close() error { return s.pool.Close() }

// Ingest loads, validates and records one replay. A replay already seen
// under the same policy is answered from the cache, rejections included.
// A cached rejection is a *replaycache.Rejection that unwraps to the same
// typed wml or replay error a fresh parse would return.
func (s *Service) Ingest(ctx context.Context, src Source) (*domain.MatchRecord, error) {
	raw, err := s.load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", src, err)
	}
	sum := sha256.Sum256(raw)
	digest := hex.EncodeToString(sum[:])
	log := s.log.With(zap.String("source", src.String()), zap.String("sha256", digest[:12]))

	if rec, hit, err := s.fromCache(ctx, log, src, digest); hit {
		return rec, err
	}

	var fact replay.MatchFact
	started := time.Now()
	err = s.pool.Do(ctx, func() error {
		var perr error
		fact, perr = replay.ParseBytes(raw, s.policy)
		return perr
	})
	if err != nil {
		if deterministic(err) {
			s.storeRejection(ctx, log, digest, err)
		}
		log.Info("replay rejected", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return nil, fmt.Errorf("ingest %s: %w", src, err)
	}

	rec := s.record(fact, digest, src)
	if s.repo != nil {
		if err := s.repo.SaveMatch(ctx, rec); err != nil {
			if !errors.Is(err, matchrepo.ErrDuplicateMatch) {
				return nil, fmt.Errorf("save match: %w", err)
			}
			existing, gerr := s.repo.GetByReplay(ctx, digest)
			if gerr != nil {
				return nil, fmt.Errorf("load existing match: %w", gerr)
			}
			if existing != nil {
				rec = existing
			}
		}
	}
	if s.cache != nil {
		if err := s.cache.PutFact(ctx, digest, s.policyTag, fact, rec.ID); err != nil {
			log.Warn("replay cache store failed", zap.Error(err))
		}
	}
	log.Info("replay accepted", zap.String("match_id", rec.ID), zap.String("summary", rec.Summary), zap.Duration("elapsed", time.Since(started)))
	return rec, nil
}

func (s *Service) fromCache(ctx context.Context, log *zap.Logger, src Source, digest string) (*domain.MatchRecord, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	entry, err := s.cache.Get(ctx, digest, s.policyTag)
	if err != nil {
		log.Warn("replay cache lookup failed", zap.Error(err))
		return nil, false, nil
	}
	if entry == nil {
		return nil, false, nil
	}
	if entry.Rejection != nil {
		log.Debug("replay rejection served from cache", zap.String("key", entry.Rejection.Key))
		return nil, true, fmt.Errorf("ingest %s: %w", src, entry.Rejection)
	}
	if entry.Fact == nil {
		return nil, false, nil
	}
	if s.repo != nil && entry.MatchID != "" {
		if rec, err := s.repo.GetMatch(ctx, entry.MatchID); err == nil && rec != nil {
			return rec, true, nil
		}
	}
	rec := s.record(*entry.Fact, digest, src)
	if entry.MatchID != "" {
		rec.ID = entry.MatchID
	}
	log.Debug("replay fact served from cache", zap.String("match_id", rec.ID))
	return rec, true, nil
}

func (s *Service) storeRejection(ctx context.Context, log *zap.Logger, digest string, err error) {
	if s.cache == nil {
		return
	}
	key, data := msgcat.Key(err)
	rej := &replaycache.Rejection{Key: key, Data: data, Message: err.Error()}
	if perr := s.cache.PutRejection(ctx, digest, s.policyTag, rej); perr != nil {
		log.Warn("replay cache store failed", zap.Error(perr))
	}
}

// Outcome is the result of one source in a batch.
type Outcome struct {
	Source Source
	Record *domain.MatchRecord
	Err    error
}

// IngestBatch ingests every source concurrently. One failure does not
// affect the others; outcomes keep the order of srcs.
func (s *Service) IngestBatch(ctx context.Context, srcs []Source) []Outcome {
	batchID := uuid.NewString()
	out := make([]Outcome, len(srcs))
	var g errgroup.Group
	g.SetLimit(s.pool.Capacity() * 2)
	for i, src := range srcs {
		i, src := i, src
		g.Go(func() error {
			rec, err := s.Ingest(ctx, src)
			out[i] = Outcome{Source: src, Record: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range out {
		if o.Err != nil {
			failed++
		}
	}
	s.log.Info("replay batch finished", zap.String("batch_id", batchID), zap.Int("total", len(srcs)), zap.Int("failed", failed))
	return out
}

func (s *Service) record(f replay.MatchFact, digest string, src Source) *domain.MatchRecord {
	rec := &domain.MatchRecord{
		ID:             uuid.NewString(),
		ReplaySHA256:   digest,
		Source:         src.String(),
		Winner:         f.Winner,
		MapID:          f.MapID,
		MapName:        f.MapName,
		EraID:          f.EraID,
		Turns:          f.Turns,
		ResultSource:   string(f.ResultSource),
		Forfeit:        f.Forfeit,
		Tournament:     f.Ranked.Tournament,
		TournamentName: f.Ranked.TournamentName,
		AutoConfirm:    f.AutoConfirm,
		EngineVersion:  f.EngineVersion,
		Summary:        f.Summary(),
		IngestedAt:     s.now(),
	}
	if losers := f.Losers(); len(losers) > 0 {
		rec.Loser = losers[0].Name
	}
	for _, p := range f.Participants {
		rec.Participants = append(rec.Participants, domain.MatchPlayer{
			Side:        p.Side,
			Name:        p.Name,
			Faction:     p.Faction,
			Leader:      p.Leader,
			Disposition: string(p.Disposition),
		})
	}
	return rec
}

// deterministic reports whether err depends only on the replay bytes and
// the policy, so it is safe to cache.
func deterministic(err error) bool {
	var (
		cerr  *wml.ContainerError
		serr  *wml.SyntaxError
		sterr *wml.StructureError
		verr  *replay.ValidationError
	)
	return errors.As(err, &cerr) || errors.As(err, &serr) || errors.As(err, &sterr) || errors.As(err, &verr)
}

func policyTag(p replay.Policy) string {
	return fmt.Sprintf("t%d-b%d-d%d-n%d-r%t-s%t", p.MinTurns, p.MaxDecodedBytes, p.MaxDepth, p.MaxNodes, p.RequireRanked, p.RejectDesync)
}
