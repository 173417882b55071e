package replaybuilder

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "go.uber.org/zap"

    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/config"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/ingest"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/matchrepo"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/msgcat"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/replaycache"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/replayfetch"
)

type Deps struct {
    Service *ingest.Service
    Cache   *replaycache.Store // nil without REDIS_URL
    Repo    matchrepo.Repository
    Fetcher *replayfetch.Client
    Catalog *msgcat.Catalog

    closers []func() error
}

// New wires the ingestion stack from cfg. Redis and Postgres are optional;
// without DATABASE_URL matches are kept in memory.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
    if cfg == nil {
        return nil, fmt.Errorf("nil config")
    }
    if logger == nil {
        logger = zap.NewNop()
    }

    d := &Deps{}
    ok := false
    defer func() {
        if !ok {
            _ = d.Close()
        }
    }()

    cat, err := msgcat.New(cfg.MessagesDir)
    if err != nil {
        return nil, fmt.Errorf("load messages: %w", err)
    }
    d.Catalog = cat

    if strings.TrimSpace(cfg.RedisURL) != "" {
        store, err := replaycache.Open(ctx, cfg.RedisURL, cfg.ReplayCacheTTL())
        if err != nil {
            return nil, fmt.Errorf("init replay cache: %w", err)
        }
        d.Cache = store
        d.closers = append(d.closers, store.Close)
    } else {
        logger.Info("REDIS_URL not set; replay cache disabled")
    }

    if strings.TrimSpace(cfg.DatabaseURL) != "" {
        repo, err := matchrepo.Open(ctx, cfg.DatabaseURL)
        if err != nil {
            return nil, fmt.Errorf("open postgres: %w", err)
        }
        d.closers = append(d.closers, repo.Close)
        if err := repo.EnsureSchema(ctx); err != nil {
            return nil, err
        }
        d.Repo = repo
    } else {
        logger.Info("DATABASE_URL not set; using in-memory match repository")
        d.Repo = matchrepo.NewMemoryRepository()
    }

    d.Fetcher = replayfetch.NewClient(
        replayfetch.WithTimeout(cfg.ReplayFetchTimeout()),
        replayfetch.WithMaxBytes(cfg.ReplayFetchMaxBytes),
        replayfetch.WithLogger(logger.Named("fetch")),
    )

    icfg := ingest.Config{
        Policy:  cfg.ReplayPolicy(),
        Workers: cfg.IngestWorkers,
        Repo:    d.Repo,
        Fetcher: d.Fetcher,
        Logger:  logger.Named("ingest"),
    }
    if d.Cache != nil {
        icfg.Cache = d.Cache
    }
    svc, err := ingest.NewService(icfg)
    if err != nil {
        return nil, fmt.Errorf("init ingest: %w", err)
    }
    d.Service = svc
    ok = true
    return d, nil
}

// Close stops the ingest service and releases connections.
func (d *Deps) Close() error {
    if d == nil {
        return nil
    }
    var errs []error
    if d.Service != nil {
        errs = append(errs, d.Service.Close())
    }
    for i := len(d.closers) - 1; i >= 0; i-- {
        errs = append(errs, d.closers[i]())
    }
    d.closers = nil
    return errors.Join(errs...)
}
