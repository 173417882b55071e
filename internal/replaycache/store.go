package replaycache

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/replay"
    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/wml"
)

const (
    DefaultTTL = 24 * time.Hour
    keyPrefix  = "replay:"
)

// Rejection is a cached deterministic parse or validation failure. It
// carries the message key so user text can be rendered without the
// original typed error.
type Rejection struct {
    Key     string         `json:"key"`
    Data    map[string]any `json:"data,omitempty"`
    Message string         `json:"message"`
}

func (r *Rejection) Error() string { return r.Message }

// MessageKey returns the catalog key and template data of the rejection.
func (r *Rejection) MessageKey() (string, map[string]any) { return r.Key, r.Data }

// Unwrap rebuilds the typed parse or validation error named by Key, so
// errors.As and replay.IsKind behave the same on a cache hit as on a fresh
// parse. Unknown keys unwrap to nil.
func (r *Rejection) Unwrap() error {
    switch {
    case strings.HasPrefix(r.Key, "replay.validation."):
        return &replay.ValidationError{
            Kind:   replay.ValidationErrorKind(strings.TrimPrefix(r.Key, "replay.validation.")),
            Field:  r.str("Field"),
            Detail: r.str("Detail"),
        }
    case strings.HasPrefix(r.Key, "replay.container."):
        return &wml.ContainerError{
            Kind:   wml.ContainerErrorKind(strings.TrimPrefix(r.Key, "replay.container.")),
            Format: wml.Format(r.str("Format")),
            Limit:  int64(r.num("Limit")),
        }
    case strings.HasPrefix(r.Key, "replay.structure."):
        return &wml.StructureError{
            Kind:  wml.StructureErrorKind(strings.TrimPrefix(r.Key, "replay.structure.")),
            Limit: r.num("Limit"),
            Tag:   r.str("Tag"),
        }
    case r.Key == "replay.syntax":
        return &wml.SyntaxError{
            Kind: wml.SyntaxErrorKind(r.str("Kind")),
            Line: r.num("Line"),
            Col:  r.num("Col"),
        }
    }
    return nil
}

func (r *Rejection) str(k string) string {
    s, _ := r.Data[k].(string)
    return s
}

// num reads an integer from Data, which holds float64 after a JSON round trip.
func (r *Rejection) num(k string) int {
    switch v := r.Data[k].(type) {
    case float64:
        return int(v)
    case int:
        return v
    case int64:
        return int(v)
    }
    return 0
}

// Entry is the cached outcome for one replay digest. Exactly one of Fact
// and Rejection is set.
type Entry struct {
    Fact      *replay.MatchFact `json:"fact,omitempty"`
    Rejection *Rejection        `json:"rejection,omitempty"`
    MatchID   string            `json:"match_id,omitempty"`
    StoredAt  time.Time         `json:"stored_at"`
}

type Store struct {
    rdb *redis.Client
    ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
    if ttl <= 0 { ttl = DefaultTTL }
    return &Store{rdb: rdb, ttl: ttl}
}

// Open connects to redisURL and pings it.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
    if strings.TrimSpace(redisURL) == "" {
        return nil, fmt.Errorf("REDIS_URL required for replay cache")
    }
    opts, err := parseRedisURL(redisURL)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opts)
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return NewStore(rdb, ttl), nil
}

func (s *Store) Close() error {
    if s == nil || s.rdb == nil { return nil }
    return s.rdb.Close()
}

// key scopes an entry by digest and policy, since the same bytes can pass
// one policy and fail another.
func (s *Store) key(digest, policyTag string) string {
    return keyPrefix + strings.TrimSpace(policyTag) + ":" + strings.ToLower(strings.TrimSpace(digest))
}

// Get returns the cached entry, or nil when there is none.
func (s *Store) Get(ctx context.Context, digest, policyTag string) (*Entry, error) {
    raw, err := s.rdb.Get(ctx, s.key(digest, policyTag)).Bytes()
    if errors.Is(err, redis.Nil) { return nil, nil }
    if err != nil { return nil, err }
    var e Entry
    if err := json.Unmarshal(raw, &e); err != nil { return nil, fmt.Errorf("decode cache entry: %w", err) }
    return &e, nil
}

func (s *Store) PutFact(ctx context.Context, digest, policyTag string, fact replay.MatchFact, matchID string) error {
    return s.put(ctx, digest, policyTag, &Entry{Fact: &fact, MatchID: matchID, StoredAt: time.Now().UTC()})
}

func (s *Store) PutRejection(ctx context.Context, digest, policyTag string, rej *Rejection) error {
    if rej == nil { return nil }
    return s.put(ctx, digest, policyTag, &Entry{Rejection: rej, StoredAt: time.Now().UTC()})
}

func (s *Store) put(ctx context.Context, digest, policyTag string, e *Entry) error {
    raw, err := json.Marshal(e)
    if err != nil { return err }
    return s.rdb.Set(ctx, s.key(digest, policyTag), raw, s.ttl).Err()
}

// Forget drops the entry so the replay is parsed again on next ingest.
func (s *Store) Forget(ctx context.Context, digest, policyTag string) error {
    return s.rdb.Del(ctx, s.key(digest, policyTag)).Err()
}

func parseRedisURL(raw string) (*redis.Options, error) {
    u, err := url.Parse(raw)
    if err != nil { return nil, err }
    if u.Scheme != "redis" && u.Scheme != "rediss" { return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme) }
    db := 0
    if p := strings.TrimPrefix(u.Path, "/"); p != "" { if n, err := strconv.Atoi(p); err == nil { db = n } }
    pass, _ := u.User.Password()
    return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
