package matchrepo

import (
    "context"
    "sort"
    "strings"
    "sync"

    "github.com/clmates/wesnoth-tournament-manager-sub003/internal/domain"
)

// memrepo is the in-memory Repository used when no database is configured.
type memrepo struct {
    mu sync.RWMutex

    byID     map[string]*domain.MatchRecord
    byReplay map[string]*domain.MatchRecord
    byPlayer map[string][]*domain.MatchRecord // name -> matches, latest last
}

func NewMemoryRepository() Repository {
    return &memrepo{
        byID:     make(map[string]*domain.MatchRecord),
        byReplay: make(map[string]*domain.MatchRecord),
        byPlayer: make(map[string][]*domain.MatchRecord),
    }
}

func (m *memrepo) SaveMatch(ctx context.Context, rec *domain.MatchRecord) error {
    if rec == nil {
        return ErrDuplicateMatch
    }
    digest := strings.ToLower(strings.TrimSpace(rec.ReplaySHA256))

    m.mu.Lock()
    defer m.mu.Unlock()

    if _, exists := m.byReplay[digest]; exists {
        return ErrDuplicateMatch
    }
    if _, exists := m.byID[rec.ID]; exists {
        return ErrDuplicateMatch
    }

    cp := clone(rec)
    cp.ReplaySHA256 = digest
    m.byID[cp.ID] = cp
    m.byReplay[digest] = cp
    for _, p := range cp.Participants {
        m.byPlayer[p.Name] = append(m.byPlayer[p.Name], cp)
    }
    return nil
}

func (m *memrepo) GetMatch(ctx context.Context, id string) (*domain.MatchRecord, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if rec, ok := m.byID[id]; ok {
        return clone(rec), nil
    }
    return nil, nil
}

func (m *memrepo) GetByReplay(ctx context.Context, digest string) (*domain.MatchRecord, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if rec, ok := m.byReplay[strings.ToLower(strings.TrimSpace(digest))]; ok {
        return clone(rec), nil
    }
    return nil, nil
}

func (m *memrepo) RecentByPlayer(ctx context.Context, name string, limit int) ([]*domain.MatchRecord, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    list := m.byPlayer[name]
    if len(list) == 0 {
        return []*domain.MatchRecord{}, nil
    }
    items := append([]*domain.MatchRecord(nil), list...)
    sort.SliceStable(items, func(i, j int) bool {
        return items[i].IngestedAt.After(items[j].IngestedAt)
    })
    if limit > 0 && len(items) > limit {
        items = items[:limit]
    }
    out := make([]*domain.MatchRecord, len(items))
    for i, rec := range items {
        out[i] = clone(rec)
    }
    return out, nil
}

func clone(rec *domain.MatchRecord) *domain.MatchRecord {
    cp := *rec
    cp.Participants = append([]domain.MatchPlayer(nil), rec.Participants...)
    return &cp
}
