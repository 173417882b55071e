package matchrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/clmates/wesnoth-tournament-manager-sub003/internal/domain"
)

var ErrDuplicateMatch = errors.New("match for this replay already exists")

// Repository persists accepted matches. Lookups return (nil, nil) when
// nothing matches.
type Repository interface {
	SaveMatch(ctx context.Context, m *domain.MatchRecord) error
	GetMatch(ctx context.Context, id string) (*domain.MatchRecord, error)
	GetByReplay(ctx context.Context, digest string) (*domain.MatchRecord, error)
	RecentByPlayer(ctx context.Context, name string, limit int) ([]*domain.MatchRecord, error)
}

type PostgresRepository struct {
	db *sql.DB
}

// Open connects to databaseURL with the postgres driver and pings it.
func Open(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresRepository(db), nil
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Schema creates the match table when missing.
const Schema = `
		CREATE TABLE IF NOT EXISTS wesnoth_matches (
			id              TEXT PRIMARY KEY,
			replay_sha256   TEXT NOT NULL UNIQUE,
			source          TEXT NOT NULL DEFAULT '',
			winner          TEXT NOT NULL,
			loser           TEXT NOT NULL DEFAULT '',
			participants    JSONB NOT NULL,
			map_id          TEXT NOT NULL,
			map_name        TEXT NOT NULL DEFAULT '',
			era_id          TEXT NOT NULL DEFAULT '',
			turns           INTEGER NOT NULL,
			result_source   TEXT NOT NULL,
			forfeit         BOOLEAN NOT NULL DEFAULT FALSE,
			tournament      BOOLEAN NOT NULL DEFAULT FALSE,
			tournament_name TEXT NOT NULL DEFAULT '',
			auto_confirm    BOOLEAN NOT NULL DEFAULT FALSE,
			engine_version  TEXT NOT NULL DEFAULT '',
			summary         TEXT NOT NULL DEFAULT '',
			ingested_at     TIMESTAMPTZ NOT NULL
		)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create wesnoth_matches: %w", err)
	}
	return nil
}

const selectColumns = `
			id,
			replay_sha256,
			source,
			winner,
			loser,
			participants,
			map_id,
			map_name,
			era_id,
			turns,
			result_source,
			forfeit,
			tournament,
			tournament_name,
			auto_confirm,
			engine_version,
			summary,
			ingested_at`

func (r *PostgresRepository) SaveMatch(ctx context.Context, m *domain.MatchRecord) error {
	if m == nil {
		return fmt.Errorf("nil match payload")
	}
	participants, err := json.Marshal(m.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}

	const query = `
		INSERT INTO wesnoth_matches (` + selectColumns + `
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (replay_sha256) DO NOTHING
		RETURNING id`

	var id sql.NullString
	err = r.db.QueryRowContext(
		ctx,
		query,
		m.ID,
		m.ReplaySHA256,
		m.Source,
		m.Winner,
		m.Loser,
		participants,
		m.MapID,
		m.MapName,
		m.EraID,
		m.Turns,
		m.ResultSource,
		m.Forfeit,
		m.Tournament,
		m.TournamentName,
		m.AutoConfirm,
		m.EngineVersion,
		m.Summary,
		m.IngestedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return ErrDuplicateMatch
	}
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetMatch(ctx context.Context, id string) (*domain.MatchRecord, error) {
	const query = `SELECT` + selectColumns + `
		FROM wesnoth_matches
		WHERE id = $1`
	return r.selectOne(ctx, query, id)
}

func (r *PostgresRepository) GetByReplay(ctx context.Context, digest string) (*domain.MatchRecord, error) {
	const query = `SELECT` + selectColumns + `
		FROM wesnoth_matches
		WHERE replay_sha256 = $1`
	return r.selectOne(ctx, query, strings.ToLower(digest))
}

func (r *PostgresRepository) RecentByPlayer(ctx context.Context, name string, limit int) ([]*domain.MatchRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT` + selectColumns + `
		FROM wesnoth_matches
		WHERE participants @> jsonb_build_array(jsonb_build_object('Name', $1::text))
		ORDER BY ingested_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("select matches: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.MatchRecord, 0, limit)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) selectOne(ctx context.Context, query string, arg any) (*domain.MatchRecord, error) {
	m, err := scanMatch(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(row scanner) (*domain.MatchRecord, error) {
	var (
		m            domain.MatchRecord
		participants []byte
	)
	err := row.Scan(
		&m.ID,
		&m.ReplaySHA256,
		&m.Source,
		&m.Winner,
		&m.Loser,
		&participants,
		&m.MapID,
		&m.MapName,
		&m.EraID,
		&m.Turns,
		&m.ResultSource,
		&m.Forfeit,
		&m.Tournament,
		&m.TournamentName,
		&m.AutoConfirm,
		&m.EngineVersion,
		&m.Summary,
		&m.IngestedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan match: %w", err)
	}
	if err := json.Unmarshal(participants, &m.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	return &m, nil
}
