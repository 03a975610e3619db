package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS mappings (
	notion_id        TEXT PRIMARY KEY,
	google_id        TEXT NOT NULL UNIQUE,
	notion_synced_at TIMESTAMPTZ,
	google_synced_at TIMESTAMPTZ
);
`

// PostgresStore keeps the mapping table in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and makes sure the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewPostgresStoreFromPool(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool. Close closes the pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, side model.Side, id string) (model.Mapping, error) {
	column := "notion_id"
	if side == model.SideGoogle {
		column = "google_id"
	}
	row := s.pool.QueryRow(ctx, `
		SELECT notion_id, google_id, notion_synced_at, google_synced_at
		FROM mappings WHERE `+column+` = $1`, id)
	m, err := scanPostgresMapping(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Mapping{}, ErrNotFound
	}
	return m, err
}

func (s *PostgresStore) Upsert(ctx context.Context, m model.Mapping) error {
	if m.NotionID == "" || m.GoogleID == "" {
		return fmt.Errorf("mapping needs both ids, got notion=%q google=%q", m.NotionID, m.GoogleID)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mappings (notion_id, google_id, notion_synced_at, google_synced_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (notion_id) DO UPDATE SET
			google_id = EXCLUDED.google_id,
			notion_synced_at = EXCLUDED.notion_synced_at,
			google_synced_at = EXCLUDED.google_synced_at`,
		m.NotionID, m.GoogleID, nullTime(m.NotionSyncedAt), nullTime(m.GoogleSyncedAt),
	)
	return s.mapError(err)
}

func (s *PostgresStore) DeleteWhere(ctx context.Context, pred func(model.Mapping) bool) (int, error) {
	all, err := s.ScanAll(ctx)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, m := range all {
		if pred(m) {
			ids = append(ids, m.NotionID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	cmd, err := s.pool.Exec(ctx, `DELETE FROM mappings WHERE notion_id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete mappings: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (s *PostgresStore) ScanAll(ctx context.Context) ([]model.Mapping, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT notion_id, google_id, notion_synced_at, google_synced_at
		FROM mappings ORDER BY notion_id`)
	if err != nil {
		return nil, fmt.Errorf("scan mappings: %w", err)
	}
	defer rows.Close()

	var out []model.Mapping
	for rows.Next() {
		m, err := scanPostgresMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
	}
	return err
}

func scanPostgresMapping(row pgx.Row) (model.Mapping, error) {
	var m model.Mapping
	var notionAt, googleAt *time.Time
	if err := row.Scan(&m.NotionID, &m.GoogleID, &notionAt, &googleAt); err != nil {
		return model.Mapping{}, err
	}
	if notionAt != nil {
		m.NotionSyncedAt = notionAt.UTC()
	}
	if googleAt != nil {
		m.GoogleSyncedAt = googleAt.UTC()
	}
	return m, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
