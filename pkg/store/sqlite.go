package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/harrisonrobin/tasklink/pkg/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mappings (
	notion_id        TEXT PRIMARY KEY,
	google_id        TEXT NOT NULL UNIQUE,
	notion_synced_at TEXT NOT NULL DEFAULT '',
	google_synced_at TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore persists mappings in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath. The caller is
// responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite store needs a path")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) FindByID(ctx context.Context, side model.Side, id string) (model.Mapping, error) {
	column := "notion_id"
	if side == model.SideGoogle {
		column = "google_id"
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT notion_id, google_id, notion_synced_at, google_synced_at
		FROM mappings WHERE `+column+` = ?`, id)
	m, err := scanSQLiteMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Mapping{}, ErrNotFound
	}
	return m, err
}

func (s *SQLiteStore) Upsert(ctx context.Context, m model.Mapping) error {
	if m.NotionID == "" || m.GoogleID == "" {
		return fmt.Errorf("mapping needs both ids, got notion=%q google=%q", m.NotionID, m.GoogleID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mappings (notion_id, google_id, notion_synced_at, google_synced_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(notion_id) DO UPDATE SET
			google_id = excluded.google_id,
			notion_synced_at = excluded.notion_synced_at,
			google_synced_at = excluded.google_synced_at`,
		m.NotionID, m.GoogleID, formatSQLiteTime(m.NotionSyncedAt), formatSQLiteTime(m.GoogleSyncedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: google task %s already linked", ErrConflict, m.GoogleID)
		}
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteWhere(ctx context.Context, pred func(model.Mapping) bool) (int, error) {
	all, err := s.ScanAll(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	n := 0
	for _, m := range all {
		if !pred(m) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM mappings WHERE notion_id = ?`, m.NotionID); err != nil {
			return 0, fmt.Errorf("delete mapping %s: %w", m.NotionID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ScanAll(ctx context.Context) ([]model.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT notion_id, google_id, notion_synced_at, google_synced_at
		FROM mappings ORDER BY notion_id`)
	if err != nil {
		return nil, fmt.Errorf("scan mappings: %w", err)
	}
	defer rows.Close()

	var out []model.Mapping
	for rows.Next() {
		m, err := scanSQLiteMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMapping(row sqliteScanner) (model.Mapping, error) {
	var m model.Mapping
	var notionAt, googleAt string
	if err := row.Scan(&m.NotionID, &m.GoogleID, &notionAt, &googleAt); err != nil {
		return model.Mapping{}, err
	}
	var err error
	if m.NotionSyncedAt, err = parseSQLiteTime(notionAt); err != nil {
		return model.Mapping{}, err
	}
	if m.GoogleSyncedAt, err = parseSQLiteTime(googleAt); err != nil {
		return model.Mapping{}, err
	}
	return m, nil
}

func formatSQLiteTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseSQLiteTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse synced time %q: %w", s, err)
	}
	return t, nil
}
