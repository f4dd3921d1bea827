// Package store persists the operator settings edited from the dashboard.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

const (
	keyInterval   = "interval_seconds"
	keyCloseDelay = "close_delay_seconds"
	keyOutputDir  = "output_dir"
	keyOpenOnce   = "open_once"
	keyAutoClick  = "auto_click"
)

// SQLiteStore keeps settings in a key/value table.
type SQLiteStore struct {
	db *sqlx.DB
}

// DefaultPath is the settings database inside the config directory.
func DefaultPath(configDir string) string {
	return filepath.Join(configDir, "settings.db")
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets a running watch read while the dashboard writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sqlx.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type settingRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// SaveSettings validates and writes every field in one transaction.
func (s *SQLiteStore) SaveSettings(ctx context.Context, st model.Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	rows := []settingRow{
		{keyInterval, strconv.FormatInt(int64(st.Interval/time.Second), 10)},
		{keyCloseDelay, strconv.FormatInt(int64(st.CloseDelay/time.Second), 10)},
		{keyOutputDir, st.OutputDir},
		{keyOpenOnce, strconv.FormatBool(st.OpenOnce)},
		{keyAutoClick, strconv.FormatBool(st.AutoClick)},
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Key, r.Value, now); err != nil {
			return fmt.Errorf("save setting %s: %w", r.Key, err)
		}
	}
	return tx.Commit()
}

// LoadSettings overlays stored values onto base. found is false when nothing
// has been saved yet. Unparseable values keep the base value.
func (s *SQLiteStore) LoadSettings(ctx context.Context, base model.Settings) (model.Settings, bool, error) {
	var rows []settingRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT key, value FROM settings"); err != nil {
		return base, false, fmt.Errorf("load settings: %w", err)
	}
	st := base
	for _, r := range rows {
		switch r.Key {
		case keyInterval:
			if n, err := strconv.ParseInt(r.Value, 10, 64); err == nil {
				st.Interval = time.Duration(n) * time.Second
			}
		case keyCloseDelay:
			if n, err := strconv.ParseInt(r.Value, 10, 64); err == nil {
				st.CloseDelay = time.Duration(n) * time.Second
			}
		case keyOutputDir:
			st.OutputDir = r.Value
		case keyOpenOnce:
			if b, err := strconv.ParseBool(r.Value); err == nil {
				st.OpenOnce = b
			}
		case keyAutoClick:
			if b, err := strconv.ParseBool(r.Value); err == nil {
				st.AutoClick = b
			}
		}
	}
	if st.Validate() != nil {
		return base, len(rows) > 0, nil
	}
	return st, len(rows) > 0, nil
}
