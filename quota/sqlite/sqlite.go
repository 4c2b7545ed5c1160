// Package sqlite provides a SQLite-backed snapshot store for the quota ledger.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	sr "github.com/ineyio/searchrouter"
	"github.com/ineyio/searchrouter/quota"
)

// Store persists ledger snapshots in two SQLite tables.
type Store struct {
	db          *sql.DB
	tablePrefix string
	owned       bool
}

var _ quota.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "searchrouter_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a store over an open database. Call EnsureSchema before use.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		tablePrefix: "searchrouter_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (and creates if needed) the SQLite database at path and ensures
// the tables exist. Close releases the database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("quota/sqlite: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("quota/sqlite: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("quota/sqlite: open: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("quota/sqlite: set busy_timeout: %w", err)
	}

	s := New(db, opts...)
	s.owned = true
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) quotasTable() string { return s.tablePrefix + "quotas" }
func (s *Store) metaTable() string   { return s.tablePrefix + "ledger_meta" }

// EnsureSchema creates the required tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  backend     TEXT PRIMARY KEY,
  used        INTEGER NOT NULL DEFAULT 0,
  limit_value INTEGER NOT NULL
);`, s.quotasTable()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);`, s.metaTable()),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("quota/sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

// Load reads the snapshot.
func (s *Store) Load(ctx context.Context) (quota.Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT value FROM %s WHERE key = 'last_reset';", s.metaTable()),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.Snapshot{}, sr.ErrSnapshotNotFound
	}
	if err != nil {
		return quota.Snapshot{}, fmt.Errorf("quota/sqlite: read last_reset: %w", err)
	}

	lastReset, err := quota.ParseTimestamp(raw)
	if err != nil {
		return quota.Snapshot{}, fmt.Errorf("quota/sqlite: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT backend, used, limit_value FROM %s;", s.quotasTable()))
	if err != nil {
		return quota.Snapshot{}, fmt.Errorf("quota/sqlite: read quotas: %w", err)
	}
	defer rows.Close()

	snap := quota.Snapshot{LastReset: lastReset, Quotas: make(map[string]quota.Entry)}
	for rows.Next() {
		var name string
		var e quota.Entry
		if err := rows.Scan(&name, &e.Used, &e.Limit); err != nil {
			return quota.Snapshot{}, fmt.Errorf("quota/sqlite: scan quota: %w", err)
		}
		snap.Quotas[name] = e
	}
	if err := rows.Err(); err != nil {
		return quota.Snapshot{}, fmt.Errorf("quota/sqlite: read quotas: %w", err)
	}
	return snap, nil
}

// Save replaces the stored snapshot in a single transaction.
func (s *Store) Save(ctx context.Context, snap quota.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("quota/sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ('last_reset', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value;`, s.metaTable()),
		snap.LastReset.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("quota/sqlite: write last_reset: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s;", s.quotasTable())); err != nil {
		return fmt.Errorf("quota/sqlite: clear quotas: %w", err)
	}
	for name, e := range snap.Quotas {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (backend, used, limit_value) VALUES (?, ?, ?);", s.quotasTable()),
			name, e.Used, e.Limit,
		)
		if err != nil {
			return fmt.Errorf("quota/sqlite: write quota %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("quota/sqlite: commit: %w", err)
	}
	return nil
}
