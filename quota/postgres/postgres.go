// Package postgres provides a PostgreSQL-backed QuotaLedger for searchrouter.
//
// Usage is stored one row per backend together with the calendar month it
// belongs to. Charges are single UPDATE statements that apply the lazy monthly
// reset, which makes the ledger safe to share between dispatcher instances.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sr "github.com/ineyio/searchrouter"
)

// Ledger is a PostgreSQL-backed QuotaLedger with monthly rollover.
type Ledger struct {
	pool        *pgxpool.Pool
	tablePrefix string
	now         func() time.Time
	logger      *slog.Logger
}

var (
	_ sr.QuotaLedger = (*Ledger)(nil)
	_ sr.LimitSetter = (*Ledger)(nil)
)

// Option configures Ledger.
type Option func(*Ledger)

// WithTablePrefix sets the table name prefix (default "searchrouter_").
func WithTablePrefix(prefix string) Option {
	return func(l *Ledger) { l.tablePrefix = prefix }
}

// WithClock sets the time source. Months are taken in the clock's location.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a new PostgreSQL-backed QuotaLedger. Call EnsureSchema before use.
func New(pool *pgxpool.Pool, opts ...Option) *Ledger {
	l := &Ledger{
		pool:        pool,
		tablePrefix: "searchrouter_",
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) quotasTable() string { return l.tablePrefix + "quotas" }

func (l *Ledger) period() string {
	return l.now().Format("2006-01")
}

// EnsureSchema creates the required table if it doesn't exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			backend TEXT PRIMARY KEY,
			quota_limit BIGINT NOT NULL,
			used BIGINT NOT NULL DEFAULT 0,
			period TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, l.quotasTable())
	if _, err := l.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("searchrouter/postgres: ensure schema: %w", err)
	}
	return nil
}

// EnsureLimits registers backends that are not in the ledger yet.
// Limits of registered backends are left untouched; use SetLimit to change them.
func (l *Ledger) EnsureLimits(ctx context.Context, limits map[string]int64) error {
	batch := &pgx.Batch{}
	for name, limit := range limits {
		batch.Queue(
			fmt.Sprintf(`INSERT INTO %s (backend, quota_limit, period) VALUES ($1, $2, $3)
				ON CONFLICT (backend) DO NOTHING`, l.quotasTable()),
			name, limit, l.period(),
		)
	}
	if err := l.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("searchrouter/postgres: ensure limits: %w", err)
	}
	return nil
}

// SetLimit sets the monthly limit of a backend (upsert).
func (l *Ledger) SetLimit(ctx context.Context, backend string, limit int64) error {
	if limit < sr.Unlimited {
		return fmt.Errorf("%w: limit must be >= -1, got %d", sr.ErrInvalidRequest, limit)
	}
	_, err := l.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (backend, quota_limit, period) VALUES ($1, $2, $3)
			ON CONFLICT (backend) DO UPDATE SET quota_limit = $2, updated_at = now()`,
			l.quotasTable()),
		backend, limit, l.period(),
	)
	if err != nil {
		return fmt.Errorf("searchrouter/postgres: set limit: %w", err)
	}
	return nil
}

// load reads a backend row. Usage from an earlier month reads as zero.
func (l *Ledger) load(ctx context.Context, backend string) (used, limit int64, ok bool, err error) {
	var period string
	err = l.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT quota_limit, used, period FROM %s WHERE backend = $1`, l.quotasTable()),
		backend,
	).Scan(&limit, &used, &period)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	if period != l.period() {
		used = 0
	}
	return used, limit, true, nil
}

// HasBudget reports whether backend is unlimited or has used < limit.
func (l *Ledger) HasBudget(ctx context.Context, backend string) (bool, error) {
	used, limit, ok, err := l.load(ctx, backend)
	if err != nil {
		return false, fmt.Errorf("searchrouter/postgres: has budget: %w", err)
	}
	if !ok {
		l.logger.Warn("backend not found in quota config", "backend", backend)
		return false, nil
	}
	if limit == sr.Unlimited {
		return true, nil
	}
	if used >= limit {
		l.logger.Warn("backend quota exhausted", "backend", backend, "used", used, "limit", limit)
		return false, nil
	}
	return true, nil
}

// Charge adds count to the backend's usage for the current month.
// Unknown backends are ignored with a warning.
func (l *Ledger) Charge(ctx context.Context, backend string, count int64) error {
	if count <= 0 {
		return fmt.Errorf("%w: charge count must be positive, got %d", sr.ErrInvalidRequest, count)
	}

	var used, limit int64
	err := l.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE %s
			SET used = CASE WHEN period = $3 THEN used + $1 ELSE $1 END,
			    period = $3,
			    updated_at = now()
			WHERE backend = $2
			RETURNING used, quota_limit`, l.quotasTable()),
		count, backend, l.period(),
	).Scan(&used, &limit)
	if errors.Is(err, pgx.ErrNoRows) {
		l.logger.Warn("cannot record quota for unknown backend", "backend", backend)
		return nil
	}
	if err != nil {
		return fmt.Errorf("searchrouter/postgres: charge: %w", err)
	}
	l.logger.Info("quota used", "backend", backend, "count", count, "used", used, "limit", limit)
	return nil
}

// Remaining returns limit - used, Unlimited, or 0 for unknown backends.
func (l *Ledger) Remaining(ctx context.Context, backend string) (int64, error) {
	used, limit, ok, err := l.load(ctx, backend)
	if err != nil {
		return 0, fmt.Errorf("searchrouter/postgres: remaining: %w", err)
	}
	if !ok {
		return 0, nil
	}
	if limit == sr.Unlimited {
		return sr.Unlimited, nil
	}
	return max(limit-used, 0), nil
}

// Status returns the usage of every registered backend.
func (l *Ledger) Status(ctx context.Context) (map[string]sr.QuotaStatus, error) {
	rows, err := l.pool.Query(ctx,
		fmt.Sprintf(`SELECT backend, quota_limit, used, period FROM %s`, l.quotasTable()))
	if err != nil {
		return nil, fmt.Errorf("searchrouter/postgres: status: %w", err)
	}
	defer rows.Close()

	current := l.period()
	status := make(map[string]sr.QuotaStatus)
	for rows.Next() {
		var name, period string
		var limit, used int64
		if err := rows.Scan(&name, &limit, &used, &period); err != nil {
			return nil, fmt.Errorf("searchrouter/postgres: status: %w", err)
		}
		if period != current {
			used = 0
		}
		status[name] = sr.NewQuotaStatus(used, limit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searchrouter/postgres: status: %w", err)
	}
	return status, nil
}

// Reset zeroes one backend's usage, or every backend's when backend is "".
func (l *Ledger) Reset(ctx context.Context, backend string) error {
	q := fmt.Sprintf(`UPDATE %s SET used = 0, period = $1, updated_at = now()`, l.quotasTable())
	args := []any{l.period()}
	if backend != "" {
		q += ` WHERE backend = $2`
		args = append(args, backend)
	}

	tag, err := l.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("searchrouter/postgres: reset: %w", err)
	}
	if backend != "" && tag.RowsAffected() == 0 {
		l.logger.Warn("cannot reset unknown backend", "backend", backend)
		return nil
	}
	l.logger.Info("reset quotas", "backend", backend, "rows", tag.RowsAffected())
	return nil
}
