// Package quota provides the in-process quota ledger for searchrouter and the
// stores it persists to.
//
// A Ledger keeps the whole usage snapshot in memory behind a single mutex and
// writes it through to its Store after every mutation. Stores only move
// snapshots: the JSON file store (default), and the SQLite and Badger stores in
// the sub-packages. For ledgers shared between processes see quota/redis and
// quota/postgres.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	sr "github.com/ineyio/searchrouter"
)

// Store persists ledger snapshots.
type Store interface {
	// Load returns the stored snapshot, or searchrouter.ErrSnapshotNotFound.
	Load(ctx context.Context) (Snapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap Snapshot) error
}

// Ledger is an in-process QuotaLedger with monthly rollover.
type Ledger struct {
	mu     sync.Mutex
	store  Store
	limits map[string]int64
	snap   Snapshot
	now    func() time.Time
	logger *slog.Logger
}

var (
	_ sr.QuotaLedger = (*Ledger)(nil)
	_ sr.LimitSetter = (*Ledger)(nil)
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithStore sets the store the ledger loads from and writes through to.
// Without a store the ledger lives in memory only.
func WithStore(s Store) Option {
	return func(l *Ledger) { l.store = s }
}

// WithLimits sets the limits used for fresh ledgers and for backends missing
// from a loaded snapshot. Stored limits of known backends are kept.
func WithLimits(limits map[string]int64) Option {
	return func(l *Ledger) { l.limits = maps.Clone(limits) }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a ledger and loads it from its store.
// A missing or unreadable snapshot yields a fresh ledger; a snapshot from an
// earlier month is rolled over before use.
func NewLedger(ctx context.Context, opts ...Option) *Ledger {
	l := &Ledger{
		limits: sr.DefaultLimits(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.load(ctx)
	return l
}

func (l *Ledger) load(ctx context.Context) {
	if l.store == nil {
		l.snap = l.fresh()
		return
	}

	snap, err := l.store.Load(ctx)
	switch {
	case errors.Is(err, sr.ErrSnapshotNotFound):
		l.logger.Info("quota snapshot not found, initializing new quotas")
		l.snap = l.fresh()
		_ = l.persist(ctx)
		return
	case err != nil:
		l.logger.Error("failed to load quotas, initializing new quotas", "error", err)
		l.snap = l.fresh()
		_ = l.persist(ctx)
		return
	}

	l.snap = snap
	if l.snap.Quotas == nil {
		l.snap.Quotas = make(map[string]Entry)
	}

	changed := false
	for name, limit := range l.limits {
		if _, ok := l.snap.Quotas[name]; !ok {
			l.snap.Quotas[name] = Entry{Limit: limit}
			changed = true
		}
	}
	if l.rollover() {
		changed = true
	}
	if changed {
		_ = l.persist(ctx)
	}
	l.logger.Info("loaded quotas", "backends", len(l.snap.Quotas))
}

func (l *Ledger) fresh() Snapshot {
	snap := Snapshot{
		LastReset: l.now(),
		Quotas:    make(map[string]Entry, len(l.limits)),
	}
	for name, limit := range l.limits {
		snap.Quotas[name] = Entry{Limit: limit}
	}
	return snap
}

// rollover zeroes usage when the calendar month changed since the last reset.
// Limits are kept. Must be called with lock held.
func (l *Ledger) rollover() bool {
	now := l.now()
	last := l.snap.LastReset.In(now.Location())
	if last.Year() == now.Year() && last.Month() == now.Month() {
		return false
	}

	l.logger.Info("monthly quota reset",
		"last_reset", last.Format(time.DateOnly),
		"current", now.Format(time.DateOnly),
	)
	for name, e := range l.snap.Quotas {
		e.Used = 0
		l.snap.Quotas[name] = e
	}
	l.snap.LastReset = now
	return true
}

// sync applies a pending rollover and persists it. Must be called with lock held.
func (l *Ledger) sync(ctx context.Context) {
	if l.rollover() {
		_ = l.persist(ctx)
	}
}

// persist writes the snapshot through to the store. On failure the in-memory
// state stays authoritative and the returned error wraps ErrNotDurable.
// Must be called with lock held.
func (l *Ledger) persist(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.Save(ctx, l.snap.Clone()); err != nil {
		l.logger.Error("failed to save quotas", "error", err)
		return fmt.Errorf("%w: %w", sr.ErrNotDurable, err)
	}
	return nil
}

// HasBudget reports whether backend is unlimited or has used < limit.
func (l *Ledger) HasBudget(ctx context.Context, backend string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sync(ctx)

	e, ok := l.snap.Quotas[backend]
	if !ok {
		l.logger.Warn("backend not found in quota config", "backend", backend)
		return false, nil
	}
	if e.Limit == sr.Unlimited {
		return true, nil
	}
	if e.Used >= e.Limit {
		l.logger.Warn("backend quota exhausted", "backend", backend, "used", e.Used, "limit", e.Limit)
		return false, nil
	}
	return true, nil
}

// Charge adds count to the backend's usage and persists the ledger.
// Unknown backends are ignored with a warning.
func (l *Ledger) Charge(ctx context.Context, backend string, count int64) error {
	if count <= 0 {
		return fmt.Errorf("%w: charge count must be positive, got %d", sr.ErrInvalidRequest, count)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sync(ctx)

	e, ok := l.snap.Quotas[backend]
	if !ok {
		l.logger.Warn("cannot record quota for unknown backend", "backend", backend)
		return nil
	}
	e.Used += count
	l.snap.Quotas[backend] = e

	err := l.persist(ctx)
	l.logger.Info("quota used", "backend", backend, "count", count, "used", e.Used, "limit", e.Limit)
	return err
}

// Remaining returns limit - used, Unlimited, or 0 for unknown backends.
func (l *Ledger) Remaining(ctx context.Context, backend string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sync(ctx)

	e, ok := l.snap.Quotas[backend]
	if !ok {
		return 0, nil
	}
	if e.Limit == sr.Unlimited {
		return sr.Unlimited, nil
	}
	return max(e.Limit-e.Used, 0), nil
}

// Status returns the usage of every known backend.
func (l *Ledger) Status(ctx context.Context) (map[string]sr.QuotaStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sync(ctx)

	status := make(map[string]sr.QuotaStatus, len(l.snap.Quotas))
	for name, e := range l.snap.Quotas {
		status[name] = sr.NewQuotaStatus(e.Used, e.Limit)
	}
	return status, nil
}

// Reset zeroes one backend's usage, or every backend's when backend is "".
// Resetting every backend also moves the last reset time to now.
func (l *Ledger) Reset(ctx context.Context, backend string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if backend == "" {
		for name, e := range l.snap.Quotas {
			e.Used = 0
			l.snap.Quotas[name] = e
		}
		l.snap.LastReset = l.now()
		l.logger.Info("reset all quotas")
		return l.persist(ctx)
	}

	e, ok := l.snap.Quotas[backend]
	if !ok {
		l.logger.Warn("cannot reset unknown backend", "backend", backend)
		return nil
	}
	e.Used = 0
	l.snap.Quotas[backend] = e
	l.logger.Info("reset quota", "backend", backend)
	return l.persist(ctx)
}

// SetLimit sets the monthly limit of a backend, adding it if unknown.
func (l *Ledger) SetLimit(ctx context.Context, backend string, limit int64) error {
	if limit < sr.Unlimited {
		return fmt.Errorf("%w: limit must be >= -1, got %d", sr.ErrInvalidRequest, limit)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.snap.Quotas[backend]
	if ok && e.Limit == limit {
		return nil
	}
	e.Limit = limit
	l.snap.Quotas[backend] = e
	return l.persist(ctx)
}

// Snapshot returns a copy of the current ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap.Clone()
}
