// Package redis provides a Redis-backed QuotaLedger for searchrouter.
//
// Each backend's usage lives in its own hash together with its limit and the
// calendar month the usage belongs to. Charges run as an atomic Lua script that
// also applies the lazy monthly reset, so several dispatcher instances can
// share one ledger.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	sr "github.com/ineyio/searchrouter"
)

// Ledger is a Redis-backed QuotaLedger with monthly rollover.
type Ledger struct {
	client    goredis.Cmdable
	keyPrefix string
	now       func() time.Time
	logger    *slog.Logger
}

var (
	_ sr.QuotaLedger = (*Ledger)(nil)
	_ sr.LimitSetter = (*Ledger)(nil)
)

// Option configures Ledger.
type Option func(*Ledger)

// WithKeyPrefix sets the Redis key prefix (default "{searchrouter}:quota:").
// On Redis Cluster the prefix must carry a hash tag: Reset and EnsureLimits
// touch several keys in one transaction, which must share a slot.
func WithKeyPrefix(prefix string) Option {
	return func(l *Ledger) { l.keyPrefix = prefix }
}

// WithClock sets the time source. Months are taken in the clock's location.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a new Redis-backed QuotaLedger.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Ledger {
	l := &Ledger{
		client:    client,
		keyPrefix: "{searchrouter}:quota:",
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) backendKey(backend string) string {
	return l.keyPrefix + "backend:" + backend
}

func (l *Ledger) indexKey() string {
	return l.keyPrefix + "backends"
}

func (l *Ledger) period() string {
	return l.now().Format("2006-01")
}

// chargeScript atomically applies the monthly reset and adds to usage.
// KEYS[1] = backend hash key
// ARGV[1] = count
// ARGV[2] = current period (YYYY-MM)
//
// Returns the new usage, or -2 when the backend is unknown.
var chargeScript = goredis.NewScript(`
local key = KEYS[1]
local count = tonumber(ARGV[1])
local period = ARGV[2]

if not redis.call("HGET", key, "limit") then
    return -2
end

if redis.call("HGET", key, "period") ~= period then
    redis.call("HSET", key, "used", "0", "period", period)
end

return redis.call("HINCRBY", key, "used", count)
`)

// EnsureLimits registers backends that are not in the ledger yet.
// Limits of registered backends are left untouched; use SetLimit to change them.
func (l *Ledger) EnsureLimits(ctx context.Context, limits map[string]int64) error {
	period := l.period()
	for name, limit := range limits {
		key := l.backendKey(name)
		_, err := l.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.HSetNX(ctx, key, "limit", limit)
			p.HSetNX(ctx, key, "used", 0)
			p.HSetNX(ctx, key, "period", period)
			p.SAdd(ctx, l.indexKey(), name)
			return nil
		})
		if err != nil {
			return fmt.Errorf("searchrouter/redis: ensure limit %q: %w", name, err)
		}
	}
	return nil
}

// SetLimit sets the monthly limit of a backend, adding it if unknown.
func (l *Ledger) SetLimit(ctx context.Context, backend string, limit int64) error {
	if limit < sr.Unlimited {
		return fmt.Errorf("%w: limit must be >= -1, got %d", sr.ErrInvalidRequest, limit)
	}
	key := l.backendKey(backend)
	_, err := l.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, key, "limit", limit)
		p.HSetNX(ctx, key, "used", 0)
		p.HSetNX(ctx, key, "period", l.period())
		p.SAdd(ctx, l.indexKey(), backend)
		return nil
	})
	if err != nil {
		return fmt.Errorf("searchrouter/redis: set limit: %w", err)
	}
	return nil
}

// entry is the current-month view of a backend hash.
type entry struct {
	used, limit int64
}

// load reads a backend's entry. Usage from an earlier month reads as zero.
func (l *Ledger) load(ctx context.Context, backend string) (entry, bool, error) {
	vals, err := l.client.HMGet(ctx, l.backendKey(backend), "limit", "used", "period").Result()
	if err != nil {
		return entry{}, false, err
	}
	return l.parse(vals)
}

func (l *Ledger) parse(vals []any) (entry, bool, error) {
	if len(vals) < 3 || vals[0] == nil {
		return entry{}, false, nil
	}

	var e entry
	var err error
	if e.limit, err = strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64); err != nil {
		return entry{}, false, fmt.Errorf("parse limit: %w", err)
	}
	if period, _ := vals[2].(string); period == l.period() && vals[1] != nil {
		if e.used, err = strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64); err != nil {
			return entry{}, false, fmt.Errorf("parse used: %w", err)
		}
	}
	return e, true, nil
}

// HasBudget reports whether backend is unlimited or has used < limit.
func (l *Ledger) HasBudget(ctx context.Context, backend string) (bool, error) {
	e, ok, err := l.load(ctx, backend)
	if err != nil {
		return false, fmt.Errorf("searchrouter/redis: has budget: %w", err)
	}
	if !ok {
		l.logger.Warn("backend not found in quota config", "backend", backend)
		return false, nil
	}
	if e.limit == sr.Unlimited {
		return true, nil
	}
	if e.used >= e.limit {
		l.logger.Warn("backend quota exhausted", "backend", backend, "used", e.used, "limit", e.limit)
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

	used, err := chargeScript.Run(ctx, l.client,
		[]string{l.backendKey(backend)},
		count, l.period(),
	).Int64()
	if err != nil {
		return fmt.Errorf("searchrouter/redis: charge: %w", err)
	}
	if used == -2 {
		l.logger.Warn("cannot record quota for unknown backend", "backend", backend)
		return nil
	}
	l.logger.Info("quota used", "backend", backend, "count", count, "used", used)
	return nil
}

// Remaining returns limit - used, Unlimited, or 0 for unknown backends.
func (l *Ledger) Remaining(ctx context.Context, backend string) (int64, error) {
	e, ok, err := l.load(ctx, backend)
	if err != nil {
		return 0, fmt.Errorf("searchrouter/redis: remaining: %w", err)
	}
	if !ok {
		return 0, nil
	}
	if e.limit == sr.Unlimited {
		return sr.Unlimited, nil
	}
	return max(e.limit-e.used, 0), nil
}

// Status returns the usage of every registered backend.
func (l *Ledger) Status(ctx context.Context) (map[string]sr.QuotaStatus, error) {
	names, err := l.client.SMembers(ctx, l.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("searchrouter/redis: status: %w", err)
	}
	if len(names) == 0 {
		return map[string]sr.QuotaStatus{}, nil
	}

	cmds := make([]*goredis.SliceCmd, len(names))
	_, err = l.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = p.HMGet(ctx, l.backendKey(name), "limit", "used", "period")
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("searchrouter/redis: status: %w", err)
	}

	status := make(map[string]sr.QuotaStatus, len(names))
	for i, name := range names {
		e, ok, err := l.parse(cmds[i].Val())
		if err != nil {
			return nil, fmt.Errorf("searchrouter/redis: status %q: %w", name, err)
		}
		if ok {
			status[name] = sr.NewQuotaStatus(e.used, e.limit)
		}
	}
	return status, nil
}

// Reset zeroes one backend's usage, or every backend's when backend is "".
func (l *Ledger) Reset(ctx context.Context, backend string) error {
	names := []string{backend}
	if backend == "" {
		var err error
		names, err = l.client.SMembers(ctx, l.indexKey()).Result()
		if err != nil {
			return fmt.Errorf("searchrouter/redis: reset: %w", err)
		}
	} else {
		n, err := l.client.Exists(ctx, l.backendKey(backend)).Result()
		if err != nil {
			return fmt.Errorf("searchrouter/redis: reset: %w", err)
		}
		if n == 0 {
			l.logger.Warn("cannot reset unknown backend", "backend", backend)
			return nil
		}
	}

	if len(names) == 0 {
		return nil
	}

	period := l.period()
	_, err := l.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for _, name := range names {
			p.HSet(ctx, l.backendKey(name), "used", 0, "period", period)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("searchrouter/redis: reset: %w", err)
	}
	l.logger.Info("reset quotas", "backends", names)
	return nil
}
