package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/panjf2000/ants/v2"
	goredis "github.com/redis/go-redis/v9"

	sr "github.com/ineyio/searchrouter"
	"github.com/ineyio/searchrouter/backend/bing"
	"github.com/ineyio/searchrouter/backend/duckduckgo"
	"github.com/ineyio/searchrouter/backend/serpapi"
	"github.com/ineyio/searchrouter/backend/serper"
	"github.com/ineyio/searchrouter/backend/tavily"
	"github.com/ineyio/searchrouter/meter"
	"github.com/ineyio/searchrouter/policy"
	"github.com/ineyio/searchrouter/quota"
	"github.com/ineyio/searchrouter/quota/badger"
	"github.com/ineyio/searchrouter/quota/postgres"
	"github.com/ineyio/searchrouter/quota/redis"
	"github.com/ineyio/searchrouter/quota/sqlite"
)

// runtime is a dispatcher assembled from config together with the resources
// it holds open.
type runtime struct {
	dispatcher *sr.Dispatcher
	ledger     sr.QuotaLedger
	closers    []func() error
}

// Close releases resources in reverse acquisition order.
func (r *runtime) Close() error {
	var errs []error
	for _, fn := range slices.Backward(r.closers) {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg sr.Config, logger *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	backends, err := buildBackends(cfg)
	if err != nil {
		return nil, err
	}

	rt.ledger, err = rt.buildLedger(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := applyLimits(ctx, rt.ledger, cfg, logger); err != nil {
		return nil, err
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	opts := []sr.Option{
		sr.WithLedger(rt.ledger),
		sr.WithCatalog(catalog),
		sr.WithSelector(policy.FromConfig(cfg.Auto)),
		sr.WithMeter(newMeter(ctx, logger)),
		sr.WithLogger(logger),
		sr.WithDefaultStrategy(cfg.Defaults.Strategy),
		sr.WithDefaultMaxResults(cfg.Defaults.MaxResults),
		sr.WithDefaultDeadline(cfg.Defaults.Deadline),
		sr.WithCancelGrace(cfg.Defaults.CancelGrace),
	}
	if cfg.CircuitBreaker {
		opts = append(opts, sr.WithHealthTracker(sr.NewHealthTracker()))
	}
	if cfg.WorkerPool > 0 {
		pool, err := ants.NewPool(cfg.WorkerPool)
		if err != nil {
			return nil, fmt.Errorf("create worker pool: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Release(); return nil })
		opts = append(opts, sr.WithWorkerPool(pool))
	}

	rt.dispatcher, err = sr.NewDispatcher(backends, opts...)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// newMeter logs dispatch events unless info logging is off.
func newMeter(ctx context.Context, logger *slog.Logger) sr.Meter {
	if !logger.Enabled(ctx, slog.LevelInfo) {
		return &meter.NoopMeter{}
	}
	return meter.NewLogMeter(logger)
}

func buildBackends(cfg sr.Config) ([]sr.Backend, error) {
	backends := make([]sr.Backend, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		switch b.Name {
		case sr.BackendSerpAPI:
			var opts []serpapi.Option
			if b.BaseURL != "" {
				opts = append(opts, serpapi.WithBaseURL(b.BaseURL))
			}
			if b.NumResults > 0 {
				opts = append(opts, serpapi.WithNumResults(b.NumResults))
			}
			backends = append(backends, serpapi.New(b.APIKey, opts...))
		case sr.BackendTavily:
			var opts []tavily.Option
			if b.BaseURL != "" {
				opts = append(opts, tavily.WithBaseURL(b.BaseURL))
			}
			if b.NumResults > 0 {
				opts = append(opts, tavily.WithNumResults(b.NumResults))
			}
			backends = append(backends, tavily.New(b.APIKey, opts...))
		case sr.BackendSerper:
			var opts []serper.Option
			if b.BaseURL != "" {
				opts = append(opts, serper.WithBaseURL(b.BaseURL))
			}
			if b.NumResults > 0 {
				opts = append(opts, serper.WithNumResults(b.NumResults))
			}
			backends = append(backends, serper.New(b.APIKey, opts...))
		case sr.BackendDuckDuckGo:
			var opts []duckduckgo.Option
			if b.BaseURL != "" {
				opts = append(opts, duckduckgo.WithBaseURL(b.BaseURL))
			}
			if b.NumResults > 0 {
				opts = append(opts, duckduckgo.WithNumResults(b.NumResults))
			}
			backends = append(backends, duckduckgo.New(opts...))
		case sr.BackendBing:
			var opts []bing.Option
			if b.BaseURL != "" {
				opts = append(opts, bing.WithBaseURL(b.BaseURL))
			}
			if b.NumResults > 0 {
				opts = append(opts, bing.WithNumResults(b.NumResults))
			}
			backends = append(backends, bing.New(opts...))
		default:
			return nil, fmt.Errorf("unknown backend %q", b.Name)
		}
	}
	return backends, nil
}

func (rt *runtime) buildLedger(ctx context.Context, cfg sr.Config, logger *slog.Logger) (sr.QuotaLedger, error) {
	limits := cfg.Limits()
	dsn := cfg.Ledger.DSN

	newLedger := func(store quota.Store) sr.QuotaLedger {
		opts := []quota.Option{quota.WithLimits(limits), quota.WithLogger(logger)}
		if store != nil {
			opts = append(opts, quota.WithStore(store))
		}
		return quota.NewLedger(ctx, opts...)
	}

	switch cfg.Ledger.Driver {
	case sr.LedgerMemory:
		return newLedger(nil), nil

	case sr.LedgerFile:
		return newLedger(quota.NewFileStore(dsn)), nil

	case sr.LedgerSQLite:
		store, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, store.Close)
		return newLedger(store), nil

	case sr.LedgerBadger:
		store, err := badger.Open(dsn)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, store.Close)
		return newLedger(store), nil

	case sr.LedgerRedis:
		opts, err := goredis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		rt.closers = append(rt.closers, client.Close)
		l := redis.New(client, redis.WithLogger(logger))
		if err := l.EnsureLimits(ctx, limits); err != nil {
			return nil, err
		}
		return l, nil

	case sr.LedgerPostgres:
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		l := postgres.New(pool, postgres.WithLogger(logger))
		if err := l.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		if err := l.EnsureLimits(ctx, limits); err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
}

// applyLimits pushes explicitly configured limits into the ledger. Built-in
// defaults only seed backends the ledger does not know yet.
func applyLimits(ctx context.Context, ledger sr.QuotaLedger, cfg sr.Config, logger *slog.Logger) error {
	setter, ok := ledger.(sr.LimitSetter)
	if !ok {
		return nil
	}
	for _, b := range cfg.Backends {
		if b.Limit == nil {
			continue
		}
		err := setter.SetLimit(ctx, b.Name, *b.Limit)
		if errors.Is(err, sr.ErrNotDurable) {
			logger.Warn("configured limit not persisted", "backend", b.Name, "error", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("set limit for %s: %w", b.Name, err)
		}
	}
	return nil
}
