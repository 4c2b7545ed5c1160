// Package mock provides a configurable in-memory search backend for tests and examples.
package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	sr "github.com/ineyio/searchrouter"
)

// Backend is a mock search backend.
type Backend struct {
	name         string
	hits         []sr.SearchHit
	latency      time.Duration
	ignoreCancel bool
	failAfter    int
	callCount    atomic.Int64
	staticErr    error
	panicValue   any
	configured   bool
	searchFunc   func(ctx context.Context, query string) ([]sr.SearchHit, error)
}

var _ sr.Backend = (*Backend)(nil)

// Option configures a mock Backend.
type Option func(*Backend)

// New creates a mock backend with the given options.
// Without WithHits it returns one hit linking to https://example.com/<name>.
func New(opts ...Option) *Backend {
	b := &Backend{
		name:       "mock",
		configured: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.hits == nil {
		b.hits = []sr.SearchHit{{
			Title:   "Result from " + b.name,
			Snippet: "mock snippet",
			Link:    "https://example.com/" + b.name,
		}}
	}
	return b
}

// WithName sets the backend name.
func WithName(name string) Option {
	return func(b *Backend) { b.name = name }
}

// WithHits sets the hits returned by every call. An empty call means no hits.
func WithHits(hits ...sr.SearchHit) Option {
	return func(b *Backend) {
		b.hits = append([]sr.SearchHit{}, hits...)
	}
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(b *Backend) { b.latency = d }
}

// WithIgnoreCancel makes the simulated latency ignore context cancellation,
// like a vendor client without deadline support.
func WithIgnoreCancel() Option {
	return func(b *Backend) { b.ignoreCancel = true }
}

// WithFailAfter makes the backend fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(b *Backend) { b.failAfter = n }
}

// WithError makes the backend always return this error.
func WithError(err error) Option {
	return func(b *Backend) { b.staticErr = err }
}

// WithPanic makes the backend panic with v.
func WithPanic(v any) Option {
	return func(b *Backend) { b.panicValue = v }
}

// WithConfigured sets what Configured reports.
func WithConfigured(configured bool) Option {
	return func(b *Backend) { b.configured = configured }
}

// WithSearchFunc sets a custom search function.
func WithSearchFunc(fn func(ctx context.Context, query string) ([]sr.SearchHit, error)) Option {
	return func(b *Backend) { b.searchFunc = fn }
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Configured() bool { return b.configured }

// CallCount returns how many times Search was called.
func (b *Backend) CallCount() int64 { return b.callCount.Load() }

func (b *Backend) Search(ctx context.Context, query string) ([]sr.SearchHit, error) {
	count := b.callCount.Add(1)

	if b.latency > 0 {
		if b.ignoreCancel {
			time.Sleep(b.latency)
		} else {
			select {
			case <-time.After(b.latency):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if b.panicValue != nil {
		panic(b.panicValue)
	}

	if b.staticErr != nil {
		return nil, b.staticErr
	}

	if b.failAfter > 0 && int(count) > b.failAfter {
		return nil, fmt.Errorf("%w: mock %s failed after %d calls", sr.ErrBackendUnavailable, b.name, b.failAfter)
	}

	if b.searchFunc != nil {
		return b.searchFunc(ctx, query)
	}

	out := make([]sr.SearchHit, len(b.hits))
	copy(out, b.hits)
	return out, nil
}
