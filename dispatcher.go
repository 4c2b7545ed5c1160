package searchrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// DefaultCancelGrace is how long a search waits for in-flight backend calls to
// return after its deadline cancelled them.
const DefaultCancelGrace = 2 * time.Second

// Dispatcher fans search requests out across multiple backends under a quota ledger.
type Dispatcher struct {
	backends map[string]Backend
	ledger   QuotaLedger
	catalog  *Catalog
	selector Selector
	meter    Meter
	health   *HealthTracker
	pool     *ants.Pool
	logger   *slog.Logger
	deadline time.Duration
	grace    time.Duration

	defaultStrategy   string
	defaultMaxResults int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLedger sets the quota ledger.
func WithLedger(l QuotaLedger) Option {
	return func(d *Dispatcher) { d.ledger = l }
}

// WithCatalog sets the strategy catalog.
func WithCatalog(c *Catalog) Option {
	return func(d *Dispatcher) { d.catalog = c }
}

// WithSelector sets the selector that resolves StrategyAuto.
func WithSelector(s Selector) Option {
	return func(d *Dispatcher) { d.selector = s }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(d *Dispatcher) { d.meter = m }
}

// WithHealthTracker enables circuit breaking: unhealthy backends are skipped.
func WithHealthTracker(h *HealthTracker) Option {
	return func(d *Dispatcher) { d.health = h }
}

// WithWorkerPool runs parallel backend calls on the given pool instead of
// spawning a goroutine per call. The caller owns the pool's lifecycle.
func WithWorkerPool(p *ants.Pool) Option {
	return func(d *Dispatcher) { d.pool = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithDefaultDeadline sets the deadline used when a request does not carry one.
func WithDefaultDeadline(deadline time.Duration) Option {
	return func(d *Dispatcher) { d.deadline = deadline }
}

// WithDefaultStrategy sets the strategy used when a request does not name one.
func WithDefaultStrategy(name string) Option {
	return func(d *Dispatcher) { d.defaultStrategy = name }
}

// WithDefaultMaxResults sets the result cap used when a request does not carry one.
func WithDefaultMaxResults(n int) Option {
	return func(d *Dispatcher) { d.defaultMaxResults = n }
}

// WithCancelGrace sets how long to wait for cancelled calls before abandoning them.
func WithCancelGrace(grace time.Duration) Option {
	return func(d *Dispatcher) { d.grace = grace }
}

// NewDispatcher creates a Dispatcher over the given backends.
// Default components (DefaultCatalog, the serpapi → tavily → free cascade, an
// unlimited no-op ledger, no meter) are used unless overridden via options.
func NewDispatcher(backends []Backend, opts ...Option) (*Dispatcher, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}

	byName := make(map[string]Backend, len(backends))
	for _, b := range backends {
		if _, dup := byName[b.Name()]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateBackend, b.Name())
		}
		byName[b.Name()] = b
	}

	d := &Dispatcher{
		backends: byName,
		deadline: DefaultDeadline,
		grace:    DefaultCancelGrace,
	}

	for _, opt := range opts {
		opt(d)
	}

	// Apply defaults after options.
	if d.ledger == nil {
		d.ledger = noopLedger{}
	}
	if d.catalog == nil {
		d.catalog = DefaultCatalog()
	}
	if d.selector == nil {
		d.selector = defaultCascade{}
	}
	if d.meter == nil {
		d.meter = noopMeter{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.deadline <= 0 {
		d.deadline = DefaultDeadline
	}
	if d.defaultStrategy == "" {
		d.defaultStrategy = StrategyAuto
	}
	if d.defaultMaxResults <= 0 {
		d.defaultMaxResults = DefaultMaxResults
	}

	return d, nil
}

// Search runs a query across the backends of the resolved strategy and returns
// the merged, deduplicated and truncated hits. It never fails: backend errors,
// exhausted quotas and deadlines all resolve to fewer or no hits, reported
// through SearchResponse.Dispatch.
func (d *Dispatcher) Search(ctx context.Context, req SearchRequest) SearchResponse {
	start := time.Now()
	resp := SearchResponse{ID: uuid.New().String(), Hits: []SearchHit{}}
	logger := d.logger.With("request_id", resp.ID)

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = d.defaultMaxResults
	}
	if req.Strategy == "" {
		req.Strategy = d.defaultStrategy
	}
	deadline := req.Deadline
	if deadline <= 0 {
		deadline = d.deadline
	}

	logger.Info("search started", "query", req.Query, "strategy", req.Strategy)

	strategy := d.resolveStrategy(ctx, req.Strategy, logger)
	resp.Dispatch.Strategy = strategy.Name

	eligible := d.filterBackends(ctx, strategy.Backends, logger)
	resp.Dispatch.Eligible = backendNames(eligible)

	parallel := strategy.Parallel && len(eligible) > 1
	d.meter.OnDispatch(DispatchEvent{
		RequestID: resp.ID,
		Query:     req.Query,
		Strategy:  strategy.Name,
		Parallel:  parallel,
		Eligible:  resp.Dispatch.Eligible,
	})

	if len(eligible) == 0 {
		logger.Error("no eligible search backends: quotas exhausted or backends not configured",
			"strategy", strategy.Name)
		resp.Dispatch.Outcome = OutcomeNoBackends
		resp.Dispatch.Duration = time.Since(start)
		return resp
	}

	dctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	run := newDispatchRun(resp.ID, len(eligible), logger)
	completed := d.dispatch(dctx, run, parallel, eligible, req.Query)
	resp.Dispatch.Charged = run.chargedBackends()

	if !completed {
		logger.Error("search deadline exceeded, discarding results",
			"deadline", deadline, "cause", context.Cause(dctx))
		resp.Dispatch.Outcome = OutcomeDeadlineExceeded
		resp.Dispatch.Duration = time.Since(start)
		return resp
	}

	merged := MergeHits(run.results...)
	if removed := run.totalHits() - len(merged); removed > 0 {
		logger.Info("removed duplicate results", "count", removed)
	}
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}

	resp.Hits = merged
	resp.Dispatch.Outcome = OutcomeOK
	resp.Dispatch.Duration = time.Since(start)

	logger.Info("search completed",
		"results", len(merged),
		"backends", len(eligible),
		"duration_ms", resp.Dispatch.Duration.Milliseconds(),
	)
	return resp
}

// QuotaStatus returns the ledger status of every known backend.
func (d *Dispatcher) QuotaStatus(ctx context.Context) (map[string]QuotaStatus, error) {
	return d.ledger.Status(ctx)
}

// ResetQuota zeroes one backend's usage, or every backend's when backend is "".
func (d *Dispatcher) ResetQuota(ctx context.Context, backend string) error {
	return d.ledger.Reset(ctx, backend)
}

// Catalog returns the strategy catalog.
func (d *Dispatcher) Catalog() *Catalog { return d.catalog }

// Backends returns the sorted names of the registered backends.
func (d *Dispatcher) Backends() []string {
	names := make([]string, 0, len(d.backends))
	for name := range d.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) resolveStrategy(ctx context.Context, name string, logger *slog.Logger) Strategy {
	if name == "" || name == StrategyAuto {
		name = d.selector.Select(ctx, d.available)
		logger.Info("auto-selected strategy", "strategy", name)
	}

	s, ok := d.catalog.Lookup(name)
	if !ok {
		logger.Warn("unknown strategy, falling back", "strategy", name, "fallback", StrategyFreeOnly)
		s, ok = d.catalog.Lookup(StrategyFreeOnly)
		if !ok {
			return Strategy{Name: StrategyFreeOnly}
		}
	}
	logger.Debug("strategy resolved", "strategy", s.Name, "description", s.Description)
	return s
}

// available reports whether a backend is registered and has budget left.
func (d *Dispatcher) available(ctx context.Context, backend string) bool {
	if _, ok := d.backends[backend]; !ok {
		return false
	}
	return d.hasBudget(ctx, backend, d.logger)
}

// hasBudget treats ledger failures as budget available: a broken store must not
// take every backend offline.
func (d *Dispatcher) hasBudget(ctx context.Context, backend string, logger *slog.Logger) bool {
	ok, err := d.ledger.HasBudget(ctx, backend)
	if err != nil {
		logger.Error("quota check failed, admitting backend", "backend", backend, "error", err)
		return true
	}
	return ok
}

func (d *Dispatcher) filterBackends(ctx context.Context, names []string, logger *slog.Logger) []Backend {
	var eligible []Backend
	for _, name := range names {
		b, ok := d.backends[name]
		if !ok {
			logger.Debug("backend not registered, skipping", "backend", name)
			continue
		}
		if !d.hasBudget(ctx, name, logger) {
			logger.Info("backend quota exhausted, skipping", "backend", name)
			continue
		}
		if !b.Configured() {
			logger.Debug("backend not configured, skipping", "backend", name)
			continue
		}
		if d.health != nil && d.health.GetHealth(name) == HealthUnhealthy {
			logger.Info("backend unhealthy, skipping", "backend", name)
			continue
		}
		eligible = append(eligible, b)
	}
	return eligible
}

// dispatch invokes the eligible backends and reports whether every call
// finished before ctx expired. When ctx expires first the in-flight calls see
// the cancellation; dispatch waits up to the cancel grace for them to return
// and abandons the stragglers.
func (d *Dispatcher) dispatch(ctx context.Context, run *dispatchRun, parallel bool, eligible []Backend, query string) bool {
	run.logger.Info("dispatching", "backends", len(eligible), "parallel", parallel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if parallel {
			d.fanOut(ctx, run, eligible, query)
		} else {
			d.sequential(ctx, run, eligible, query)
		}
		run.inTime = ctx.Err() == nil
	}()

	select {
	case <-done:
		return run.inTime
	case <-ctx.Done():
	}

	timer := time.NewTimer(d.grace)
	defer timer.Stop()
	select {
	case <-done:
		return run.inTime
	case <-timer.C:
		run.logger.Warn("abandoning in-flight backend calls", "grace", d.grace)
		return false
	}
}

func (d *Dispatcher) fanOut(ctx context.Context, run *dispatchRun, eligible []Backend, query string) {
	var wg sync.WaitGroup
	for i, b := range eligible {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			run.results[i] = d.safeSearch(ctx, run, b, query)
		}
		if d.pool != nil {
			err := d.pool.Submit(task)
			if err == nil {
				continue
			}
			run.logger.Warn("worker pool rejected backend call, using a goroutine", "backend", b.Name(), "error", err)
		}
		go task()
	}
	wg.Wait()
}

func (d *Dispatcher) sequential(ctx context.Context, run *dispatchRun, eligible []Backend, query string) {
	for i, b := range eligible {
		if ctx.Err() != nil {
			return
		}
		run.results[i] = d.safeSearch(ctx, run, b, query)
	}
}

// safeSearch calls one backend, isolating its failure, and charges the ledger
// when the call produced at least one hit.
func (d *Dispatcher) safeSearch(ctx context.Context, run *dispatchRun, b Backend, query string) []SearchHit {
	name := b.Name()
	logger := run.logger.With("backend", name)

	start := time.Now()
	hits, err := callBackend(ctx, b, query)
	duration := time.Since(start)

	charged := false
	switch {
	case err != nil:
		hits = nil
		logger.Error("backend search failed", "error", err, "duration_ms", duration.Milliseconds())
		if d.health != nil {
			d.health.RecordFailure(name)
		}
	case len(hits) == 0:
		logger.Info("backend returned no results", "duration_ms", duration.Milliseconds())
		if d.health != nil {
			d.health.RecordSuccess(name)
		}
	default:
		hits = stampHits(hits, name, query)
		if d.health != nil {
			d.health.RecordSuccess(name)
		}
		charged = d.charge(ctx, name, logger)
		if charged {
			run.markCharged(name)
		}
		logger.Info("backend returned results", "hits", len(hits), "duration_ms", duration.Milliseconds())
	}

	d.meter.OnResult(ResultEvent{
		RequestID: run.id,
		Backend:   name,
		Hits:      len(hits),
		Charged:   charged,
		Duration:  duration,
		Error:     err,
	})
	return hits
}

// charge debits one unit for backend. The vendor already served the call, so
// the charge is recorded even if the search deadline has passed.
func (d *Dispatcher) charge(ctx context.Context, backend string, logger *slog.Logger) bool {
	cctx := context.WithoutCancel(ctx)
	if err := d.ledger.Charge(cctx, backend, 1); err != nil {
		if errors.Is(err, ErrNotDurable) {
			logger.Error("quota charge recorded in memory only", "error", err)
			return true
		}
		logger.Error("quota charge failed", "error", err)
		return false
	}

	if remaining, err := d.ledger.Remaining(cctx, backend); err == nil {
		if remaining == Unlimited {
			logger.Debug("quota charged", "remaining", "unlimited")
		} else {
			logger.Debug("quota charged", "remaining", remaining)
		}
	}
	return true
}

// callBackend converts a backend panic into an error.
func callBackend(ctx context.Context, b Backend, query string) (hits []SearchHit, err error) {
	defer func() {
		if r := recover(); r != nil {
			hits, err = nil, fmt.Errorf("searchrouter: backend %s panicked: %v", b.Name(), r)
		}
	}()
	return b.Search(ctx, query)
}

// stampHits copies hits, filling in the provenance label and query when the
// backend left them empty.
func stampHits(hits []SearchHit, backend, query string) []SearchHit {
	out := make([]SearchHit, len(hits))
	for i, h := range hits {
		if h.Source == "" {
			h.Source = backend
		}
		if h.Query == "" {
			h.Query = query
		}
		out[i] = h
	}
	return out
}

func backendNames(backends []Backend) []string {
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	return names
}

// dispatchRun holds the per-search state shared by backend calls.
type dispatchRun struct {
	id      string
	logger  *slog.Logger
	results [][]SearchHit // one slot per eligible backend, strategy order
	inTime  bool

	mu      sync.Mutex
	charged []string
}

func newDispatchRun(id string, n int, logger *slog.Logger) *dispatchRun {
	return &dispatchRun{
		id:      id,
		logger:  logger,
		results: make([][]SearchHit, n),
	}
}

func (r *dispatchRun) markCharged(backend string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.charged = append(r.charged, backend)
}

func (r *dispatchRun) chargedBackends() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.charged))
	copy(out, r.charged)
	return out
}

func (r *dispatchRun) totalHits() int {
	n := 0
	for _, l := range r.results {
		n += len(l)
	}
	return n
}
