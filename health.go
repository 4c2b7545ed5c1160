package searchrouter

import (
	"sync"
	"time"
)

const (
	healthFailureThreshold = 3
	healthFailureWindow    = 5 * time.Minute
	healthUnhealthyPeriod  = 30 * time.Second
)

// HealthState describes the health of a backend.
type HealthState int

const (
	HealthHealthy HealthState = iota
	HealthUnhealthy
	HealthHalfOpen
)

func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// HealthTracker tracks per-backend health using a circuit breaker pattern.
type HealthTracker struct {
	mu       sync.Mutex
	backends map[string]*backendHealth
	now      func() time.Time
}

type backendHealth struct {
	state       HealthState
	failures    []time.Time // sliding window of failure timestamps
	unhealthyAt time.Time
}

// NewHealthTracker creates a new HealthTracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		backends: make(map[string]*backendHealth),
		now:      time.Now,
	}
}

// GetHealth returns the current health state for a backend.
func (h *HealthTracker) GetHealth(backend string) HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	bh, ok := h.backends[backend]
	if !ok {
		return HealthHealthy
	}

	// Unhealthy period elapsed → half-open, one more call is allowed through.
	if bh.state == HealthUnhealthy && h.now().Sub(bh.unhealthyAt) >= healthUnhealthyPeriod {
		bh.state = HealthHalfOpen
	}
	return bh.state
}

// RecordSuccess records a successful call for a backend.
func (h *HealthTracker) RecordSuccess(backend string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	bh := h.getOrCreate(backend)
	bh.state = HealthHealthy
	bh.failures = bh.failures[:0]
}

// RecordFailure records a failed call for a backend.
func (h *HealthTracker) RecordFailure(backend string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	bh := h.getOrCreate(backend)
	now := h.now()

	if bh.state == HealthHalfOpen {
		bh.state = HealthUnhealthy
		bh.unhealthyAt = now
		return
	}
	if bh.state == HealthUnhealthy {
		return
	}

	cutoff := now.Add(-healthFailureWindow)
	valid := bh.failures[:0]
	for _, t := range bh.failures {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	bh.failures = append(valid, now)

	if len(bh.failures) >= healthFailureThreshold {
		bh.state = HealthUnhealthy
		bh.unhealthyAt = now
	}
}

func (h *HealthTracker) getOrCreate(backend string) *backendHealth {
	bh, ok := h.backends[backend]
	if !ok {
		bh = &backendHealth{state: HealthHealthy}
		h.backends[backend] = bh
	}
	return bh
}
