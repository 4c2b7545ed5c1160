package searchrouter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	sr "github.com/ineyio/searchrouter"
)

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	h := sr.NewHealthTracker()

	h.RecordFailure("serpapi")
	h.RecordFailure("serpapi")
	assert.Equal(t, sr.HealthHealthy, h.GetHealth("serpapi"))

	h.RecordFailure("serpapi")
	assert.Equal(t, sr.HealthUnhealthy, h.GetHealth("serpapi"))
	assert.Equal(t, sr.HealthHealthy, h.GetHealth("tavily"))
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	h := sr.NewHealthTracker()
	h.SetClock(func() time.Time { return now })

	for range 3 {
		h.RecordFailure("serpapi")
	}
	assert.Equal(t, sr.HealthUnhealthy, h.GetHealth("serpapi"))

	now = now.Add(31 * time.Second)
	assert.Equal(t, sr.HealthHalfOpen, h.GetHealth("serpapi"))

	h.RecordSuccess("serpapi")
	assert.Equal(t, sr.HealthHealthy, h.GetHealth("serpapi"))
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	h := sr.NewHealthTracker()
	h.SetClock(func() time.Time { return now })

	for range 3 {
		h.RecordFailure("serpapi")
	}
	now = now.Add(31 * time.Second)
	assert.Equal(t, sr.HealthHalfOpen, h.GetHealth("serpapi"))

	h.RecordFailure("serpapi")
	assert.Equal(t, sr.HealthUnhealthy, h.GetHealth("serpapi"))
}

func TestCircuitBreaker_FailuresOutsideWindow(t *testing.T) {
	now := time.Now()
	h := sr.NewHealthTracker()
	h.SetClock(func() time.Time { return now })

	h.RecordFailure("serpapi")
	h.RecordFailure("serpapi")
	now = now.Add(6 * time.Minute)
	h.RecordFailure("serpapi")
	assert.Equal(t, sr.HealthHealthy, h.GetHealth("serpapi"))
}

func TestHealthState_String(t *testing.T) {
	assert.Equal(t, "healthy", sr.HealthHealthy.String())
	assert.Equal(t, "unhealthy", sr.HealthUnhealthy.String())
	assert.Equal(t, "half-open", sr.HealthHalfOpen.String())
	assert.Equal(t, "unknown", sr.HealthState(99).String())
}
