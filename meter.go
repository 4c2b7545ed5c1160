package searchrouter

import "time"

// Meter observes dispatch events for monitoring/logging.
type Meter interface {
	// OnDispatch is called once the strategy and eligible backends are known.
	OnDispatch(event DispatchEvent)

	// OnResult is called when a backend call finishes.
	OnResult(event ResultEvent)
}

// DispatchEvent describes a dispatch decision.
type DispatchEvent struct {
	RequestID string
	Query     string
	Strategy  string
	Parallel  bool
	Eligible  []string
}

// ResultEvent describes the outcome of one backend call.
type ResultEvent struct {
	RequestID string
	Backend   string
	Hits      int
	Charged   bool
	Duration  time.Duration
	Error     error
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnDispatch(DispatchEvent) {}
func (noopMeter) OnResult(ResultEvent)     {}
