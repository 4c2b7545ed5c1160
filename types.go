package searchrouter

import (
	"time"
)

// SearchHit is a single search result returned by a backend.
type SearchHit struct {
	Query   string         `json:"query"`
	Title   string         `json:"title"`
	Snippet string         `json:"snippet"`
	Link    string         `json:"link"`
	Data    map[string]any `json:"data,omitempty"`
	Source  string         `json:"source"`
}

// DedupKey returns the normalized link used to collapse duplicate hits.
func (h SearchHit) DedupKey() string {
	return NormalizeLink(h.Link)
}

// SearchRequest is a logical search fanned out across backends.
type SearchRequest struct {
	Query string `json:"query"`

	// MaxResults caps the merged result list. Zero or negative means DefaultMaxResults.
	MaxResults int `json:"max_results,omitempty"`

	// Strategy names a catalog entry or StrategyAuto. Empty means StrategyAuto.
	Strategy string `json:"strategy,omitempty"`

	// Deadline bounds the whole dispatch phase. Zero means the dispatcher default.
	Deadline time.Duration `json:"deadline,omitempty"`
}

// SearchResponse carries the merged hits and a description of how they were produced.
type SearchResponse struct {
	ID       string       `json:"id"`
	Hits     []SearchHit  `json:"hits"`
	Dispatch DispatchInfo `json:"dispatch"`
}

// DispatchInfo describes which strategy and backends served a search.
type DispatchInfo struct {
	Strategy string        `json:"strategy"`
	Eligible []string      `json:"eligible"`
	Charged  []string      `json:"charged"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
}

// Outcome is the terminal state of a search call.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeNoBackends       Outcome = "no_backends"
	OutcomeDeadlineExceeded Outcome = "deadline_exceeded"
)

const (
	DefaultMaxResults = 10
	DefaultDeadline   = 30 * time.Second
)
