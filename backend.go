package searchrouter

import "context"

// Backend is the interface that search backend adapters must implement.
type Backend interface {
	// Name returns the backend identifier (e.g. "serpapi", "duckduckgo").
	// It is the key used by the quota ledger and the strategy catalog.
	Name() string

	// Search executes a query and returns hits in the backend's ranking order.
	Search(ctx context.Context, query string) ([]SearchHit, error)

	// Configured reports whether the adapter has what it needs to run
	// (credentials, endpoint). Unconfigured backends are skipped, never errored.
	Configured() bool
}

// Well-known backend names.
const (
	BackendSerpAPI    = "serpapi"
	BackendTavily     = "tavily"
	BackendDuckDuckGo = "duckduckgo"
	BackendSerper     = "serper"
	BackendBing       = "bing"
)
