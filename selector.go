package searchrouter

import "context"

// Availability reports whether a backend is registered and has budget left.
type Availability func(ctx context.Context, backend string) bool

// Selector resolves StrategyAuto to a concrete strategy name.
type Selector interface {
	Select(ctx context.Context, available Availability) string
}

// defaultCascade is an inline premium → fallback → free_only cascade to avoid
// import cycles with the policy package.
type defaultCascade struct{}

func (defaultCascade) Select(ctx context.Context, available Availability) string {
	if available(ctx, BackendSerpAPI) {
		return StrategyPremium
	}
	if available(ctx, BackendTavily) {
		return StrategyFallback
	}
	return StrategyFreeOnly
}
