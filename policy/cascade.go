// Package policy provides selectors that resolve the "auto" strategy.
package policy

import (
	"context"

	sr "github.com/ineyio/searchrouter"
)

// Tier maps a gating backend to the strategy chosen while it is available.
type Tier struct {
	Backend  string
	Strategy string
}

// Cascade picks the strategy of the first tier whose backend is available,
// or Fallback when none is.
type Cascade struct {
	Tiers    []Tier
	Fallback string
}

var _ sr.Selector = (*Cascade)(nil)

// NewDefaultCascade returns the serpapi → tavily → free_only cascade.
func NewDefaultCascade() *Cascade {
	return &Cascade{
		Tiers: []Tier{
			{Backend: sr.BackendSerpAPI, Strategy: sr.StrategyPremium},
			{Backend: sr.BackendTavily, Strategy: sr.StrategyFallback},
		},
		Fallback: sr.StrategyFreeOnly,
	}
}

// Select walks the tiers in order.
func (c *Cascade) Select(ctx context.Context, available sr.Availability) string {
	for _, t := range c.Tiers {
		if available(ctx, t.Backend) {
			return t.Strategy
		}
	}
	if c.Fallback == "" {
		return sr.StrategyFreeOnly
	}
	return c.Fallback
}

// NewCascade builds a cascade from configuration. Empty tiers yield the
// default cascade.
func NewCascade(cfg sr.AutoConfig) *Cascade {
	if len(cfg.Tiers) == 0 {
		c := NewDefaultCascade()
		if cfg.Fallback != "" {
			c.Fallback = cfg.Fallback
		}
		return c
	}
	c := &Cascade{Fallback: cfg.Fallback}
	for _, t := range cfg.Tiers {
		c.Tiers = append(c.Tiers, Tier{Backend: t.Backend, Strategy: t.Strategy})
	}
	return c
}

// FromConfig returns a Fixed selector when auto is pinned to a strategy and a
// cascade otherwise.
func FromConfig(cfg sr.AutoConfig) sr.Selector {
	if cfg.Strategy != "" {
		return &Fixed{Strategy: cfg.Strategy}
	}
	return NewCascade(cfg)
}
