package searchrouter

import (
	"fmt"
	"slices"
)

// Strategy names.
const (
	StrategyAuto       = "auto"
	StrategyPremium    = "premium"
	StrategyFallback   = "fallback"
	StrategyFreeOnly   = "free_only"
	StrategyBestEffort = "best_effort"
)

// Strategy is a named dispatch policy. Backends are listed in priority order:
// earlier backends win deduplication ties.
type Strategy struct {
	Name        string   `yaml:"name" json:"name"`
	Backends    []string `yaml:"backends" json:"backends"`
	Parallel    bool     `yaml:"parallel" json:"parallel"`
	Description string   `yaml:"description" json:"description"`
}

func (s Strategy) clone() Strategy {
	s.Backends = slices.Clone(s.Backends)
	return s
}

// Catalog is a read-only registry of strategies.
type Catalog struct {
	byName map[string]Strategy
	order  []string
}

// NewCatalog builds a catalog from the given strategies.
// Names must be unique, non-empty and must not shadow StrategyAuto.
func NewCatalog(strategies ...Strategy) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Strategy, len(strategies))}
	for i, s := range strategies {
		if s.Name == "" {
			return nil, fmt.Errorf("searchrouter: strategy[%d]: name is required", i)
		}
		if s.Name == StrategyAuto {
			return nil, fmt.Errorf("searchrouter: strategy[%d]: %q is reserved", i, StrategyAuto)
		}
		if _, dup := c.byName[s.Name]; dup {
			return nil, fmt.Errorf("searchrouter: duplicate strategy %q", s.Name)
		}
		if len(s.Backends) == 0 {
			return nil, fmt.Errorf("searchrouter: strategy %q: at least one backend is required", s.Name)
		}
		for j, b := range s.Backends {
			if slices.Contains(s.Backends[:j], b) {
				return nil, fmt.Errorf("searchrouter: strategy %q: duplicate backend %q", s.Name, b)
			}
		}
		c.byName[s.Name] = s.clone()
		c.order = append(c.order, s.Name)
	}
	return c, nil
}

// DefaultCatalog returns the built-in strategies.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultStrategies()...)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultStrategies returns the built-in strategy definitions.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name:        StrategyPremium,
			Backends:    []string{BackendSerpAPI, BackendDuckDuckGo},
			Parallel:    true,
			Description: "SerpAPI (paid, high quality) + DuckDuckGo (free backup), concurrent",
		},
		{
			Name:        StrategyFallback,
			Backends:    []string{BackendTavily, BackendDuckDuckGo},
			Parallel:    true,
			Description: "Tavily (paid AI search) + DuckDuckGo (free), concurrent",
		},
		{
			Name:        StrategyFreeOnly,
			Backends:    []string{BackendDuckDuckGo},
			Parallel:    false,
			Description: "DuckDuckGo free search only",
		},
		{
			Name:        StrategyBestEffort,
			Backends:    []string{BackendSerpAPI, BackendTavily, BackendDuckDuckGo},
			Parallel:    true,
			Description: "Every available backend, concurrent, best effort",
		},
	}
}

// Lookup returns a copy of the named strategy.
func (c *Catalog) Lookup(name string) (Strategy, bool) {
	s, ok := c.byName[name]
	if !ok {
		return Strategy{}, false
	}
	return s.clone(), true
}

// Strategies returns copies of all strategies in declaration order.
func (c *Catalog) Strategies() []Strategy {
	out := make([]Strategy, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name].clone())
	}
	return out
}
