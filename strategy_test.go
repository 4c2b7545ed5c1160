package searchrouter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sr "github.com/ineyio/searchrouter"
)

func TestDefaultCatalog(t *testing.T) {
	c := sr.DefaultCatalog()

	names := []string{}
	for _, s := range c.Strategies() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{sr.StrategyPremium, sr.StrategyFallback, sr.StrategyFreeOnly, sr.StrategyBestEffort}, names)

	premium, ok := c.Lookup(sr.StrategyPremium)
	require.True(t, ok)
	assert.Equal(t, []string{sr.BackendSerpAPI, sr.BackendDuckDuckGo}, premium.Backends)
	assert.True(t, premium.Parallel)

	free, ok := c.Lookup(sr.StrategyFreeOnly)
	require.True(t, ok)
	assert.False(t, free.Parallel)

	_, ok = c.Lookup(sr.StrategyAuto)
	assert.False(t, ok, "auto is resolved by the selector, not the catalog")
}

func TestCatalog_LookupReturnsCopy(t *testing.T) {
	c := sr.DefaultCatalog()
	s, _ := c.Lookup(sr.StrategyPremium)
	s.Backends[0] = "mutated"

	again, _ := c.Lookup(sr.StrategyPremium)
	assert.Equal(t, sr.BackendSerpAPI, again.Backends[0])
}

func TestNewCatalog_Validation(t *testing.T) {
	tests := []struct {
		name       string
		strategies []sr.Strategy
		errMsg     string
	}{
		{"empty name", []sr.Strategy{{Backends: []string{"a"}}}, "name is required"},
		{"reserved auto", []sr.Strategy{{Name: "auto", Backends: []string{"a"}}}, "reserved"},
		{"duplicate", []sr.Strategy{
			{Name: "s", Backends: []string{"a"}},
			{Name: "s", Backends: []string{"b"}},
		}, "duplicate strategy"},
		{"no backends", []sr.Strategy{{Name: "s"}}, "at least one backend"},
		{"duplicate backend", []sr.Strategy{{Name: "s", Backends: []string{"a", "a"}}}, "duplicate backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sr.NewCatalog(tt.strategies...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
