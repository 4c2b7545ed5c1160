package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	sr "github.com/ineyio/searchrouter"
	"github.com/ineyio/searchrouter/policy"
)

func availableSet(names ...string) sr.Availability {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(_ context.Context, backend string) bool { return set[backend] }
}

func TestDefaultCascade(t *testing.T) {
	c := policy.NewDefaultCascade()
	ctx := context.Background()

	tests := []struct {
		name      string
		available []string
		want      string
	}{
		{"serpapi available", []string{sr.BackendSerpAPI, sr.BackendTavily}, sr.StrategyPremium},
		{"only tavily", []string{sr.BackendTavily, sr.BackendDuckDuckGo}, sr.StrategyFallback},
		{"nothing paid", []string{sr.BackendDuckDuckGo}, sr.StrategyFreeOnly},
		{"nothing at all", nil, sr.StrategyFreeOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Select(ctx, availableSet(tt.available...)))
		})
	}
}

func TestCascade_CustomTiers(t *testing.T) {
	c := &policy.Cascade{
		Tiers:    []policy.Tier{{Backend: sr.BackendSerper, Strategy: "serper_first"}},
		Fallback: sr.StrategyBestEffort,
	}
	assert.Equal(t, "serper_first", c.Select(context.Background(), availableSet(sr.BackendSerper)))
	assert.Equal(t, sr.StrategyBestEffort, c.Select(context.Background(), availableSet()))
}

func TestCascade_EmptyFallback(t *testing.T) {
	c := &policy.Cascade{}
	assert.Equal(t, sr.StrategyFreeOnly, c.Select(context.Background(), availableSet()))
}

func TestCascade_StopsAtFirstAvailable(t *testing.T) {
	var asked []string
	available := func(_ context.Context, backend string) bool {
		asked = append(asked, backend)
		return backend == sr.BackendSerpAPI
	}
	policy.NewDefaultCascade().Select(context.Background(), available)
	assert.Equal(t, []string{sr.BackendSerpAPI}, asked)
}

func TestFixed(t *testing.T) {
	f := &policy.Fixed{Strategy: sr.StrategyFreeOnly}
	assert.Equal(t, sr.StrategyFreeOnly, f.Select(context.Background(), availableSet(sr.BackendSerpAPI)))
}

func TestNewCascade(t *testing.T) {
	c := policy.NewCascade(sr.AutoConfig{})
	assert.Equal(t, policy.NewDefaultCascade(), c)

	c = policy.NewCascade(sr.AutoConfig{Fallback: sr.StrategyBestEffort})
	assert.Len(t, c.Tiers, 2)
	assert.Equal(t, sr.StrategyBestEffort, c.Fallback)

	c = policy.NewCascade(sr.AutoConfig{
		Tiers: []sr.AutoTier{{Backend: sr.BackendTavily, Strategy: sr.StrategyFallback}},
	})
	assert.Equal(t, []policy.Tier{{Backend: sr.BackendTavily, Strategy: sr.StrategyFallback}}, c.Tiers)
	assert.Equal(t, sr.StrategyFreeOnly, c.Select(context.Background(), availableSet(sr.BackendSerpAPI)))
}

func TestFromConfig(t *testing.T) {
	pinned := policy.FromConfig(sr.AutoConfig{Strategy: sr.StrategyBestEffort})
	assert.Equal(t, &policy.Fixed{Strategy: sr.StrategyBestEffort}, pinned)

	cascade := policy.FromConfig(sr.AutoConfig{})
	assert.Equal(t, sr.StrategyPremium, cascade.Select(context.Background(), availableSet(sr.BackendSerpAPI)))
}
