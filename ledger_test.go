package searchrouter_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sr "github.com/ineyio/searchrouter"
)

func TestNewQuotaStatus(t *testing.T) {
	assert.Equal(t, sr.QuotaStatus{Used: 5, Limit: 250, Remaining: 245, Percentage: 98}, sr.NewQuotaStatus(5, 250))
	assert.Equal(t, sr.QuotaStatus{Used: 300, Limit: 250, Remaining: 0, Percentage: 0}, sr.NewQuotaStatus(300, 250))
	assert.Equal(t, sr.QuotaStatus{Used: 0, Limit: 0, Remaining: 0, Percentage: 0}, sr.NewQuotaStatus(0, 0))

	unlimited := sr.NewQuotaStatus(42, sr.Unlimited)
	assert.True(t, unlimited.IsUnlimited())
	assert.Equal(t, sr.Unlimited, unlimited.Remaining)
	assert.Equal(t, 100.0, unlimited.Percentage)
}

func TestQuotaStatus_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(sr.NewQuotaStatus(7, sr.Unlimited))
	require.NoError(t, err)
	assert.JSONEq(t, `{"used":7,"limit":"unlimited","remaining":"unlimited","percentage":100}`, string(data))

	data, err = json.Marshal(sr.NewQuotaStatus(1, 4))
	require.NoError(t, err)
	assert.JSONEq(t, `{"used":1,"limit":4,"remaining":3,"percentage":75}`, string(data))
}

func TestFormatStatus(t *testing.T) {
	out := sr.FormatStatus(map[string]sr.QuotaStatus{
		"tavily":     sr.NewQuotaStatus(10, 1000),
		"duckduckgo": sr.NewQuotaStatus(3, sr.Unlimited),
	})
	assert.Equal(t, "Search Backend Quota Status:"+
		"\n  duckduckgo      | Used:    3 | Unlimited"+
		"\n  tavily          |   10/1000 ( 99.0% remaining)", out)
}

func TestDefaultLimits(t *testing.T) {
	limits := sr.DefaultLimits()
	assert.Equal(t, int64(250), limits[sr.BackendSerpAPI])
	assert.Equal(t, int64(1000), limits[sr.BackendTavily])
	assert.Equal(t, sr.Unlimited, limits[sr.BackendDuckDuckGo])

	limits[sr.BackendSerpAPI] = 1
	assert.Equal(t, int64(250), sr.DefaultLimits()[sr.BackendSerpAPI])
}
