package meter_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	sr "github.com/ineyio/searchrouter"
	"github.com/ineyio/searchrouter/meter"
)

func TestLogMeter(t *testing.T) {
	var buf bytes.Buffer
	m := meter.NewLogMeter(slog.New(slog.NewTextHandler(&buf, nil)))

	m.OnDispatch(sr.DispatchEvent{RequestID: "r1", Strategy: "premium", Parallel: true, Eligible: []string{"serpapi"}})
	m.OnResult(sr.ResultEvent{RequestID: "r1", Backend: "serpapi", Hits: 4, Charged: true, Duration: 20 * time.Millisecond})
	m.OnResult(sr.ResultEvent{RequestID: "r1", Backend: "tavily", Error: errors.New("boom")})

	out := buf.String()
	assert.Contains(t, out, "msg=dispatch")
	assert.Contains(t, out, "strategy=premium")
	assert.Contains(t, out, "hits=4")
	assert.Contains(t, out, "charged=true")
	assert.Contains(t, out, "level=WARN msg=result_error")
	assert.Contains(t, out, "error=boom")
}

func TestNewLogMeter_NilLogger(t *testing.T) {
	m := meter.NewLogMeter(nil)
	assert.Same(t, slog.Default(), m.Logger)
}
