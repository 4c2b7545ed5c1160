package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sr "github.com/ineyio/searchrouter"
	"github.com/ineyio/searchrouter/backend/mock"
	"github.com/ineyio/searchrouter/quota"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *quota.Ledger) {
	t.Helper()

	ledger := quota.NewLedger(context.Background(), quota.WithLogger(discard))
	serp := mock.New(mock.WithName(sr.BackendSerpAPI), mock.WithHits(
		sr.SearchHit{Title: "Go", Snippet: "The Go language", Link: "https://go.dev"},
		sr.SearchHit{Title: "Tour", Snippet: "A tour of Go", Link: "https://go.dev/tour"},
	))
	ddg := mock.New(mock.WithName(sr.BackendDuckDuckGo), mock.WithHits(
		sr.SearchHit{Title: "Go again", Snippet: "dup", Link: "https://go.dev/"},
	))

	d, err := sr.NewDispatcher([]sr.Backend{serp, ddg}, sr.WithLedger(ledger), sr.WithLogger(discard))
	require.NoError(t, err)

	ts := httptest.NewServer(New(cfg, d, discard).Handler())
	t.Cleanup(ts.Close)
	return ts, ledger
}

func getJSON(t *testing.T, method, url string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	var body HealthzResponse
	code := getJSON(t, http.MethodGet, ts.URL+"/healthz", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, []string{sr.BackendDuckDuckGo, sr.BackendSerpAPI}, body.Backends)
}

func TestSearch(t *testing.T) {
	ts, ledger := newTestServer(t, Config{})

	var body sr.SearchResponse
	code := getJSON(t, http.MethodGet, ts.URL+"/search?q=golang&strategy=premium&max_results=5", &body)

	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body.ID)
	assert.Equal(t, sr.StrategyPremium, body.Dispatch.Strategy)
	assert.Equal(t, sr.OutcomeOK, body.Dispatch.Outcome)
	require.Len(t, body.Hits, 2)
	assert.Equal(t, "Go", body.Hits[0].Title)
	assert.Equal(t, "golang", body.Hits[0].Query)
	assert.Equal(t, sr.BackendSerpAPI, body.Hits[0].Source)

	status, err := ledger.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), status[sr.BackendSerpAPI].Used)
}

func TestSearch_MaxResults(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	var body sr.SearchResponse
	getJSON(t, http.MethodGet, ts.URL+"/search?q=go&strategy=premium&max_results=1", &body)
	assert.Len(t, body.Hits, 1)
}

func TestSearch_BadRequest(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	tests := map[string]string{
		"missing query":   "/search",
		"blank query":     "/search?q=%20%20",
		"bad max_results": "/search?q=go&max_results=many",
		"negative max":    "/search?q=go&max_results=-2",
		"zero max":        "/search?q=go&max_results=0",
		"zero deadline":   "/search?q=go&deadline=0s",
		"bad deadline":    "/search?q=go&deadline=soon",
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			var body ErrorResponse
			code := getJSON(t, http.MethodGet, ts.URL+path, &body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestQuotaStatusAndReset(t *testing.T) {
	ts, ledger := newTestServer(t, Config{})
	ctx := context.Background()
	require.NoError(t, ledger.Charge(ctx, sr.BackendSerpAPI, 3))
	require.NoError(t, ledger.Charge(ctx, sr.BackendTavily, 2))

	var status map[string]map[string]any
	code := getJSON(t, http.MethodGet, ts.URL+"/quota", &status)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, status["backends"][sr.BackendSerpAPI].(map[string]any)["used"])
	assert.Equal(t, "unlimited", status["backends"][sr.BackendDuckDuckGo].(map[string]any)["limit"])

	var reset ResetResponse
	code = getJSON(t, http.MethodPost, ts.URL+"/quota/reset?backend=serpapi", &reset)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, sr.BackendSerpAPI, reset.Reset)

	s, err := ledger.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s[sr.BackendSerpAPI].Used)
	assert.Equal(t, int64(2), s[sr.BackendTavily].Used)

	code = getJSON(t, http.MethodPost, ts.URL+"/quota/reset", &reset)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "all", reset.Reset)

	s, err = ledger.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s[sr.BackendTavily].Used)
}

func TestStrategies(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	var body StrategiesResponse
	code := getJSON(t, http.MethodGet, ts.URL+"/strategies", &body)

	require.Equal(t, http.StatusOK, code)
	require.Len(t, body.Strategies, 4)
	assert.Equal(t, sr.StrategyPremium, body.Strategies[0].Name)
}

// failingDispatcher returns storage errors from the quota endpoints.
type failingDispatcher struct {
	Dispatcher
}

func (failingDispatcher) QuotaStatus(context.Context) (map[string]sr.QuotaStatus, error) {
	return nil, errors.New("ledger down")
}

func (failingDispatcher) ResetQuota(context.Context, string) error {
	return errors.New("ledger down")
}

func TestQuota_LedgerErrors(t *testing.T) {
	ts := httptest.NewServer(New(Config{}, failingDispatcher{}, discard).Handler())
	defer ts.Close()

	var body ErrorResponse
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, http.MethodGet, ts.URL+"/quota", &body))
	assert.Equal(t, "failed to read quota status", body.Error)

	assert.Equal(t, http.StatusInternalServerError, getJSON(t, http.MethodPost, ts.URL+"/quota/reset", &body))
	assert.Equal(t, "failed to reset quota", body.Error)
}

// deadlineRecorder captures the request passed to Search.
type deadlineRecorder struct {
	Dispatcher
	got sr.SearchRequest
}

func (d *deadlineRecorder) Search(_ context.Context, req sr.SearchRequest) sr.SearchResponse {
	d.got = req
	return sr.SearchResponse{Hits: []sr.SearchHit{}}
}

func TestSearch_DeadlineCap(t *testing.T) {
	rec := &deadlineRecorder{}
	ts := httptest.NewServer(New(Config{MaxDeadline: 5 * time.Second}, rec, discard).Handler())
	defer ts.Close()

	var body sr.SearchResponse
	getJSON(t, http.MethodGet, ts.URL+"/search?q=go&deadline=1m", &body)
	assert.Equal(t, 5*time.Second, rec.got.Deadline)

	getJSON(t, http.MethodGet, ts.URL+"/search?q=go&deadline=2s", &body)
	assert.Equal(t, 2*time.Second, rec.got.Deadline)

	getJSON(t, http.MethodGet, ts.URL+"/search?q=go", &body)
	assert.Equal(t, 5*time.Second, rec.got.Deadline)
}

func TestStart_Shutdown(t *testing.T) {
	s := New(Config{Listen: "127.0.0.1:0"}, &deadlineRecorder{}, discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}
