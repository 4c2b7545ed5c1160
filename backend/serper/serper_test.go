package serper_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sr "github.com/ineyio/searchrouter"
	"github.com/ineyio/searchrouter/backend/serper"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "serper-key", r.Header.Get("X-API-KEY"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "kubernetes operators", req["q"])

		w.Write([]byte(`{"organic": [
			{"title": "Operator pattern", "link": "https://kubernetes.io/docs/concepts/extend-kubernetes/operator/", "snippet": "Operators are", "position": 1},
			{"title": "", "link": "https://example.com"}
		]}`))
	}))
	defer srv.Close()

	hits, err := serper.New("serper-key", serper.WithBaseURL(srv.URL)).Search(context.Background(), "kubernetes operators")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Operator pattern", hits[0].Title)
	assert.Equal(t, "Operators are", hits[0].Snippet)
	assert.Equal(t, sr.BackendSerper, hits[0].Source)
	assert.Equal(t, "kubernetes operators", hits[0].Query)
}

func TestSearch_AuthFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := serper.New("bad", serper.WithBaseURL(srv.URL)).Search(context.Background(), "q")
	assert.ErrorIs(t, err, sr.ErrAuthFailed)
	assert.False(t, sr.IsRetryable(err))
}

func TestSearch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := serper.New("k", serper.WithBaseURL(srv.URL)).Search(context.Background(), "q")
	assert.ErrorContains(t, err, "decode response")
}

func TestNotConfigured(t *testing.T) {
	assert.False(t, serper.New("").Configured())
	assert.True(t, serper.New("k").Configured())
}
