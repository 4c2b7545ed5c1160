// Package serper is a search backend for the Serper Google search API.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	sr "github.com/ineyio/searchrouter"
)

const defaultBaseURL = "https://google.serper.dev"

// Backend queries Serper.
type Backend struct {
	apiKey     string
	baseURL    string
	numResults int
	httpClient *http.Client
}

var _ sr.Backend = (*Backend)(nil)

// Option configures the backend.
type Option func(*Backend)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) { b.httpClient = c }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(b *Backend) { b.baseURL = strings.TrimRight(u, "/") }
}

// WithNumResults sets how many results to request (default 10).
func WithNumResults(n int) Option {
	return func(b *Backend) { b.numResults = n }
}

// New creates a Serper backend. An empty apiKey leaves it unconfigured.
func New(apiKey string, opts ...Option) *Backend {
	b := &Backend{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		numResults: 10,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string { return sr.BackendSerper }

func (b *Backend) Configured() bool { return b.apiKey != "" }

type apiRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type apiResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
	} `json:"organic"`
}

func (b *Backend) Search(ctx context.Context, query string) ([]sr.SearchHit, error) {
	if !b.Configured() {
		return nil, &sr.BackendError{Err: sr.ErrNotConfigured, Backend: b.Name()}
	}

	body, err := json.Marshal(apiRequest{Q: query, Num: b.numResults})
	if err != nil {
		return nil, fmt.Errorf("searchrouter/serper: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("searchrouter/serper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, &sr.BackendError{Err: fmt.Errorf("%w: %w", sr.ErrBackendUnavailable, err), Backend: b.Name()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, sr.StatusError(b.Name(), resp.StatusCode, string(msg))
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("searchrouter/serper: decode response: %w", err)
	}

	hits := make([]sr.SearchHit, 0, len(out.Organic))
	for _, r := range out.Organic {
		if r.Title == "" || r.Link == "" {
			continue
		}
		hits = append(hits, sr.SearchHit{
			Query:   query,
			Title:   r.Title,
			Snippet: r.Snippet,
			Link:    r.Link,
			Data:    map[string]any{"position": r.Position},
			Source:  b.Name(),
		})
	}
	return hits, nil
}
