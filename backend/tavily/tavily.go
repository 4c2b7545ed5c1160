// Package tavily is a search backend for the Tavily search API.
package tavily

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

const defaultBaseURL = "https://api.tavily.com"

// Backend queries Tavily.
type Backend struct {
	apiKey      string
	baseURL     string
	numResults  int
	searchDepth string
	httpClient  *http.Client
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

// WithSearchDepth sets the search depth, "basic" (default) or "advanced".
func WithSearchDepth(depth string) Option {
	return func(b *Backend) { b.searchDepth = depth }
}

// New creates a Tavily backend. An empty apiKey leaves it unconfigured.
func New(apiKey string, opts ...Option) *Backend {
	b := &Backend{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		numResults:  10,
		searchDepth: "basic",
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string { return sr.BackendTavily }

func (b *Backend) Configured() bool { return b.apiKey != "" }

type apiRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	MaxResults        int    `json:"max_results"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type apiResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (b *Backend) Search(ctx context.Context, query string) ([]sr.SearchHit, error) {
	if !b.Configured() {
		return nil, &sr.BackendError{Err: sr.ErrNotConfigured, Backend: b.Name()}
	}

	body, err := json.Marshal(apiRequest{
		Query:       query,
		SearchDepth: b.searchDepth,
		MaxResults:  b.numResults,
	})
	if err != nil {
		return nil, fmt.Errorf("searchrouter/tavily: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("searchrouter/tavily: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

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
		return nil, fmt.Errorf("searchrouter/tavily: decode response: %w", err)
	}

	hits := make([]sr.SearchHit, 0, len(out.Results))
	for i, r := range out.Results {
		if r.Title == "" || r.URL == "" {
			continue
		}
		hits = append(hits, sr.SearchHit{
			Query:   query,
			Title:   r.Title,
			Snippet: r.Content,
			Link:    r.URL,
			Data:    map[string]any{"position": i + 1, "score": r.Score},
			Source:  b.Name(),
		})
	}
	return hits, nil
}
