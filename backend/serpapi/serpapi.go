// Package serpapi is a search backend for the SerpAPI Google search endpoint.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	sr "github.com/ineyio/searchrouter"
)

const defaultBaseURL = "https://serpapi.com"

// Backend queries SerpAPI.
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

// New creates a SerpAPI backend. An empty apiKey leaves it unconfigured.
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

func (b *Backend) Name() string { return sr.BackendSerpAPI }

func (b *Backend) Configured() bool { return b.apiKey != "" }

type apiResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
}

func (b *Backend) Search(ctx context.Context, query string) ([]sr.SearchHit, error) {
	if !b.Configured() {
		return nil, &sr.BackendError{Err: sr.ErrNotConfigured, Backend: b.Name()}
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", b.apiKey)
	params.Set("num", strconv.Itoa(b.numResults))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searchrouter/serpapi: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, &sr.BackendError{Err: fmt.Errorf("%w: %w", sr.ErrBackendUnavailable, err), Backend: b.Name()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, sr.StatusError(b.Name(), resp.StatusCode, string(body))
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("searchrouter/serpapi: decode response: %w", err)
	}
	if out.Error != "" {
		// SerpAPI reports an empty result page as an error.
		if strings.Contains(out.Error, "hasn't returned any results") {
			return nil, nil
		}
		return nil, &sr.BackendError{Err: fmt.Errorf("%w: %s", sr.ErrBackendUnavailable, out.Error), Backend: b.Name()}
	}

	hits := make([]sr.SearchHit, 0, len(out.OrganicResults))
	for _, r := range out.OrganicResults {
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
