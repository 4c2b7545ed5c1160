// Package bing is a keyless search backend that scrapes Bing web results.
package bing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	sr "github.com/ineyio/searchrouter"
	"github.com/ineyio/searchrouter/internal/htmlx"
)

const (
	defaultBaseURL   = "https://www.bing.com"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Backend scrapes Bing.
type Backend struct {
	baseURL    string
	userAgent  string
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

// WithBaseURL overrides the site base URL, e.g. https://cn.bing.com.
func WithBaseURL(u string) Option {
	return func(b *Backend) { b.baseURL = strings.TrimRight(u, "/") }
}

// WithNumResults caps the number of hits returned. Zero returns the whole page.
func WithNumResults(n int) Option {
	return func(b *Backend) { b.numResults = n }
}

// New creates a Bing backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string { return sr.BackendBing }

// Configured is always true: scraping needs no credentials.
func (b *Backend) Configured() bool { return true }

func (b *Backend) Search(ctx context.Context, query string) ([]sr.SearchHit, error) {
	u := b.baseURL + "/search?" + url.Values{"q": {query}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("searchrouter/bing: create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", b.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, &sr.BackendError{Err: fmt.Errorf("%w: %w", sr.ErrBackendUnavailable, err), Backend: b.Name()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if err := sr.StatusError(b.Name(), resp.StatusCode, string(msg)); err != nil {
			return nil, err
		}
		return nil, &sr.BackendError{Err: sr.ErrBackendUnavailable, Backend: b.Name(), StatusCode: resp.StatusCode}
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("searchrouter/bing: parse page: %w", err)
	}

	var hits []sr.SearchHit
	for _, item := range htmlx.FindAll(doc, htmlx.Element("li", "b_algo")) {
		h2 := htmlx.Find(item, htmlx.Element("h2", ""))
		a := htmlx.Find(item, htmlx.Element("a", ""))
		if h2 == nil || a == nil {
			continue
		}
		title := htmlx.Text(h2)
		link := htmlx.Attr(a, "href")
		if title == "" || link == "" {
			continue
		}
		snippet := htmlx.Text(htmlx.Find(item, htmlx.Element("p", "")))
		if snippet == "" {
			snippet = "No description available"
		}

		hits = append(hits, sr.SearchHit{
			Query:   query,
			Title:   title,
			Snippet: snippet,
			Link:    link,
			Data:    map[string]any{"position": len(hits) + 1},
			Source:  b.Name(),
		})
		if b.numResults > 0 && len(hits) == b.numResults {
			break
		}
	}
	return hits, nil
}
