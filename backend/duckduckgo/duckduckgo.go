// Package duckduckgo is a keyless search backend that scrapes the DuckDuckGo
// HTML results page.
package duckduckgo

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
	defaultBaseURL   = "https://html.duckduckgo.com"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Backend scrapes DuckDuckGo.
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

// WithBaseURL overrides the site base URL.
func WithBaseURL(u string) Option {
	return func(b *Backend) { b.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(b *Backend) { b.userAgent = ua }
}

// WithNumResults caps the number of hits returned. Zero returns the whole page.
func WithNumResults(n int) Option {
	return func(b *Backend) { b.numResults = n }
}

// New creates a DuckDuckGo backend.
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

func (b *Backend) Name() string { return sr.BackendDuckDuckGo }

// Configured is always true: DuckDuckGo needs no credentials.
func (b *Backend) Configured() bool { return true }

func (b *Backend) Search(ctx context.Context, query string) ([]sr.SearchHit, error) {
	u := b.baseURL + "/html/?" + url.Values{"q": {query}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("searchrouter/duckduckgo: create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", b.userAgent)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, &sr.BackendError{Err: fmt.Errorf("%w: %w", sr.ErrBackendUnavailable, err), Backend: b.Name()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, sr.StatusError(b.Name(), resp.StatusCode, string(msg))
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("searchrouter/duckduckgo: parse page: %w", err)
	}
	return b.parse(doc, query), nil
}

func (b *Backend) parse(doc *html.Node, query string) []sr.SearchHit {
	var hits []sr.SearchHit
	for _, result := range htmlx.FindAll(doc, htmlx.Element("div", "result")) {
		a := htmlx.Find(result, htmlx.Element("a", "result__a"))
		if a == nil {
			continue
		}
		title := htmlx.Text(a)
		link := unwrapLink(htmlx.Attr(a, "href"))
		if title == "" || link == "" {
			continue
		}

		snippet := htmlx.Text(htmlx.Find(result, htmlx.Element("a", "result__snippet")))
		if snippet == "" {
			snippet = "..."
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
	return hits
}

// unwrapLink resolves DuckDuckGo redirect links (//duckduckgo.com/l/?uddg=...)
// to their target URL.
func unwrapLink(raw string) string {
	if !strings.Contains(raw, "uddg=") {
		return raw
	}
	if u, err := url.Parse(raw); err == nil {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	_, target, _ := strings.Cut(raw, "uddg=")
	target, _, _ = strings.Cut(target, "&")
	if unescaped, err := url.QueryUnescape(target); err == nil {
		return unescaped
	}
	return target
}
