package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/umputun/feedsnap/pkg/domain"
)

// DefaultTimeout is the per-source fetch deadline
const DefaultTimeout = 10 * time.Second

// maxBodySize caps a single feed response
const maxBodySize = 10 << 20

// HTTPFetcher fetches RSS/Atom/JSON feeds via HTTP and normalises their items
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	locale    string
	policy    Policy
}

// Params defines fetcher settings, zero values get defaults
type Params struct {
	Timeout   time.Duration
	UserAgent string
	Locale    string
	Client    *http.Client
}

// NewHTTPFetcher creates a new feed fetcher
func NewHTTPFetcher(p Params) *HTTPFetcher {
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.UserAgent == "" {
		p.UserAgent = "feedsnap/1.0"
	}
	if p.Client == nil {
		p.Client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPFetcher{
		client:    p.Client,
		timeout:   p.Timeout,
		userAgent: p.UserAgent,
		locale:    p.Locale,
		policy:    DefaultPolicy(p.Locale),
	}
}

// Fetch retrieves and parses the source feed. Items without a usable date get now as publish time.
// Any failure, including timeout, is returned as *FetchError with an empty result.
func (f *HTTPFetcher) Fetch(ctx context.Context, src domain.Source, now time.Time) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, err := f.get(ctx, src.URL)
	if err != nil {
		return Result{}, &FetchError{Source: src.Title, URL: src.URL, Err: err}
	}
	defer body.Close()

	// gofeed.Parser is not safe for concurrent use
	parsed, err := gofeed.NewParser().Parse(io.LimitReader(body, maxBodySize))
	if err != nil {
		return Result{}, &FetchError{Source: src.Title, URL: src.URL, Err: fmt.Errorf("parse feed: %w", err)}
	}

	return f.policy.normalize(parsed, src, now), nil
}

// get retrieves content from a URL
func (f *HTTPFetcher) get(ctx context.Context, feedURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	setFeedHeaders(req, f.userAgent, f.locale)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, nil
}
