package analyzer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Page is the outcome of one analyzer fetch.
type Page struct {
	StatusCode    int
	Header        http.Header
	Body          []byte
	FinalURL      string
	RedirectCount int
	Elapsed       time.Duration
}

// Fetcher performs bounded HTTP fetches on behalf of analyzers. Every
// request carries the configured timeout so one slow upstream site
// cannot stall a worker slot indefinitely.
type Fetcher struct {
	timeout   time.Duration
	userAgent string
	maxBody   int64
	transport http.RoundTripper
}

// NewFetcher constructs a Fetcher.
func NewFetcher(timeout time.Duration, userAgent string, maxBody int64) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBody <= 0 {
		maxBody = 5 * 1024 * 1024
	}
	return &Fetcher{
		timeout:   timeout,
		userAgent: userAgent,
		maxBody:   maxBody,
		transport: http.DefaultTransport,
	}
}

// Get fetches a URL, following redirects and counting them.
func (f *Fetcher) Get(ctx context.Context, url string) (Page, error) {
	redirects := 0
	client := &http.Client{
		Timeout:   f.timeout,
		Transport: f.transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			redirects = len(via)
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return Page{}, fmt.Errorf("read body of %s: %w", url, err)
	}

	return Page{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		Body:          body,
		FinalURL:      resp.Request.URL.String(),
		RedirectCount: redirects,
		Elapsed:       time.Since(start),
	}, nil
}

// Head issues a HEAD request and returns the status code.
func (f *Fetcher) Head(ctx context.Context, url string) (int, error) {
	client := &http.Client{Timeout: f.timeout, Transport: f.transport}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("head %s: %w", url, err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
