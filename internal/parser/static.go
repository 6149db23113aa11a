package parser

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// StaticConfig controls collector behavior for the static fetcher.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
	MaxBody   int
}

// StaticFetcher implements Fetcher with a Colly collector.
type StaticFetcher struct {
	cfg           StaticConfig
	baseCollector *colly.Collector
}

// NewStatic builds a StaticFetcher.
func NewStatic(cfg StaticConfig) *StaticFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 5 * 1024 * 1024
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.MaxBodySize = cfg.MaxBody
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newHTTPTransport())

	return &StaticFetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET using Colly.
func (f *StaticFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	var (
		page     Page
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.OnResponse(func(r *colly.Response) {
		page = Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Header:     r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			page = Page{
				URL:        r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
			}
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if page.StatusCode > 0 && page.StatusCode != http.StatusOK {
			// Non-200 documents still reach the caller so it can
			// decide how to report them.
			return page, nil
		}
		if err != nil {
			return Page{}, fmt.Errorf("visit failed: %w", err)
		}
		if fetchErr != nil {
			return Page{}, fmt.Errorf("response failed: %w", fetchErr)
		}
		return page, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
