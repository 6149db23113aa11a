// Package parser turns a URL into extracted page text, rendering
// JavaScript-heavy pages in a headless browser when needed.
package parser

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher retrieves a page over plain HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Renderer executes a page in a browser and returns the rendered DOM.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
	Close()
}

// Result is the outcome of one parse.
type Result struct {
	Content      string
	RawHTML      []byte
	UsedHeadless bool
}

// Parser fetches pages statically first and falls back to the headless
// renderer for documents that look client-rendered.
type Parser struct {
	fetcher  Fetcher
	renderer Renderer
	logger   *zap.Logger
}

// New constructs a Parser. renderer may be a NoOpRenderer when
// headless rendering is disabled.
func New(fetcher Fetcher, renderer Renderer, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		fetcher:  fetcher,
		renderer: renderer,
		logger:   logger.Named("parser"),
	}
}

// Parse fetches url and extracts its readable text.
func (p *Parser) Parse(ctx context.Context, url string) (Result, error) {
	page, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	if page.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("fetch %s: unexpected status %d", url, page.StatusCode)
	}

	usedHeadless := false
	if LooksDynamic(page.Body) {
		rendered, err := p.renderer.Render(ctx, url)
		switch {
		case err != nil:
			// The static document is still usable; log and keep it.
			p.logger.Warn("headless render failed, using static document",
				zap.String("url", url),
				zap.Error(err))
		case len(rendered.Body) > 0:
			page = rendered
			usedHeadless = true
		}
	}

	content, err := ExtractText(page.URL, page.Body)
	if err != nil {
		return Result{}, fmt.Errorf("extract text from %s: %w", url, err)
	}

	p.logger.Debug("parsed page",
		zap.String("url", url),
		zap.Bool("headless", usedHeadless),
		zap.Int("raw_bytes", len(page.Body)),
		zap.Int("content_chars", len(content)))

	return Result{
		Content:      content,
		RawHTML:      page.Body,
		UsedHeadless: usedHeadless,
	}, nil
}
