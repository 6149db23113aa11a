package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagescope/pagescope/internal/analysis"
)

// Structure examines site plumbing around the page: redirects, link
// health, crawler affordances and landmark elements.
type Structure struct {
	fetcher       *Fetcher
	maxLinkChecks int
}

// NewStructure constructs the structure analyzer. maxLinkChecks caps
// the number of outbound HEAD probes per page.
func NewStructure(fetcher *Fetcher, maxLinkChecks int) *Structure {
	if maxLinkChecks <= 0 {
		maxLinkChecks = 10
	}
	return &Structure{fetcher: fetcher, maxLinkChecks: maxLinkChecks}
}

// Analyze never fails: on fetch or parse errors it returns zero-value
// data plus a synthetic recommendation in its own category.
func (a *Structure) Analyze(ctx context.Context, rawURL string) (analysis.StructureData, []analysis.Recommendation) {
	var data analysis.StructureData
	var recs []analysis.Recommendation

	page, err := a.fetcher.Get(ctx, rawURL)
	if err != nil {
		return data, []analysis.Recommendation{{
			Message:  fmt.Sprintf("structure analysis failed: %v", err),
			Category: analysis.CategoryStructure,
		}}
	}

	data.RedirectCount = page.RedirectCount
	if data.RedirectCount > 2 {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("page reached through %d redirects; shorten the chain", data.RedirectCount),
			Category: analysis.CategoryStructure,
		})
	}

	base, err := url.Parse(page.FinalURL)
	if err != nil {
		base, _ = url.Parse(rawURL)
	}

	if base != nil {
		root := &url.URL{Scheme: base.Scheme, Host: base.Host}
		if status, err := a.fetcher.Head(ctx, root.JoinPath("sitemap.xml").String()); err == nil && status == http.StatusOK {
			data.HasSitemap = true
		}
		if status, err := a.fetcher.Head(ctx, root.JoinPath("robots.txt").String()); err == nil && status == http.StatusOK {
			data.HasRobotsTxt = true
		}
	}
	if !data.HasSitemap {
		recs = append(recs, analysis.Recommendation{
			Message:  "no sitemap.xml found at the site root",
			Category: analysis.CategoryStructure,
		})
	}
	if !data.HasRobotsTxt {
		recs = append(recs, analysis.Recommendation{
			Message:  "no robots.txt found at the site root",
			Category: analysis.CategoryStructure,
		})
	}

	if page.StatusCode != http.StatusOK {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("page returned status %d; structure analysis may be incomplete", page.StatusCode),
			Category: analysis.CategoryStructure,
		})
		return data, recs
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("structure analysis failed: %v", err),
			Category: analysis.CategoryStructure,
		})
		return data, recs
	}

	data.NavCount = doc.Find("nav").Length()
	data.FooterCount = doc.Find("footer").Length()
	if data.NavCount == 0 {
		recs = append(recs, analysis.Recommendation{
			Message:  "page has no nav landmark element",
			Category: analysis.CategoryStructure,
		})
	}
	if data.FooterCount == 0 {
		recs = append(recs, analysis.Recommendation{
			Message:  "page has no footer landmark element",
			Category: analysis.CategoryStructure,
		})
	}

	checked, broken := a.probeLinks(ctx, base, doc)
	data.CheckedLinksCount = checked
	data.BrokenLinksCount = broken
	if broken > 0 {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("found %d broken links out of %d checked", broken, checked),
			Category: analysis.CategoryStructure,
		})
	}

	return data, recs
}

// probeLinks issues HEAD requests against a capped sample of the
// page's outbound anchors. 4xx and 5xx responses count as broken, as
// do transport errors.
func (a *Structure) probeLinks(ctx context.Context, base *url.URL, doc *goquery.Document) (checked, broken int) {
	if base == nil {
		return 0, 0
	}
	seen := map[string]struct{}{}
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if checked >= a.maxLinkChecks {
			return false
		}
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "tel:") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		target := base.ResolveReference(ref).String()
		if _, dup := seen[target]; dup {
			return true
		}
		seen[target] = struct{}{}

		checked++
		status, err := a.fetcher.Head(ctx, target)
		if err != nil || status >= http.StatusBadRequest {
			broken++
		}
		return true
	})
	return checked, broken
}
