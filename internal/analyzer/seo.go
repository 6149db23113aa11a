package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagescope/pagescope/internal/analysis"
)

const (
	maxTitleLength       = 65
	minDescriptionLength = 50
)

// SEO inspects title, meta description, h1 and canonical markup.
type SEO struct {
	fetcher *Fetcher
}

// NewSEO constructs the SEO analyzer.
func NewSEO(fetcher *Fetcher) *SEO {
	return &SEO{fetcher: fetcher}
}

// Analyze never fails: on fetch or parse errors it returns zero-value
// data plus a synthetic recommendation in its own category.
func (a *SEO) Analyze(ctx context.Context, url string) (analysis.SEOData, []analysis.Recommendation) {
	var data analysis.SEOData
	var recs []analysis.Recommendation

	page, err := a.fetcher.Get(ctx, url)
	if err != nil {
		return data, []analysis.Recommendation{{
			Message:  fmt.Sprintf("SEO analysis failed: %v", err),
			Category: analysis.CategorySEO,
		}}
	}
	if page.StatusCode != http.StatusOK {
		return data, []analysis.Recommendation{{
			Message:  fmt.Sprintf("page returned status %d; full SEO analysis not possible", page.StatusCode),
			Category: analysis.CategorySEO,
		}}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return data, []analysis.Recommendation{{
			Message:  fmt.Sprintf("SEO analysis failed: %v", err),
			Category: analysis.CategorySEO,
		}}
	}

	title := doc.Find("title").First()
	if title.Length() > 0 {
		data.HasTitleTag = true
		data.TitleLength = len(strings.TrimSpace(title.Text()))
		if data.TitleLength > maxTitleLength {
			recs = append(recs, analysis.Recommendation{
				Message:  fmt.Sprintf("title is %d characters; keep it under %d", data.TitleLength, maxTitleLength),
				Category: analysis.CategorySEO,
			})
		}
	} else {
		recs = append(recs, analysis.Recommendation{
			Message:  "missing title tag",
			Category: analysis.CategorySEO,
		})
	}

	description, exists := doc.Find(`meta[name="description"]`).Attr("content")
	if exists && strings.TrimSpace(description) != "" {
		data.HasDescriptionTag = true
		data.DescriptionLength = len(description)
		if data.DescriptionLength < minDescriptionLength {
			recs = append(recs, analysis.Recommendation{
				Message:  fmt.Sprintf("meta description is %d characters; aim for at least %d", data.DescriptionLength, minDescriptionLength),
				Category: analysis.CategorySEO,
			})
		}
	} else {
		recs = append(recs, analysis.Recommendation{
			Message:  "missing meta description",
			Category: analysis.CategorySEO,
		})
	}

	if doc.Find("h1").Length() > 0 {
		data.HasH1 = true
	} else {
		recs = append(recs, analysis.Recommendation{
			Message:  "page has no h1 heading",
			Category: analysis.CategorySEO,
		})
	}

	if canonical, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		data.CanonicalURL = canonical
	}

	return data, recs
}
