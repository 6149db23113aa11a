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

// Accessibility checks alt coverage, heading structure, document
// language and form labeling.
type Accessibility struct {
	fetcher *Fetcher
}

// NewAccessibility constructs the accessibility analyzer.
func NewAccessibility(fetcher *Fetcher) *Accessibility {
	return &Accessibility{fetcher: fetcher}
}

// Analyze never fails: on fetch or parse errors it returns zero-value
// data plus a synthetic recommendation in its own category.
func (a *Accessibility) Analyze(ctx context.Context, url string) (analysis.AccessibilityData, []analysis.Recommendation) {
	var data analysis.AccessibilityData
	var recs []analysis.Recommendation

	page, err := a.fetcher.Get(ctx, url)
	if err != nil {
		return data, []analysis.Recommendation{{
			Message:  fmt.Sprintf("accessibility analysis failed: %v", err),
			Category: analysis.CategoryAccessibility,
		}}
	}
	if page.StatusCode != http.StatusOK {
		return data, []analysis.Recommendation{{
			Message:  fmt.Sprintf("page returned status %d; accessibility analysis may be incomplete", page.StatusCode),
			Category: analysis.CategoryAccessibility,
		}}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return data, []analysis.Recommendation{{
			Message:  fmt.Sprintf("accessibility analysis failed: %v", err),
			Category: analysis.CategoryAccessibility,
		}}
	}

	missingAlt := 0
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
			missingAlt++
		}
	})
	data.MissingAltCount = missingAlt
	data.HasAltForImages = missingAlt == 0
	if missingAlt > 0 {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("found %d images without alt attributes", missingAlt),
			Category: analysis.CategoryAccessibility,
		})
	}

	if doc.Find("h1,h2,h3").Length() > 0 {
		data.HasProperHeadings = true
	} else {
		recs = append(recs, analysis.Recommendation{
			Message:  "page has no semantic headings (h1/h2/h3)",
			Category: analysis.CategoryAccessibility,
		})
	}

	if lang, ok := doc.Find("html").Attr("lang"); ok && strings.TrimSpace(lang) != "" {
		data.HasHTMLLang = true
	} else {
		recs = append(recs, analysis.Recommendation{
			Message:  "html element is missing a lang attribute",
			Category: analysis.CategoryAccessibility,
		})
	}

	unlabeled := 0
	doc.Find("input").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		if typ == "hidden" || typ == "submit" || typ == "button" {
			return
		}
		if _, ok := s.Attr("aria-label"); ok {
			return
		}
		if id, ok := s.Attr("id"); ok {
			if doc.Find(fmt.Sprintf(`label[for="%s"]`, id)).Length() > 0 {
				return
			}
		}
		unlabeled++
	})
	data.FormInputsWithoutLabels = unlabeled
	if unlabeled > 0 {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("found %d form inputs without labels", unlabeled),
			Category: analysis.CategoryAccessibility,
		})
	}

	return data, recs
}
