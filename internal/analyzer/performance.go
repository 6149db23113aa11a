package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagescope/pagescope/internal/analysis"
)

const (
	heavyPageBytes  = 1 << 20 // 1 MiB
	manyScriptCount = 20
	manyImageCount  = 50
)

// Performance measures page weight and resource counts from a single
// fetch of the live document.
type Performance struct {
	fetcher *Fetcher
}

// NewPerformance constructs the performance analyzer.
func NewPerformance(fetcher *Fetcher) *Performance {
	return &Performance{fetcher: fetcher}
}

// Analyze never fails: on fetch or parse errors it returns zero-value
// data plus a synthetic recommendation in its own category.
func (a *Performance) Analyze(ctx context.Context, url string) (analysis.PerformanceData, []analysis.Recommendation) {
	var data analysis.PerformanceData
	var recs []analysis.Recommendation

	page, err := a.fetcher.Get(ctx, url)
	if err != nil {
		return data, []analysis.Recommendation{{
			Message:  fmt.Sprintf("performance analysis failed: %v", err),
			Category: analysis.CategoryPerformance,
		}}
	}
	if page.StatusCode != http.StatusOK {
		return data, []analysis.Recommendation{{
			Message:  fmt.Sprintf("page returned status %d; performance analysis not possible", page.StatusCode),
			Category: analysis.CategoryPerformance,
		}}
	}

	data.PageSizeBytes = len(page.Body)
	data.FetchMillis = page.Elapsed.Milliseconds()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return data, []analysis.Recommendation{{
			Message:  fmt.Sprintf("performance analysis failed: %v", err),
			Category: analysis.CategoryPerformance,
		}}
	}

	data.ScriptCount = doc.Find("script").Length()
	data.StylesheetCount = doc.Find(`link[rel="stylesheet"]`).Length()
	data.ImageCount = doc.Find("img").Length()
	data.InlineStyleCount = doc.Find("[style]").Length()

	if data.PageSizeBytes > heavyPageBytes {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("page HTML is %d bytes; consider trimming markup below %d bytes", data.PageSizeBytes, heavyPageBytes),
			Category: analysis.CategoryPerformance,
		})
	}
	if data.ScriptCount > manyScriptCount {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("page loads %d scripts; consider bundling or deferring them", data.ScriptCount),
			Category: analysis.CategoryPerformance,
		})
	}
	if data.ImageCount > manyImageCount {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("page embeds %d images; consider lazy loading", data.ImageCount),
			Category: analysis.CategoryPerformance,
		})
	}
	if data.InlineStyleCount > 0 {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("found %d elements with inline styles; move styling into stylesheets", data.InlineStyleCount),
			Category: analysis.CategoryPerformance,
		})
	}

	return data, recs
}
