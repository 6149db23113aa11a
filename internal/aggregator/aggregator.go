// Package aggregator fans a page out to every analyzer capability and
// assembles the combined report.
package aggregator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagescope/pagescope/internal/analysis"
	"github.com/pagescope/pagescope/internal/metrics"
)

// TextAnalyzer examines extracted page text.
type TextAnalyzer interface {
	Analyze(ctx context.Context, content string) (analysis.TextData, []analysis.Recommendation)
}

// SEOAnalyzer examines search-engine markup on the live page.
type SEOAnalyzer interface {
	Analyze(ctx context.Context, url string) (analysis.SEOData, []analysis.Recommendation)
}

// PerformanceAnalyzer measures page weight and resource counts.
type PerformanceAnalyzer interface {
	Analyze(ctx context.Context, url string) (analysis.PerformanceData, []analysis.Recommendation)
}

// AccessibilityAnalyzer checks assistive-technology affordances.
type AccessibilityAnalyzer interface {
	Analyze(ctx context.Context, url string) (analysis.AccessibilityData, []analysis.Recommendation)
}

// SecurityAnalyzer checks transport security and protective headers.
type SecurityAnalyzer interface {
	Analyze(ctx context.Context, url string) (analysis.SecurityData, []analysis.Recommendation)
}

// StructureAnalyzer checks redirects, link health and landmarks.
type StructureAnalyzer interface {
	Analyze(ctx context.Context, url string) (analysis.StructureData, []analysis.Recommendation)
}

// Aggregator runs all capabilities concurrently and merges their
// results. The merged report always lists blocks and recommendations
// in the same order (text, SEO, performance, accessibility, security,
// structure) no matter which goroutine finishes first.
type Aggregator struct {
	text          TextAnalyzer
	seo           SEOAnalyzer
	performance   PerformanceAnalyzer
	accessibility AccessibilityAnalyzer
	security      SecurityAnalyzer
	structure     StructureAnalyzer

	logger *zap.Logger
}

// New constructs an Aggregator over the six capabilities.
func New(
	text TextAnalyzer,
	seo SEOAnalyzer,
	performance PerformanceAnalyzer,
	accessibility AccessibilityAnalyzer,
	security SecurityAnalyzer,
	structure StructureAnalyzer,
	logger *zap.Logger,
) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		text:          text,
		seo:           seo,
		performance:   performance,
		accessibility: accessibility,
		security:      security,
		structure:     structure,
		logger:        logger.Named("aggregator"),
	}
}

// Analyze produces the full report for a page. Individual capabilities
// never abort the run; each reports problems through its own
// recommendations.
func (a *Aggregator) Analyze(ctx context.Context, url, content string) analysis.Report {
	var (
		wg     sync.WaitGroup
		report analysis.Report

		textData analysis.TextData

		textRecs, seoRecs, perfRecs, a11yRecs, secRecs, structRecs []analysis.Recommendation
	)

	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			fn()
			elapsed := time.Since(start)
			metrics.ObserveAnalyzer(name, elapsed)
			a.logger.Debug("analyzer finished",
				zap.String("analyzer", name),
				zap.String("url", url),
				zap.Duration("elapsed", elapsed))
		}()
	}

	run("text", func() { textData, textRecs = a.text.Analyze(ctx, content) })
	run("seo", func() { report.SEOData, seoRecs = a.seo.Analyze(ctx, url) })
	run("performance", func() { report.PerformanceData, perfRecs = a.performance.Analyze(ctx, url) })
	run("accessibility", func() { report.AccessibilityData, a11yRecs = a.accessibility.Analyze(ctx, url) })
	run("security", func() { report.SecurityData, secRecs = a.security.Analyze(ctx, url) })
	run("structure", func() { report.StructureData, structRecs = a.structure.Analyze(ctx, url) })
	wg.Wait()

	report.FrequencyDistribution = textData.FrequencyDistribution
	report.Entities = textData.Entities
	report.Sentiment = textData.Sentiment

	report.Recommendations = make([]analysis.Recommendation, 0,
		len(textRecs)+len(seoRecs)+len(perfRecs)+len(a11yRecs)+len(secRecs)+len(structRecs))
	report.Recommendations = append(report.Recommendations, textRecs...)
	report.Recommendations = append(report.Recommendations, seoRecs...)
	report.Recommendations = append(report.Recommendations, perfRecs...)
	report.Recommendations = append(report.Recommendations, a11yRecs...)
	report.Recommendations = append(report.Recommendations, secRecs...)
	report.Recommendations = append(report.Recommendations, structRecs...)

	return report
}
