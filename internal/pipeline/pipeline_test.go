package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagescope/pagescope/internal/analysis"
	"github.com/pagescope/pagescope/internal/archive"
	cachemem "github.com/pagescope/pagescope/internal/cache/memory"
	"github.com/pagescope/pagescope/internal/parser"
	queuemem "github.com/pagescope/pagescope/internal/queue/memory"
	storemem "github.com/pagescope/pagescope/internal/store/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeParser struct {
	result parser.Result
	err    error
}

func (f fakeParser) Parse(context.Context, string) (parser.Result, error) {
	return f.result, f.err
}

type fakeBuilder struct {
	report analysis.Report
}

func (f fakeBuilder) Analyze(context.Context, string, string) analysis.Report {
	return f.report
}

type capturePublisher struct {
	mu     sync.Mutex
	bodies [][]byte
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies = append(p.bodies, append([]byte(nil), body...))
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) published() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.bodies))
	copy(out, p.bodies)
	return out
}

func sampleReport() analysis.Report {
	return analysis.Report{
		FrequencyDistribution: map[string]int{"go": 3},
		Sentiment:             analysis.Sentiment{Neutral: 1},
		SEOData:               analysis.SEOData{HasTitleTag: true, TitleLength: 10},
		Recommendations: []analysis.Recommendation{
			{Message: "missing meta description", Category: analysis.CategorySEO},
		},
	}
}

func TestParseHandlerPublishesDownstream(t *testing.T) {
	downstream := &capturePublisher{}
	snapshots := archive.NewMemoryProvider()
	handler := ParseHandler(fakeParser{result: parser.Result{
		Content: "extracted text",
		RawHTML: []byte("<html></html>"),
	}}, downstream, snapshots, zap.NewNop())

	body, _ := json.Marshal(analysis.ParseJob{CorrelationID: "cid-1", URL: "https://example.com"})
	require.NoError(t, handler(context.Background(), body))

	published := downstream.published()
	require.Len(t, published, 1)

	var result analysis.ParseResult
	require.NoError(t, json.Unmarshal(published[0], &result))
	require.Equal(t, "cid-1", result.CorrelationID)
	require.Equal(t, "https://example.com", result.URL)
	require.Equal(t, "extracted text", result.Content)

	snapshot, ok := snapshots.Object("cid-1.html")
	require.True(t, ok)
	require.Equal(t, []byte("<html></html>"), snapshot)
}

func TestParseHandlerMalformedPayloadNacks(t *testing.T) {
	handler := ParseHandler(fakeParser{}, &capturePublisher{}, archive.NoOpProvider{}, zap.NewNop())
	require.Error(t, handler(context.Background(), []byte("not json")))
}

func TestParseHandlerParseFailureNacks(t *testing.T) {
	downstream := &capturePublisher{}
	handler := ParseHandler(fakeParser{err: errors.New("site unreachable")}, downstream, archive.NoOpProvider{}, zap.NewNop())

	body, _ := json.Marshal(analysis.ParseJob{CorrelationID: "cid-1", URL: "https://down.example.com"})
	require.Error(t, handler(context.Background(), body))
	require.Empty(t, downstream.published())
}

func TestParseHandlerPublishFailureNacks(t *testing.T) {
	downstream := &capturePublisher{err: errors.New("fabric unavailable")}
	handler := ParseHandler(fakeParser{result: parser.Result{Content: "text"}}, downstream, archive.NoOpProvider{}, zap.NewNop())

	body, _ := json.Marshal(analysis.ParseJob{CorrelationID: "cid-1", URL: "https://example.com"})
	require.Error(t, handler(context.Background(), body))
}

func TestAnalyzeHandlerPublishesReport(t *testing.T) {
	downstream := &capturePublisher{}
	handler := AnalyzeHandler(fakeBuilder{report: sampleReport()}, downstream, zap.NewNop())

	body, _ := json.Marshal(analysis.ParseResult{CorrelationID: "cid-2", URL: "https://example.com", Content: "words"})
	require.NoError(t, handler(context.Background(), body))

	published := downstream.published()
	require.Len(t, published, 1)

	var result analysis.AnalyzeResult
	require.NoError(t, json.Unmarshal(published[0], &result))
	require.Equal(t, "cid-2", result.CorrelationID)
	require.Equal(t, sampleReport(), result.Report)
}

func TestResultsHandlerCompletesAndCaches(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := fixedClock{t: now}

	store := storemem.New()
	cache := cachemem.New(time.Hour, clock)
	require.NoError(t, store.Create(ctx, "cid-3", "https://example.com", now.Add(-time.Minute)))

	handler := ResultsHandler(store, cache, clock, zap.NewNop())
	body, _ := json.Marshal(analysis.AnalyzeResult{CorrelationID: "cid-3", URL: "https://example.com", Report: sampleReport()})
	require.NoError(t, handler(ctx, body))

	rec, err := store.Get(ctx, "cid-3")
	require.NoError(t, err)
	require.Equal(t, analysis.StatusCompleted, rec.Status)
	require.Equal(t, sampleReport(), rec.Report)
	require.NotNil(t, rec.CompletedAt)
	require.Equal(t, now, *rec.CompletedAt)

	cached, err := cache.Get(ctx, "cid-3")
	require.NoError(t, err)
	var view analysis.View
	require.NoError(t, json.Unmarshal(cached, &view))
	require.Equal(t, analysis.StatusCompleted, view.Status)
	require.True(t, view.SEOData.HasTitleTag)
}

func TestResultsHandlerRedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := fixedClock{t: now}

	store := storemem.New()
	cache := cachemem.New(time.Hour, clock)
	require.NoError(t, store.Create(ctx, "cid-4", "https://example.com", now.Add(-time.Minute)))

	handler := ResultsHandler(store, cache, clock, zap.NewNop())
	body, _ := json.Marshal(analysis.AnalyzeResult{CorrelationID: "cid-4", URL: "https://example.com", Report: sampleReport()})

	require.NoError(t, handler(ctx, body))
	first, err := store.Get(ctx, "cid-4")
	require.NoError(t, err)

	// At-least-once delivery: the same message arriving again leaves
	// the record unchanged.
	require.NoError(t, handler(ctx, body))
	second, err := store.Get(ctx, "cid-4")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestResultsHandlerUnknownIDDropped(t *testing.T) {
	ctx := context.Background()
	clock := fixedClock{t: time.Now()}
	store := storemem.New()
	cache := cachemem.New(time.Hour, clock)

	handler := ResultsHandler(store, cache, clock, zap.NewNop())
	body, _ := json.Marshal(analysis.AnalyzeResult{CorrelationID: "ghost", URL: "https://example.com", Report: sampleReport()})

	// Unknown ids ack rather than nack so orphaned results do not loop.
	require.NoError(t, handler(ctx, body))

	_, err := store.Get(ctx, "ghost")
	require.ErrorIs(t, err, analysis.ErrNotFound)
	_, err = cache.Get(ctx, "ghost")
	require.ErrorIs(t, err, analysis.ErrNotFound)
}

type failingStore struct {
	*storemem.Store
}

func (failingStore) Complete(context.Context, string, analysis.Report, time.Time) error {
	return errors.New("connection reset")
}

func TestResultsHandlerStoreFailureNacksWithoutCacheWrite(t *testing.T) {
	ctx := context.Background()
	clock := fixedClock{t: time.Now()}
	cache := cachemem.New(time.Hour, clock)

	handler := ResultsHandler(failingStore{storemem.New()}, cache, clock, zap.NewNop())
	body, _ := json.Marshal(analysis.AnalyzeResult{CorrelationID: "cid-5", URL: "https://example.com", Report: sampleReport()})

	require.Error(t, handler(ctx, body))

	// The cache must never get ahead of the store of record.
	_, err := cache.Get(ctx, "cid-5")
	require.ErrorIs(t, err, analysis.ErrNotFound)
}

func TestRunnerAcksAndNacksThroughFabric(t *testing.T) {
	broker := queuemem.NewBroker(16)
	clock := fixedClock{t: time.Now()}

	var handled [][]byte
	var mu sync.Mutex
	handler := func(_ context.Context, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		if string(body) == "poison" {
			return errors.New("cannot process")
		}
		handled = append(handled, body)
		return nil
	}

	runner := NewRunner("parse", broker.Consumer("parse_queue", 2), handler, zap.NewNop(), clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	pub := broker.Publisher("parse_queue")
	require.NoError(t, pub.Publish(ctx, []byte("ok-1")))
	require.NoError(t, pub.Publish(ctx, []byte("poison")))
	require.NoError(t, pub.Publish(ctx, []byte("ok-2")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2 && len(broker.DeadLetters("parse_queue")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPipelineEndToEndOverMemoryFabric(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := fixedClock{t: now}
	broker := queuemem.NewBroker(16)
	store := storemem.New()
	cache := cachemem.New(time.Hour, clock)

	parseRunner := NewRunner("parse",
		broker.Consumer("parse_queue", 2),
		ParseHandler(fakeParser{result: parser.Result{Content: "page words", RawHTML: []byte("<html/>")}},
			broker.Publisher("analyze_queue"), archive.NoOpProvider{}, zap.NewNop()),
		zap.NewNop(), clock)
	analyzeRunner := NewRunner("analyze",
		broker.Consumer("analyze_queue", 2),
		AnalyzeHandler(fakeBuilder{report: sampleReport()}, broker.Publisher("results_queue"), zap.NewNop()),
		zap.NewNop(), clock)
	resultsRunner := NewRunner("results",
		broker.Consumer("results_queue", 2),
		ResultsHandler(store, cache, clock, zap.NewNop()),
		zap.NewNop(), clock)

	for _, r := range []*Runner{parseRunner, analyzeRunner, resultsRunner} {
		go func(r *Runner) { _ = r.Run(ctx) }(r)
	}

	require.NoError(t, store.Create(ctx, "cid-e2e", "https://example.com", now))
	job, _ := json.Marshal(analysis.ParseJob{CorrelationID: "cid-e2e", URL: "https://example.com"})
	require.NoError(t, broker.Publisher("parse_queue").Publish(ctx, job))

	require.Eventually(t, func() bool {
		rec, err := store.Get(ctx, "cid-e2e")
		return err == nil && rec.Status == analysis.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	rec, err := store.Get(ctx, "cid-e2e")
	require.NoError(t, err)
	require.Equal(t, sampleReport(), rec.Report)

	cached, err := cache.Get(ctx, "cid-e2e")
	require.NoError(t, err)
	var view analysis.View
	require.NoError(t, json.Unmarshal(cached, &view))
	require.Equal(t, "cid-e2e", view.CorrelationID)
}
