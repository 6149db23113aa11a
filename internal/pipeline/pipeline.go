// Package pipeline wires queue consumers to the parse, analyze and
// results stage handlers.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagescope/pagescope/internal/analysis"
	"github.com/pagescope/pagescope/internal/archive"
	"github.com/pagescope/pagescope/internal/metrics"
	"github.com/pagescope/pagescope/internal/parser"
)

// PageParser turns a URL into extracted text content.
type PageParser interface {
	Parse(ctx context.Context, url string) (parser.Result, error)
}

// ReportBuilder produces the merged report for a page.
type ReportBuilder interface {
	Analyze(ctx context.Context, url, content string) analysis.Report
}

// Runner drives one stage: a consume loop feeding a handler, with
// per-message logging and metrics. Handler errors nack the message;
// the queue fabric's dead-letter policy owns redelivery of poison
// messages.
type Runner struct {
	stage    string
	consumer analysis.Consumer
	handler  analysis.MessageHandler
	logger   *zap.Logger
	clock    analysis.Clock
}

// NewRunner builds a Runner for a named stage.
func NewRunner(stage string, consumer analysis.Consumer, handler analysis.MessageHandler, logger *zap.Logger, clock analysis.Clock) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		stage:    stage,
		consumer: consumer,
		handler:  handler,
		logger:   logger.Named(stage),
		clock:    clock,
	}
}

// Run blocks consuming messages until the context ends or the fabric
// connection fails. A connection-level error is returned to the caller
// and is fatal to the stage.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("stage runner starting")
	err := r.consumer.Consume(ctx, func(ctx context.Context, body []byte) error {
		start := r.clock.Now()
		handlerErr := r.handler(ctx, body)
		elapsed := r.clock.Now().Sub(start)

		outcome := "ack"
		if handlerErr != nil {
			outcome = "nack"
			r.logger.Error("message processing failed",
				zap.Error(handlerErr),
				zap.Duration("elapsed", elapsed))
		}
		metrics.ObservePipelineMessage(r.stage, outcome, elapsed)
		return handlerErr
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s stage consume: %w", r.stage, err)
	}
	return nil
}

// ParseHandler returns the parse stage handler: decode a ParseJob,
// fetch and extract the page, snapshot the raw HTML, and publish a
// ParseResult downstream. Publishing happens before the ack implied by
// the nil return.
func ParseHandler(p PageParser, analyzeQueue analysis.Publisher, snapshots archive.Provider, logger *zap.Logger) analysis.MessageHandler {
	logger = namedOrNop(logger, "parse")
	return func(ctx context.Context, body []byte) error {
		var job analysis.ParseJob
		if err := json.Unmarshal(body, &job); err != nil {
			return fmt.Errorf("decode parse job: %w", err)
		}

		result, err := p.Parse(ctx, job.URL)
		if err != nil {
			return fmt.Errorf("parse %s: %w", job.URL, err)
		}

		// Snapshot failures never block the pipeline.
		if uri, err := snapshots.Save(ctx, job.CorrelationID+".html", "text/html", result.RawHTML); err != nil {
			logger.Warn("raw HTML snapshot failed",
				zap.String("correlation_id", job.CorrelationID),
				zap.Error(err))
		} else if uri != "" {
			logger.Debug("raw HTML archived",
				zap.String("correlation_id", job.CorrelationID),
				zap.String("uri", uri))
		}

		out, err := json.Marshal(analysis.ParseResult{
			CorrelationID: job.CorrelationID,
			URL:           job.URL,
			Content:       result.Content,
		})
		if err != nil {
			return fmt.Errorf("encode parse result: %w", err)
		}
		if err := analyzeQueue.Publish(ctx, out); err != nil {
			return fmt.Errorf("publish parse result: %w", err)
		}

		logger.Info("page parsed",
			zap.String("correlation_id", job.CorrelationID),
			zap.String("url", job.URL),
			zap.Bool("headless", result.UsedHeadless))
		return nil
	}
}

// AnalyzeHandler returns the analyze stage handler: decode a
// ParseResult, run the aggregator and publish the merged report.
func AnalyzeHandler(builder ReportBuilder, resultsQueue analysis.Publisher, logger *zap.Logger) analysis.MessageHandler {
	logger = namedOrNop(logger, "analyze")
	return func(ctx context.Context, body []byte) error {
		var parsed analysis.ParseResult
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode parse result: %w", err)
		}

		report := builder.Analyze(ctx, parsed.URL, parsed.Content)

		out, err := json.Marshal(analysis.AnalyzeResult{
			CorrelationID: parsed.CorrelationID,
			URL:           parsed.URL,
			Report:        report,
		})
		if err != nil {
			return fmt.Errorf("encode analyze result: %w", err)
		}
		if err := resultsQueue.Publish(ctx, out); err != nil {
			return fmt.Errorf("publish analyze result: %w", err)
		}

		logger.Info("page analyzed",
			zap.String("correlation_id", parsed.CorrelationID),
			zap.String("url", parsed.URL),
			zap.Int("recommendations", len(report.Recommendations)))
		return nil
	}
}

// ResultsHandler returns the results stage handler: persist the merged
// report, then write the public view through to the cache. The store
// update is idempotent; an unknown correlation id is warned about and
// dropped so redeliveries of orphaned results do not loop forever.
func ResultsHandler(store analysis.ResultStore, cache analysis.Cache, clock analysis.Clock, logger *zap.Logger) analysis.MessageHandler {
	logger = namedOrNop(logger, "results")
	return func(ctx context.Context, body []byte) error {
		var result analysis.AnalyzeResult
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("decode analyze result: %w", err)
		}

		now := clock.Now()
		err := store.Complete(ctx, result.CorrelationID, result.Report, now)
		if errors.Is(err, analysis.ErrNotFound) {
			logger.Warn("result for unknown correlation id dropped",
				zap.String("correlation_id", result.CorrelationID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("complete record %s: %w", result.CorrelationID, err)
		}

		// Store first, cache second: a cached entry must always be
		// backed by a durable row. Cache failures only cost read
		// performance.
		view := analysis.NewView(analysis.Record{
			CorrelationID: result.CorrelationID,
			URL:           result.URL,
			Status:        analysis.StatusCompleted,
			Report:        result.Report,
			CompletedAt:   &now,
		})
		if payload, err := json.Marshal(view); err != nil {
			logger.Warn("encode cached view failed",
				zap.String("correlation_id", result.CorrelationID),
				zap.Error(err))
		} else if err := cache.Set(ctx, result.CorrelationID, payload); err != nil {
			logger.Warn("cache write-through failed",
				zap.String("correlation_id", result.CorrelationID),
				zap.Error(err))
		}

		logger.Info("analysis completed",
			zap.String("correlation_id", result.CorrelationID),
			zap.String("url", result.URL),
			zap.Time("completed_at", now))
		return nil
	}
}

func namedOrNop(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.Named(name)
}
