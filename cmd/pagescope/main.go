// Package main wires together the analysis pipeline binaries. One
// binary runs any subset of the service via the -role flag: the HTTP
// gateway, a single pipeline stage, or everything in one process for
// local development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pagescope/pagescope/internal/aggregator"
	"github.com/pagescope/pagescope/internal/analysis"
	"github.com/pagescope/pagescope/internal/analyzer"
	"github.com/pagescope/pagescope/internal/api"
	"github.com/pagescope/pagescope/internal/archive"
	cachememory "github.com/pagescope/pagescope/internal/cache/memory"
	cacheredis "github.com/pagescope/pagescope/internal/cache/redis"
	"github.com/pagescope/pagescope/internal/clock/system"
	"github.com/pagescope/pagescope/internal/config"
	"github.com/pagescope/pagescope/internal/id/uuid"
	"github.com/pagescope/pagescope/internal/logging"
	"github.com/pagescope/pagescope/internal/metrics"
	"github.com/pagescope/pagescope/internal/parser"
	"github.com/pagescope/pagescope/internal/pipeline"
	queuememory "github.com/pagescope/pagescope/internal/queue/memory"
	queuepubsub "github.com/pagescope/pagescope/internal/queue/pubsub"
	storememory "github.com/pagescope/pagescope/internal/store/memory"
	storepostgres "github.com/pagescope/pagescope/internal/store/postgres"
)

const (
	roleGateway  = "gateway"
	roleParser   = "parser"
	roleAnalyzer = "analyzer"
	roleResults  = "results"
	roleAll      = "all"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	role := flag.String("role", roleAll, "Process role: gateway|parser|analyzer|results|all")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *role, logger); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, role string, logger *zap.Logger) error {
	fab, err := newFabric(ctx, cfg)
	if err != nil {
		return fmt.Errorf("queue fabric init: %w", err)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("result store init: %w", err)
	}
	defer store.Close()

	cache, err := newCache(cfg)
	if err != nil {
		return fmt.Errorf("result cache init: %w", err)
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil {
			logger.Warn("cache close failed", zap.Error(cerr))
		}
	}()

	clock := system.New()
	g, ctx := errgroup.WithContext(ctx)

	switch role {
	case roleGateway:
		return runGateway(ctx, g, cfg, fab, store, cache, clock, logger)
	case roleParser:
		return runParseStage(ctx, g, cfg, fab, clock, logger)
	case roleAnalyzer:
		return runAnalyzeStage(ctx, g, cfg, fab, clock, logger)
	case roleResults:
		return runResultsStage(ctx, g, fab, store, cache, clock, logger)
	case roleAll:
		if err := startGateway(ctx, g, cfg, fab, store, cache, clock, logger); err != nil {
			return err
		}
		if err := startParseStage(ctx, g, cfg, fab, clock, logger); err != nil {
			return err
		}
		if err := startAnalyzeStage(ctx, g, cfg, fab, clock, logger); err != nil {
			return err
		}
		if err := startResultsStage(ctx, g, fab, store, cache, clock, logger); err != nil {
			return err
		}
		return g.Wait()
	default:
		return fmt.Errorf("unknown role %q", role)
	}
}

func runGateway(ctx context.Context, g *errgroup.Group, cfg config.Config, fab *fabric, store analysis.ResultStore, cache analysis.Cache, clock analysis.Clock, logger *zap.Logger) error {
	if err := startGateway(ctx, g, cfg, fab, store, cache, clock, logger); err != nil {
		return err
	}
	return g.Wait()
}

func runParseStage(ctx context.Context, g *errgroup.Group, cfg config.Config, fab *fabric, clock analysis.Clock, logger *zap.Logger) error {
	if err := startParseStage(ctx, g, cfg, fab, clock, logger); err != nil {
		return err
	}
	return g.Wait()
}

func runAnalyzeStage(ctx context.Context, g *errgroup.Group, cfg config.Config, fab *fabric, clock analysis.Clock, logger *zap.Logger) error {
	if err := startAnalyzeStage(ctx, g, cfg, fab, clock, logger); err != nil {
		return err
	}
	return g.Wait()
}

func runResultsStage(ctx context.Context, g *errgroup.Group, fab *fabric, store analysis.ResultStore, cache analysis.Cache, clock analysis.Clock, logger *zap.Logger) error {
	if err := startResultsStage(ctx, g, fab, store, cache, clock, logger); err != nil {
		return err
	}
	return g.Wait()
}

func startGateway(ctx context.Context, g *errgroup.Group, cfg config.Config, fab *fabric, store analysis.ResultStore, cache analysis.Cache, clock analysis.Clock, logger *zap.Logger) error {
	parseQueue, err := fab.publisher(ctx, cfg.Queue.ParseTopic)
	if err != nil {
		return fmt.Errorf("parse queue publisher: %w", err)
	}

	apiServer := api.NewServer(store, cache, parseQueue, uuid.New(), clock, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		if cerr := parseQueue.Close(); cerr != nil {
			logger.Warn("parse queue close failed", zap.Error(cerr))
		}
		return nil
	})
	return nil
}

func startParseStage(ctx context.Context, g *errgroup.Group, cfg config.Config, fab *fabric, clock analysis.Clock, logger *zap.Logger) error {
	consumer, err := fab.consumer(ctx, cfg.Queue.ParseTopic, cfg.Queue.ParseSubscription, cfg.Pipeline.Prefetch)
	if err != nil {
		return fmt.Errorf("parse queue consumer: %w", err)
	}
	analyzeQueue, err := fab.publisher(ctx, cfg.Queue.AnalyzeTopic)
	if err != nil {
		return fmt.Errorf("analyze queue publisher: %w", err)
	}

	static := parser.NewStatic(parser.StaticConfig{
		UserAgent: cfg.Parser.UserAgent,
		Timeout:   time.Duration(cfg.Parser.TimeoutSeconds) * time.Second,
		MaxBody:   cfg.Parser.MaxBodyBytes,
	})
	var renderer parser.Renderer = parser.NoOpRenderer{}
	if cfg.Parser.HeadlessEnabled {
		headless, err := parser.NewHeadless(parser.HeadlessConfig{
			MaxParallel:       cfg.Parser.HeadlessParallel,
			UserAgent:         cfg.Parser.UserAgent,
			NavigationTimeout: time.Duration(cfg.Parser.NavTimeoutSeconds) * time.Second,
		})
		if err != nil {
			logger.Warn("headless renderer init failed, dynamic pages get static extraction", zap.Error(err))
		} else {
			renderer = headless
		}
	}

	snapshots, err := newArchive(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("snapshot archive init: %w", err)
	}

	pageParser := parser.New(static, renderer, logger)
	handler := pipeline.ParseHandler(pageParser, analyzeQueue, snapshots, logger)
	runner := pipeline.NewRunner("parse", consumer, handler, logger, clock)

	g.Go(func() error {
		defer renderer.Close()
		return runner.Run(ctx)
	})
	return nil
}

func startAnalyzeStage(ctx context.Context, g *errgroup.Group, cfg config.Config, fab *fabric, clock analysis.Clock, logger *zap.Logger) error {
	consumer, err := fab.consumer(ctx, cfg.Queue.AnalyzeTopic, cfg.Queue.AnalyzeSubscription, cfg.Pipeline.Prefetch)
	if err != nil {
		return fmt.Errorf("analyze queue consumer: %w", err)
	}
	resultsQueue, err := fab.publisher(ctx, cfg.Queue.ResultsTopic)
	if err != nil {
		return fmt.Errorf("results queue publisher: %w", err)
	}

	fetcher := analyzer.NewFetcher(
		time.Duration(cfg.Analyzer.FetchTimeoutSeconds)*time.Second,
		cfg.Parser.UserAgent,
		int64(cfg.Parser.MaxBodyBytes),
	)
	agg := aggregator.New(
		analyzer.NewText(analyzer.NewLanguageDetector()),
		analyzer.NewSEO(fetcher),
		analyzer.NewPerformance(fetcher),
		analyzer.NewAccessibility(fetcher),
		analyzer.NewSecurity(fetcher, time.Duration(cfg.Analyzer.TLSTimeoutSeconds)*time.Second),
		analyzer.NewStructure(fetcher, cfg.Analyzer.MaxLinkChecks),
		logger,
	)

	handler := pipeline.AnalyzeHandler(agg, resultsQueue, logger)
	runner := pipeline.NewRunner("analyze", consumer, handler, logger, clock)

	g.Go(func() error { return runner.Run(ctx) })
	return nil
}

func startResultsStage(ctx context.Context, g *errgroup.Group, fab *fabric, store analysis.ResultStore, cache analysis.Cache, clock analysis.Clock, logger *zap.Logger) error {
	consumer, err := fab.resultsConsumer(ctx)
	if err != nil {
		return fmt.Errorf("results queue consumer: %w", err)
	}

	handler := pipeline.ResultsHandler(store, cache, clock, logger)
	runner := pipeline.NewRunner("results", consumer, handler, logger, clock)

	g.Go(func() error { return runner.Run(ctx) })
	return nil
}

// fabric abstracts over the Pub/Sub and in-memory queue providers.
type fabric struct {
	cfg    config.Config
	broker *queuememory.Broker
}

func newFabric(_ context.Context, cfg config.Config) (*fabric, error) {
	f := &fabric{cfg: cfg}
	if cfg.Queue.Provider == "memory" {
		f.broker = queuememory.NewBroker(cfg.Queue.MemoryDepth)
	}
	return f, nil
}

func (f *fabric) publisher(ctx context.Context, topic string) (analysis.Publisher, error) {
	if f.broker != nil {
		return f.broker.Publisher(topic), nil
	}
	return queuepubsub.NewPublisher(ctx, f.cfg.Queue.ProjectID, topic)
}

func (f *fabric) consumer(ctx context.Context, topic, subscription string, prefetch int) (analysis.Consumer, error) {
	if f.broker != nil {
		return f.broker.Consumer(topic, prefetch), nil
	}
	return queuepubsub.NewConsumer(ctx, f.cfg.Queue.ProjectID, subscription, prefetch)
}

func (f *fabric) resultsConsumer(ctx context.Context) (analysis.Consumer, error) {
	return f.consumer(ctx, f.cfg.Queue.ResultsTopic, f.cfg.Queue.ResultsSubscription, f.cfg.Pipeline.Prefetch)
}

func newStore(ctx context.Context, cfg config.Config) (analysis.ResultStore, error) {
	switch cfg.DB.Provider {
	case "postgres":
		return storepostgres.New(ctx, storepostgres.Config{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
	default:
		return storememory.New(), nil
	}
}

func newCache(cfg config.Config) (analysis.Cache, error) {
	switch cfg.Cache.Provider {
	case "redis":
		return cacheredis.New(
			cacheredis.WithAddr(cfg.Cache.Addr),
			cacheredis.WithCredentials(cfg.Cache.Username, cfg.Cache.Password),
			cacheredis.WithDatabase(cfg.Cache.DB),
			cacheredis.WithTTL(cfg.Cache.CacheTTL()),
		)
	default:
		return cachememory.New(cfg.Cache.CacheTTL(), system.New()), nil
	}
}

func newArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.Provider, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		provider, err := archive.NewGCSProvider(ctx, cfg.Archive.Bucket, logger)
		if err != nil {
			return nil, err
		}
		return archive.WithPrefix(provider, cfg.Archive.Prefix), nil
	default:
		return archive.NoOpProvider{}, nil
	}
}
