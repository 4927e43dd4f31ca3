// Package app assembles a crawl run from configuration, acting as the
// dependency injection container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/paginated-scraper/internal/api"
	"github.com/JakeFAU/paginated-scraper/internal/checkpoint"
	"github.com/JakeFAU/paginated-scraper/internal/checkpoint/gcs"
	"github.com/JakeFAU/paginated-scraper/internal/checkpoint/local"
	"github.com/JakeFAU/paginated-scraper/internal/checkpoint/memory"
	"github.com/JakeFAU/paginated-scraper/internal/checkpoint/postgres"
	"github.com/JakeFAU/paginated-scraper/internal/checkpoint/redis"
	"github.com/JakeFAU/paginated-scraper/internal/config"
	"github.com/JakeFAU/paginated-scraper/internal/crawl"
	"github.com/JakeFAU/paginated-scraper/internal/extract"
	collyfetcher "github.com/JakeFAU/paginated-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/paginated-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/paginated-scraper/internal/metrics"
	"github.com/JakeFAU/paginated-scraper/internal/progress"
	"github.com/JakeFAU/paginated-scraper/internal/progress/sinks"
	"github.com/JakeFAU/paginated-scraper/internal/sink"
)

// Options adjust a run without editing the configuration file.
type Options struct {
	// DryRun keeps the checkpoint in memory and logs rows instead of writing
	// the output files.
	DryRun bool
	// MaxPages overrides crawl.max_pages when > 0.
	MaxPages int
	// Attention is called for listing entries without a link.
	Attention crawl.AttentionFunc
	// Fetcher replaces the configured browser, mainly for tests.
	Fetcher crawl.Fetcher
}

// App holds the long-lived services of one crawl run.
type App struct {
	cfg    config.Config
	opts   Options
	logger *zap.Logger

	store    *checkpoint.Store
	sink     crawl.RecordSink
	fetcher  crawl.Fetcher
	strategy *extract.Strategy
	hub      *progress.Hub
	status   *sinks.StatusSink
	registry *prometheus.Registry
	runID    uuid.UUID

	closeOnce sync.Once
}

// New builds every collaborator the orchestrator needs. It fails fast when a
// backend cannot be reached.
func New(ctx context.Context, cfg config.Config, opts Options, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		runID:    progress.NewRunID(),
	}
	if err := a.init(ctx); err != nil {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			logger.Warn("cleanup after failed init", zap.Error(closeErr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	var err error
	checkpointCfg := a.cfg.Checkpoint
	if a.opts.DryRun {
		checkpointCfg.Backend = config.BackendMemory
	}
	a.store, err = OpenStore(ctx, checkpointCfg, a.logger)
	if err != nil {
		return err
	}

	if a.opts.DryRun {
		a.sink = logSink{logger: a.logger.Named("dry-run")}
	} else {
		a.sink, err = sink.New(a.cfg.Output, a.logger.Named("sink"))
		if err != nil {
			return fmt.Errorf("init output: %w", err)
		}
	}

	a.strategy, err = extract.New(a.cfg.Selectors, a.logger.Named("extract"))
	if err != nil {
		return fmt.Errorf("init selectors: %w", err)
	}

	a.fetcher = a.opts.Fetcher
	if a.fetcher == nil {
		a.fetcher, err = NewFetcher(a.cfg.Browser, a.logger.Named("fetcher"))
		if err != nil {
			return err
		}
	}

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	a.status = sinks.NewStatusSink()
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("progress")},
		sinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		a.status,
	)
	return nil
}

// OpenStore connects the configured checkpoint backend.
func OpenStore(ctx context.Context, cfg config.CheckpointConfig, logger *zap.Logger) (*checkpoint.Store, error) {
	var (
		backend checkpoint.Backend
		err     error
	)
	switch cfg.Backend {
	case config.BackendMemory:
		backend = memory.New()
	case config.BackendLocal:
		backend, err = local.New(local.Config{Path: cfg.Path})
	case config.BackendRedis:
		backend, err = redis.New(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.Key,
		})
	case config.BackendPostgres:
		backend, err = postgres.New(ctx, postgres.Config{
			DSN:   cfg.PostgresDSN,
			Table: cfg.PostgresTable,
			Key:   cfg.Key,
		})
	case config.BackendGCS:
		var client *storage.Client
		client, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		backend, err = gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Object: cfg.GCSObject})
		if err != nil {
			_ = client.Close()
		}
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s checkpoint: %w", cfg.Backend, err)
	}
	logger.Info("checkpoint backend ready", zap.String("location", backend.Location()))
	return checkpoint.New(backend, checkpoint.WithLogger(logger.Named("checkpoint")))
}

// NewFetcher builds the page fetcher for the configured browser mode.
func NewFetcher(cfg config.BrowserConfig, logger *zap.Logger) (crawl.Fetcher, error) {
	switch cfg.Mode {
	case config.ModeStatic:
		return collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.NavigationTimeout,
		}), nil
	case config.ModeHeadless:
		var filter headless.Filter
		if cfg.BlockImages {
			filter = headless.BlockImages{}
		}
		f, err := headless.NewChromedp(headless.Config{
			Headless:          cfg.Headless,
			UserAgent:         cfg.UserAgent,
			NavigationTimeout: cfg.NavigationTimeout,
			ExecPath:          cfg.ExecPath,
			Filter:            filter,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown browser mode %q", cfg.Mode)
	}
}

// RunID identifies this run in progress events.
func (a *App) RunID() uuid.UUID {
	return a.runID
}

// Store exposes the checkpoint store.
func (a *App) Store() *checkpoint.Store {
	return a.store
}

// Run crawls until completion, interruption, or a fatal error. When
// status.addr is set the status server runs for the duration of the crawl.
func (a *App) Run(ctx context.Context) crawl.Result {
	crawlCfg := a.cfg.CrawlConfig()
	if a.opts.MaxPages > 0 {
		crawlCfg.MaxPages = a.opts.MaxPages
	}
	orch, err := crawl.New(crawlCfg, crawl.Dependencies{
		Store:      a.store,
		Sink:       a.sink,
		Fetcher:    a.fetcher,
		Enumerator: a.strategy,
		Extractor:  a.strategy,
		Pagination: a.strategy,
		Reporter:   progress.NewReporter(a.runID, a.hub, nil),
		Attention:  a.opts.Attention,
	}, a.logger.Named("crawl"))
	if err != nil {
		return crawl.Result{Outcome: crawl.OutcomeFatal, Err: err}
	}

	if a.cfg.Status.Addr != "" {
		srvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := a.serveStatus(srvCtx)
		defer func() {
			cancel()
			<-done
		}()
	}

	a.logger.Info("crawl starting", zap.String("run_id", a.runID.String()))
	return orch.Run(ctx)
}

func (a *App) serveStatus(ctx context.Context) <-chan struct{} {
	server := api.NewServer(api.Options{
		Checkpoint:  a.store,
		Status:      a.status,
		Gatherer:    a.registry,
		HTTPMetrics: metrics.NewHTTP(a.registry),
		APIKey:      a.cfg.Status.APIKey,
		Logger:      a.logger.Named("api"),
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.ListenAndServe(ctx, a.cfg.Status.Addr); err != nil {
			a.logger.Error("status server failed", zap.Error(err))
		}
	}()
	return done
}

// Close flushes progress and releases the browser and checkpoint backend.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.hub != nil {
			if err := a.hub.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if a.fetcher != nil {
			if err := a.fetcher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close fetcher: %w", err))
			}
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close checkpoint: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

// logSink stands in for the CSV sink during dry runs.
type logSink struct {
	logger *zap.Logger
}

func (s logSink) InitHeader(_ context.Context, header [][]string) error {
	s.logger.Info("header", zap.Any("rows", header))
	return nil
}

func (s logSink) Append(_ context.Context, rows [][]string) error {
	for _, row := range rows {
		s.logger.Info("row", zap.Strings("fields", row))
	}
	return nil
}
