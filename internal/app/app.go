// Package app is the composition root: it turns a validated configuration
// into a wired pipeline — store, buses, scheduler, fetcher, dedup cache,
// NLP backends, and both pipeline stages registered and self-checked.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Sumatoshi-tech/newsfang/internal/adapter"
	"github.com/Sumatoshi-tech/newsfang/internal/config"
	"github.com/Sumatoshi-tech/newsfang/internal/crypto"
	"github.com/Sumatoshi-tech/newsfang/internal/dedup"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/source"
	"github.com/Sumatoshi-tech/newsfang/internal/ingest"
	"github.com/Sumatoshi-tech/newsfang/internal/observability"
	"github.com/Sumatoshi-tech/newsfang/internal/refine"
	"github.com/Sumatoshi-tech/newsfang/internal/storage"
	"github.com/Sumatoshi-tech/newsfang/pkg/breaker"
	"github.com/Sumatoshi-tech/newsfang/pkg/bus"
	"github.com/Sumatoshi-tech/newsfang/pkg/retry"
	"github.com/Sumatoshi-tech/newsfang/pkg/sched"
)

// App holds the wired pipeline and its shared infrastructure.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB          *storage.DB
	Jobs        *storage.JobStore
	Sources     *storage.SourceStore
	Contents    *storage.ContentStore
	Refinements *storage.RefinementStore
	Tallies     *storage.TallyStore

	CommandBus *bus.CommandBus
	EventBus   *bus.EventBus
	Scheduler  *sched.Scheduler
	Registry   *adapter.Registry

	redis *redis.Client
}

// Options tunes construction beyond the file configuration.
type Options struct {
	// Logger receives all pipeline output. Nil discards it.
	Logger *slog.Logger

	// Metrics instruments both pipelines. Nil records nothing.
	Metrics *observability.PipelineMetrics
}

// New wires the full pipeline from cfg. The returned App owns the store
// connection and the optional redis client; Close releases both.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, openErr := storage.Open(ctx, storageConfig(cfg), logger)
	if openErr != nil {
		return nil, fmt.Errorf("open storage: %w", openErr)
	}

	a := &App{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Jobs:        storage.NewJobStore(db),
		Sources:     storage.NewSourceStore(db),
		Contents:    storage.NewContentStore(db),
		Refinements: storage.NewRefinementStore(db),
		Tallies:     storage.NewTallyStore(db),
		CommandBus:  bus.NewCommandBus(logger),
		EventBus:    bus.NewEventBus(logger),
		Scheduler:   sched.New(logger),
		Registry:    newRegistry(),
	}

	detector := a.newDetector(cfg, logger)

	ingestPipe := ingest.New(ingest.Deps{
		Jobs:       a.Jobs,
		Sources:    a.Sources,
		Contents:   a.Contents,
		Dedup:      detector,
		Fetcher:    adapter.NewFetcher(a.Registry, fetcherConfig(cfg), logger),
		Registry:   a.Registry,
		Sched:      a.Scheduler,
		Keys:       crypto.EnvKeyProvider{},
		CommandBus: a.CommandBus,
		EventBus:   a.EventBus,
		Metrics:    opts.Metrics,
		Thresholds: source.Thresholds{
			MinSuccessRate:         cfg.Health.MinSuccessRate,
			MinJobs:                cfg.Health.MinJobs,
			MaxConsecutiveFailures: cfg.Health.MaxConsecutiveFailures,
		},
		Validation: ingest.ValidationConfig{
			MinLength:        cfg.Validation.MinLength,
			MaxLength:        cfg.Validation.MaxLength,
			AllowedLanguages: cfg.Validation.AllowedLanguages,
		},
		Logger: logger,
	})
	if registerErr := ingestPipe.Register(); registerErr != nil {
		return nil, errors.Join(fmt.Errorf("register ingest pipeline: %w", registerErr), db.Close())
	}

	refinePipe := refine.New(refine.Deps{
		Refinements: a.Refinements,
		Tallies:     a.Tallies,
		Contents:    a.Contents,
		Chunker: refine.NewWindowChunker(refine.ChunkerConfig{
			ChunkSize:    cfg.Refine.ChunkSize,
			ChunkOverlap: cfg.Refine.ChunkOverlap,
		}),
		CommandBus:       a.CommandBus,
		EventBus:         a.EventBus,
		Metrics:          opts.Metrics,
		QualityThreshold: cfg.Refine.QualityThreshold,
		MaxParallel:      cfg.Refine.MaxParallel,
		Logger:           logger,
	})
	if registerErr := refinePipe.Register(); registerErr != nil {
		return nil, errors.Join(fmt.Errorf("register refine pipeline: %w", registerErr), db.Close())
	}

	return a, nil
}

// ReadyChecks returns the readiness probes of the wired infrastructure.
func (a *App) ReadyChecks() []observability.ReadyCheck {
	checks := []observability.ReadyCheck{a.DB.Ping}

	if a.redis != nil {
		checks = append(checks, func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}

	return checks
}

// Close cancels outstanding schedules and releases the store and cache
// connections.
func (a *App) Close() error {
	a.Scheduler.CancelAll()

	closeErr := a.DB.Close()

	if a.redis != nil {
		closeErr = errors.Join(closeErr, a.redis.Close())
	}

	return closeErr
}

// newDetector builds the duplicate detector, attaching the advisory redis
// cache when an address is configured.
func (a *App) newDetector(cfg *config.Config, logger *slog.Logger) *dedup.Detector {
	if cfg.Redis.Addr == "" {
		return dedup.New(a.Contents, logger)
	}

	a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})

	return dedup.New(a.Contents, logger, dedup.WithCache(a.redis, cfg.Redis.TTL))
}

// newRegistry returns the adapter registry with the built-in adapters.
func newRegistry() *adapter.Registry {
	reg := adapter.NewRegistry()
	reg.Register(adapter.TypeStatic, adapter.NewStatic())

	return reg
}

// storageConfig maps the file configuration onto the store tuning.
func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:          storage.Driver(cfg.Storage.Driver),
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
	}
}

// fetcherConfig maps the file configuration onto the fetcher tuning.
func fetcherConfig(cfg *config.Config) adapter.FetcherConfig {
	return adapter.FetcherConfig{
		Timeout:   cfg.Fetcher.Timeout,
		RateLimit: cfg.Fetcher.RateLimit,
		RateBurst: cfg.Fetcher.RateBurst,
		Retry: retry.Policy{
			MaxAttempts:  cfg.Fetcher.Retry.MaxAttempts,
			InitialDelay: cfg.Fetcher.Retry.InitialDelay,
			Multiplier:   cfg.Fetcher.Retry.Multiplier,
			MaxDelay:     cfg.Fetcher.Retry.MaxDelay,
			Jitter:       true,
		},
		Breaker: breaker.Settings{
			FailureThreshold: cfg.Fetcher.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Fetcher.Breaker.SuccessThreshold,
			OpenDuration:     cfg.Fetcher.Breaker.OpenDuration,
		},
	}
}
