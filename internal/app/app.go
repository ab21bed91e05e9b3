// Package app builds the long-lived services of a scrape from configuration
// and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/mostaql-scraper/internal/clock/system"
	"github.com/JakeFAU/mostaql-scraper/internal/config"
	"github.com/JakeFAU/mostaql-scraper/internal/extract"
	collyfetcher "github.com/JakeFAU/mostaql-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/mostaql-scraper/internal/hash/sha256"
	"github.com/JakeFAU/mostaql-scraper/internal/id/uuid"
	"github.com/JakeFAU/mostaql-scraper/internal/metrics"
	"github.com/JakeFAU/mostaql-scraper/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/mostaql-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
	"github.com/JakeFAU/mostaql-scraper/internal/sink/csvfile"
	"github.com/JakeFAU/mostaql-scraper/internal/storage/gcs"
	"github.com/JakeFAU/mostaql-scraper/internal/storage/mongo"
	"github.com/JakeFAU/mostaql-scraper/internal/storage/postgres"
	"github.com/JakeFAU/mostaql-scraper/internal/storage/sqlite"
)

// App holds the pipeline and every service it was wired with.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	pipeline *scraper.Pipeline
	closers  []closer
}

type closer struct {
	name  string
	close func(context.Context) error
}

// New wires a Pipeline from cfg. Optional services are enabled by their
// config keys and fail fast when they cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Warn("Failed to release services after init error", zap.Error(closeErr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Listen(cfg.Metrics.Addr, logger.Named("metrics"))
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		a.onClose("metrics", srv.Shutdown)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.Timeout(),
	}, logger.Named("fetcher"))
	links := extract.NewLinkExtractor(fetcher, extract.LinkConfig{
		Origin:            cfg.Scraper.Origin,
		ProjectPathMarker: cfg.Scraper.ProjectPathMarker,
	}, logger.Named("links"))
	details := extract.NewDetailExtractor(fetcher, logger.Named("details"))

	sink, err := csvfile.New(cfg.Output.Dir, logger.Named("csv"))
	if err != nil {
		return fmt.Errorf("init csv sink: %w", err)
	}

	opts := []scraper.Option{
		scraper.WithHasher(sha256.New()),
		scraper.WithClock(system.New()),
		scraper.WithIDGenerator(uuid.New()),
	}
	if cfg.Scraper.Concurrency > 1 {
		opts = append(opts, scraper.WithLimiter(ratelimit.New(ratelimit.Config{Interval: cfg.Delay()})))
	}

	stores, err := a.recordStores(ctx)
	if err != nil {
		return err
	}
	opts = append(opts, scraper.WithRecordStores(stores...))

	if cfg.GCS.Bucket != "" {
		logger.Info("Uploading artifacts to GCS", zap.String("bucket", cfg.GCS.Bucket))
		artifacts, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.GCS.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs: %w", err)
		}
		a.onClose("gcs", func(context.Context) error { return artifacts.Close() })
		opts = append(opts, scraper.WithArtifactStore(artifacts))
	}

	if cfg.PubSub.ProjectID != "" {
		logger.Info("Publishing run summaries", zap.String("topic", cfg.PubSub.Topic))
		pub, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		a.onClose("pubsub", func(context.Context) error { return pub.Close() })
		opts = append(opts, scraper.WithPublisher(pub))
	}

	a.pipeline = scraper.NewPipeline(scraper.Config{
		Delay:          cfg.Delay(),
		Concurrency:    cfg.Scraper.Concurrency,
		OutputName:     cfg.Output.Filename,
		Topic:          cfg.PubSub.Topic,
		ArtifactPrefix: cfg.GCS.Prefix,
	}, links, details, sink, scraper.TimerPauser{}, logger.Named("pipeline"), opts...)
	return nil
}

func (a *App) recordStores(ctx context.Context) ([]scraper.RecordStore, error) {
	var stores []scraper.RecordStore
	if path := a.cfg.SQLite.Path; path != "" {
		a.logger.Info("Saving records to SQLite", zap.String("path", path))
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		a.onClose("sqlite", func(context.Context) error { return store.Close() })
		stores = append(stores, store)
	}
	if dsn := a.cfg.Postgres.DSN; dsn != "" {
		a.logger.Info("Saving records to Postgres", zap.String("table", a.cfg.Postgres.Table))
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      dsn,
			Table:    a.cfg.Postgres.Table,
			MaxConns: a.cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.onClose("postgres", func(context.Context) error { store.Close(); return nil })
		stores = append(stores, store)
	}
	if uri := a.cfg.Mongo.URI; uri != "" {
		a.logger.Info("Saving records to MongoDB",
			zap.String("database", a.cfg.Mongo.Database),
			zap.String("collection", a.cfg.Mongo.Collection))
		store, err := mongo.Dial(ctx, mongo.Config{
			URI:        uri,
			Database:   a.cfg.Mongo.Database,
			Collection: a.cfg.Mongo.Collection,
		})
		if err != nil {
			return nil, fmt.Errorf("init mongo: %w", err)
		}
		a.onClose("mongo", store.Close)
		stores = append(stores, store)
	}
	return stores, nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Run executes one scrape.
func (a *App) Run(ctx context.Context, params scraper.Params) (scraper.RunSummary, error) {
	return a.pipeline.Run(ctx, params)
}

// Close releases services in reverse start order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.logger.Warn("Failed to close service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
