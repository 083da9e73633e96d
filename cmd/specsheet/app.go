package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/specsheet/internal/config"
	"github.com/jonathan/specsheet/internal/db"
	"github.com/jonathan/specsheet/internal/fetch"
	"github.com/jonathan/specsheet/internal/logging"
	"github.com/jonathan/specsheet/internal/pipeline"
	"github.com/jonathan/specsheet/internal/reconcile"
	"github.com/jonathan/specsheet/internal/scraping"
	"github.com/jonathan/specsheet/internal/session"
	"github.com/jonathan/specsheet/internal/transform"
)

// app holds the services built from a Config.
type app struct {
	cfg       *config.Config
	db        *db.DB
	store     session.Store
	merger    *reconcile.Merger
	processor *pipeline.Processor
	exporter  *pipeline.Exporter
}

// newApp wires the services. The database is optional: without a URL
// sessions live in memory and pages are not cached.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx)

	a := &app{cfg: cfg}
	if cfg.Database.URL != "" {
		database, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		a.db = database
		a.store = session.NewPersistentStore(database)
		logger.Info().Msg("using database-backed sessions")
	} else {
		a.store = session.NewMemoryStore()
		logger.Info().Msg("DATABASE_URL not set, sessions are kept in memory")
	}

	var fetcher fetch.Fetcher = fetch.NewClient(cfg.Fetch.Options())
	if a.db != nil {
		fetcher = fetch.NewCachedFetcher(fetcher, a.db, cfg.Fetch.CacheTTL)
	}
	var fallback fetch.Fetcher
	if cfg.Fetch.UseBrowser {
		fallback = &fetch.RenderingFetcher{Renderer: fetch.NewBrowser(cfg.Fetch.BrowserTimeout)}
	}
	registry := scraping.NewDefaultRegistry(fetcher, fallback)

	transformers, err := transform.Load(cfg.Transform.Dir)
	if err != nil {
		a.Close()
		return nil, err
	}

	priority, err := cfg.Reconcile.PriorityIDs()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.merger = reconcile.New(reconcile.WithPriority(priority))
	a.processor = pipeline.NewProcessor(registry, transformers, a.merger)

	var recorder pipeline.ExportRecorder
	if a.db != nil {
		recorder = a.db
	}
	a.exporter = pipeline.NewExporter(cfg.Templates.Catalog(), cfg.Style, recorder)
	return a, nil
}

// history returns the export audit store, or nil without a database.
func (a *app) history() pipeline.ExportHistory {
	if a.db == nil {
		return nil
	}
	return a.db
}

// purgePages deletes expired cached pages every interval until ctx is done.
func (a *app) purgePages(ctx context.Context, interval time.Duration) {
	if a.db == nil {
		return
	}
	logger := logging.FromContext(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.db.PurgeExpiredPages(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("page cache purge failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("pages", n).Msg("purged expired pages")
			}
		}
	}
}

// Close releases the database pool, if any.
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
