package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/use-agent/sitegrade/api/handler"
	"github.com/use-agent/sitegrade/cache"
	"github.com/use-agent/sitegrade/config"
	"github.com/use-agent/sitegrade/engine"
	"github.com/use-agent/sitegrade/metrics"
	"github.com/use-agent/sitegrade/pipeline"
	"github.com/use-agent/sitegrade/quota"
	"github.com/use-agent/sitegrade/scraper"
	"github.com/use-agent/sitegrade/storage"
	"github.com/use-agent/sitegrade/webhook"
)

// defaultSQLiteDir is used when the sqlite quota store is selected without
// SITEGRADE_SQLITE_DIR.
const defaultSQLiteDir = "data"

// app wires the configured components together. Close releases them in
// reverse order of creation.
type app struct {
	registry *prometheus.Registry
	service  *pipeline.Service
	scraper  *scraper.Scraper
	results  *storage.SQLiteStore

	closers []func()
}

func newApp(cfg *config.Config) (_ *app, err error) {
	a := &app{registry: metrics.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	m := metrics.New(a.registry)

	// ── Persistence ─────────────────────────────────────────────────
	if cfg.Storage.SQLiteDir != "" || cfg.Quota.Store == "sqlite" {
		dir := cfg.Storage.SQLiteDir
		if dir == "" {
			dir = defaultSQLiteDir
		}
		a.results, err = storage.OpenSQLite(dir)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = a.results.Close() })
		slog.Info("sqlite store opened", "path", a.results.Path())
	}

	store, err := a.quotaStore(cfg)
	if err != nil {
		return nil, err
	}
	tracker := quota.NewTracker(store, cfg.Quota.DailyLimit,
		quota.WithLocation(cfg.Quota.Location()),
	)

	// ── Renderer ────────────────────────────────────────────────────
	var browser engine.Renderer
	if cfg.Render.Mode != engine.ModeHTTP {
		a.scraper = scraper.NewScraper(cfg.Browser, cfg.Render)
		a.onClose(a.scraper.Close)
		browser = a.scraper
	}
	renderer, err := engine.New(cfg.Render, browser)
	if err != nil {
		return nil, err
	}

	// ── Service ─────────────────────────────────────────────────────
	opts := []pipeline.Option{
		pipeline.WithMetrics(m),
		pipeline.WithRenderTimeout(cfg.Render.Timeout),
	}
	if a.results != nil {
		opts = append(opts, pipeline.WithResultStore(a.results))
	}
	if cfg.Cache.TTL > 0 {
		cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		a.onClose(cc.Close)
		opts = append(opts, pipeline.WithCache(cc))
	}
	if cfg.Webhook.URL != "" {
		n := webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret)
		n.OnResult = func(status string) {
			m.WebhookDeliveriesTotal.WithLabelValues(status).Inc()
		}
		a.onClose(n.Close)
		opts = append(opts, pipeline.WithNotifier(n))
	}
	a.service = pipeline.NewService(renderer, tracker, opts...)

	slog.Info("sitegrade components ready",
		"renderer", renderer.Name(),
		"quotaStore", cfg.Quota.Store,
		"dailyLimit", tracker.Limit(),
		"persistence", a.results != nil,
		"cache", cfg.Cache.TTL > 0,
		"webhook", cfg.Webhook.URL != "",
	)
	return a, nil
}

func (a *app) quotaStore(cfg *config.Config) (quota.Store, error) {
	switch cfg.Quota.Store {
	case "", "memory":
		return quota.NewMemoryStore(), nil
	case "sqlite":
		return a.results, nil
	case "redis":
		client, err := storage.NewRedisClient(storage.RedisConfig{
			Address:  cfg.Storage.RedisAddress,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = client.Close() })
		return storage.NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unknown quota store %q (want memory, sqlite or redis)", cfg.Quota.Store)
	}
}

// browserStats is nil when no browser is configured, so the health
// handler never calls through a nil *Scraper.
func (a *app) browserStats() handler.StatsSource {
	if a.scraper == nil {
		return nil
	}
	return a.scraper
}

// analysisReader is nil when results are not persisted.
func (a *app) analysisReader() handler.AnalysisReader {
	if a.results == nil {
		return nil
	}
	return a.results
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases every component.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
