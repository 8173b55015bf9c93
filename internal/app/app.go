// Package app wires the components shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/pricewatch/internal/browser"
	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/crawler"
	"github.com/maltedev/pricewatch/internal/csvsource"
	"github.com/maltedev/pricewatch/internal/database"
	"github.com/maltedev/pricewatch/internal/jobs"
	"github.com/maltedev/pricewatch/internal/proxy"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *database.DB
	Redis    *redis.Client
	Pool     *proxy.Pool
	Renderer *browser.Renderer
	Crawler  *crawler.Crawler
	Sources  *csvsource.Registry
	Jobs     *jobs.Service
	Relay    *database.Relay
}

// New connects to postgres and redis, applies the schema and builds the
// job service. Extra crawler options (progress events) are passed through.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...crawler.Option) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := database.New(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db

	if err := db.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.Pool = NewProxyPool(cfg.Proxy, proxy.NewRedisCache(a.Redis, "pricewatch:proxies:"), logger)

	if cfg.Browser.Enabled {
		r, err := browser.New(browser.OptionsFromConfig(cfg.Browser, cfg.Crawler.UserAgent), logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
		a.Renderer = r
		opts = append(opts, crawler.WithRenderer(r))
	}

	fetcher := crawler.NewHTTPFetcher(crawler.HTTPFetcherOptions{
		Timeout:      cfg.Crawler.Timeout,
		MaxRedirects: cfg.Crawler.MaxRedirects,
		InsecureTLS:  cfg.Crawler.InsecureTLS,
		UserAgent:    cfg.Crawler.UserAgent,
	})
	a.Crawler = crawler.New(fetcher, a.Pool, crawler.OptionsFromConfig(cfg.Crawler), logger, opts...)

	a.Sources = NewSourceRegistry(cfg.Storage)

	lock := jobs.NewRunLock(a.Redis, cfg.Scheduler.LockTTL, logger)
	a.Jobs = jobs.NewService(db, a.Sources, a.Crawler, a.Pool, lock, logger)

	a.Relay = database.NewRelay(db, a.Redis, logger, database.RelayConfig{MaxLen: cfg.Events.StreamMaxLen})

	return a, nil
}

// NewProxyPool builds the enabled providers around one shared validator
// and cache.
func NewProxyPool(cfg config.ProxyConfig, cache proxy.Cache, logger *slog.Logger) *proxy.Pool {
	validator := proxy.NewValidator(proxy.ValidatorConfig{
		Target:      cfg.ValidationTarget,
		Limit:       cfg.ValidationLimit,
		Concurrency: cfg.ValidationConcurrency,
	}, logger)

	var providers []proxy.Provider
	if cfg.GeoNodeEnabled {
		providers = append(providers, proxy.NewGeoNodeProvider(proxy.ProviderConfig{
			URL: cfg.GeoNodeURL,
			TTL: cfg.GeoNodeTTL,
		}, cache, validator, logger))
	}
	if cfg.ProxiflyEnabled {
		providers = append(providers, proxy.NewProxiflyProvider(proxy.ProviderConfig{
			URL: cfg.ProxiflyURL,
			TTL: cfg.ProxiflyTTL,
		}, cache, validator, logger))
	}

	return proxy.NewPool(proxy.PoolConfig{Enabled: cfg.Enabled, Manual: cfg.Manual}, providers, logger)
}

func NewSourceRegistry(cfg config.StorageConfig) *csvsource.Registry {
	return csvsource.NewRegistry(
		csvsource.NewLocalReader(cfg.LocalRoot),
		csvsource.NewFTPReader(),
		csvsource.NewHTTPReader(nil),
	)
}

// Close releases everything New opened. It is safe on a partly built App.
func (a *App) Close() error {
	var errs []error
	if a.Renderer != nil {
		errs = append(errs, a.Renderer.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		a.DB.Close()
	}
	return errors.Join(errs...)
}
