package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/identifier"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/proxy"
	"github.com/maltedev/pricewatch/internal/ratelimit"
)

var ErrNoIdentifier = errors.New("no product identifier found")

// ProxySource hands out proxies for fetch attempts. *proxy.Pool satisfies it.
type ProxySource interface {
	Next() (proxy.Entry, bool)
	MarkFailed(ctx context.Context, endpoint string)
	HasProxies() bool
}

type Options struct {
	MaxRetries          int
	RetryDelay          time.Duration
	ProxyDelay          time.Duration
	DirectDelay         time.Duration
	Parallel            int
	GenerateIdentifiers bool
}

func OptionsFromConfig(cfg config.CrawlerConfig) Options {
	return Options{
		MaxRetries:          cfg.MaxRetries,
		RetryDelay:          cfg.RetryDelay,
		ProxyDelay:          cfg.ProxyDelay,
		DirectDelay:         cfg.DirectDelay,
		Parallel:            cfg.Parallel,
		GenerateIdentifiers: cfg.GenerateIdentifiers,
	}
}

// ResultHandler receives the rows of each competitor that crawled
// successfully. A returned error marks the competitor as failed.
type ResultHandler func(ctx context.Context, c models.Competitor, rows []models.RawProductRow) error

type Crawler struct {
	fetcher   Fetcher
	renderer  Fetcher
	pool      ProxySource
	extractor *Extractor
	opts      Options
	events    chan<- Event
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Crawler)

// WithRenderer sets the fetcher used for competitors with render "browser".
func WithRenderer(f Fetcher) Option {
	return func(c *Crawler) { c.renderer = f }
}

// WithEvents publishes progress events on ch.
func WithEvents(ch chan<- Event) Option {
	return func(c *Crawler) { c.events = ch }
}

// New creates a crawler. pool may be nil, in which case every request
// goes out directly.
func New(fetcher Fetcher, pool ProxySource, opts Options, logger *slog.Logger, options ...Option) *Crawler {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}

	c := &Crawler{
		fetcher:   fetcher,
		pool:      pool,
		extractor: NewExtractor(logger),
		opts:      opts,
		logger:    logger.With("component", "crawler"),
		now:       time.Now,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Crawl visits every product URL of one competitor in order and returns
// the rows that could be extracted. URLs that fail are skipped; only
// context cancellation or an unusable configuration return an error.
func (c *Crawler) Crawl(ctx context.Context, comp models.Competitor, cfg models.CompetitorCrawlConfig) ([]models.RawProductRow, error) {
	urls := cfg.URLs()
	if len(urls) == 0 {
		return nil, fmt.Errorf("competitor %s has no product URLs", comp.Name)
	}

	fetcher, err := c.fetcherFor(cfg.Render)
	if err != nil {
		return nil, err
	}

	log := c.logger.With("competitor", comp.Name)
	log.Info("starting crawl", "urls", len(urls), "render", cfg.Render)
	c.emit(ctx, Event{Type: EventStarted, Competitor: comp.Name, Message: fmt.Sprintf("%d product URLs", len(urls))})

	limiter := ratelimit.NewSimpleRateLimiter(0, 0)
	var rows []models.RawProductRow

	for i, u := range urls {
		c.emit(ctx, Event{Type: EventScraping, Competitor: comp.Name, URL: u, Message: fmt.Sprintf("%d/%d", i+1, len(urls))})

		row, err := c.crawlURL(ctx, fetcher, comp, cfg, u, log)
		limiter.Touch()
		switch {
		case err != nil && ctx.Err() != nil:
			return rows, ctx.Err()
		case err != nil:
			log.Warn("skipping product URL", "url", u, "error", err)
			c.emit(ctx, Event{Type: EventError, Competitor: comp.Name, URL: u, Message: err.Error()})
		default:
			rows = append(rows, row)
			c.emit(ctx, Event{Type: EventItemFound, Competitor: comp.Name, URL: u, Message: row.RawIdentifier})
		}

		// Every URL, the last one included, is followed by a pause.
		delay := c.delay()
		limiter.SetDelay(delay, delay)
		c.emit(ctx, Event{Type: EventWaiting, Competitor: comp.Name, Delay: delay})
		if err := limiter.Wait(ctx); err != nil {
			return rows, err
		}
	}

	log.Info("crawl finished", "urls", len(urls), "items", len(rows))
	c.emit(ctx, Event{Type: EventFinished, Competitor: comp.Name, Count: len(rows)})

	return rows, nil
}

// CrawlAll crawls each competitor, decoding its stored configuration
// first. A failing competitor never aborts the batch.
func (c *Crawler) CrawlAll(ctx context.Context, competitors []models.Competitor, handle ResultHandler) models.Summary {
	summary := models.Summary{}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(c.opts.Parallel)

	for _, comp := range competitors {
		g.Go(func() error {
			count, err := c.crawlOne(ctx, comp, handle)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Error("competitor crawl failed", "competitor", comp.Name, "error", err)
				summary.Failed(comp.Name, err)
				return nil
			}
			summary.Succeeded(comp.Name, count)
			return nil
		})
	}
	_ = g.Wait()

	return summary
}

func (c *Crawler) crawlOne(ctx context.Context, comp models.Competitor, handle ResultHandler) (int, error) {
	cfg, err := config.DecodeCompetitorConfig(comp.Name, comp.RawConfig)
	if err != nil {
		return 0, err
	}

	rows, err := c.Crawl(ctx, comp, cfg)
	if err != nil {
		return 0, err
	}

	if handle != nil {
		if err := handle(ctx, comp, rows); err != nil {
			return 0, fmt.Errorf("failed to store rows: %w", err)
		}
	}

	return len(rows), nil
}

func (c *Crawler) crawlURL(ctx context.Context, fetcher Fetcher, comp models.Competitor, cfg models.CompetitorCrawlConfig, u string, log *slog.Logger) (models.RawProductRow, error) {
	html, err := c.fetchWithRetry(ctx, fetcher, u, log)
	if err != nil {
		return models.RawProductRow{}, err
	}

	ext, err := c.extractor.Extract(html, cfg.Selectors)
	if err != nil {
		return models.RawProductRow{}, err
	}

	raw := ext.Identifier()
	if cfg.GenerateIdentifier || c.opts.GenerateIdentifiers {
		raw = identifier.Smart(raw, u, ext.Title)
	}

	normalized := identifier.Normalize(raw)
	if normalized == "" {
		return models.RawProductRow{}, ErrNoIdentifier
	}

	return models.RawProductRow{
		RawIdentifier:        raw,
		NormalizedIdentifier: normalized,
		EAN:                  ext.EAN,
		Title:                ext.Title,
		Price:                ext.Price,
		URL:                  u,
		Source:               comp.Name,
		FetchedAt:            c.now(),
	}, nil
}

// fetchWithRetry makes up to MaxRetries attempts, each with the next proxy
// from the pool. A proxy that fails an attempt is marked failed.
func (c *Crawler) fetchWithRetry(ctx context.Context, fetcher Fetcher, u string, log *slog.Logger) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := ratelimit.Sleep(ctx, c.opts.RetryDelay); err != nil {
				return "", err
			}
		}

		var p *proxy.Entry
		if c.pool != nil {
			if e, ok := c.pool.Next(); ok {
				p = &e
			}
		}

		html, err := fetcher.Fetch(ctx, u, p)
		if err == nil {
			return html, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		log.Warn("fetch attempt failed", "url", u, "attempt", attempt, "proxy", proxyLabel(p), "error", err)

		if p != nil {
			c.pool.MarkFailed(ctx, p.Endpoint())
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.opts.MaxRetries, lastErr)
}

func (c *Crawler) fetcherFor(render string) (Fetcher, error) {
	if render == models.RenderBrowser {
		if c.renderer == nil {
			return nil, errors.New("browser rendering requested but no renderer is configured")
		}
		return c.renderer, nil
	}
	return c.fetcher, nil
}

func (c *Crawler) delay() time.Duration {
	if c.pool != nil && c.pool.HasProxies() {
		return c.opts.ProxyDelay
	}
	return c.opts.DirectDelay
}

func (c *Crawler) emit(ctx context.Context, ev Event) {
	if c.events == nil {
		return
	}
	ev.Time = c.now()
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func proxyLabel(p *proxy.Entry) string {
	if p == nil {
		return "direct"
	}
	return p.String()
}
