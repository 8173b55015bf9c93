package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/crawler"
	"github.com/maltedev/pricewatch/internal/proxy"
)

// Renderer fetches pages through headless Chromium for competitors whose
// prices only appear after scripts ran. Every Fetch gets its own browser
// context, so cookies and proxies never leak between requests.
type Renderer struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	TimezoneID     string
	Locale         string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      config.DefaultUserAgent,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		TimezoneID:     "Europe/Berlin",
		Locale:         "de-DE",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "de-DE,de;q=0.9,en;q=0.8",
			"DNT":             "1",
		},
	}
}

// OptionsFromConfig overlays the browser and crawler settings on the defaults.
func OptionsFromConfig(cfg config.BrowserConfig, userAgent string) *Options {
	opts := DefaultOptions()
	opts.Headless = cfg.Headless
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	if userAgent != "" {
		opts.UserAgent = userAgent
	}
	return opts
}

func New(opts *Options, logger *slog.Logger) (*Renderer, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Renderer{
		pw:      pw,
		browser: b,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

// Fetch renders url and returns the resulting DOM as HTML.
func (r *Renderer) Fetch(ctx context.Context, url string, p *proxy.Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return "", errors.New("renderer is closed")
	}

	bctx, err := r.browser.NewContext(contextOptions(r.opts, p))
	if err != nil {
		return "", &crawler.FetchError{URL: url, Err: fmt.Errorf("failed to create browser context: %w", err)}
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return "", &crawler.FetchError{URL: url, Err: fmt.Errorf("failed to create new page: %w", err)}
	}
	page.SetDefaultTimeout(float64(r.opts.Timeout.Milliseconds()))

	// Playwright calls are not context-aware; close the page to abort.
	stop := context.AfterFunc(ctx, func() { page.Close() })
	defer stop()

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(r.opts.Timeout.Milliseconds())),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &crawler.FetchError{URL: url, Err: err}
	}
	if resp != nil && (resp.Status() < 200 || resp.Status() > 299) {
		return "", &crawler.FetchError{URL: url, StatusCode: resp.Status()}
	}

	html, err := page.Content()
	if err != nil {
		return "", &crawler.FetchError{URL: url, Err: fmt.Errorf("failed to read content: %w", err)}
	}
	if strings.TrimSpace(html) == "" {
		return "", &crawler.FetchError{URL: url, Err: crawler.ErrEmptyBody}
	}

	r.logger.Debug("page rendered", "url", url, "proxy", p != nil, "bytes", len(html))
	return html, nil
}

func contextOptions(opts *Options, p *proxy.Entry) playwright.BrowserNewContextOptions {
	out := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.ExtraHeaders,
	}

	if p != nil {
		pp := &playwright.Proxy{Server: p.String()}
		if p.Protocol == "" {
			pp.Server = "http://" + p.Endpoint()
		}
		if p.Username != "" {
			pp.Username = playwright.String(p.Username)
			pp.Password = playwright.String(p.Password)
		}
		out.Proxy = pp
	}

	return out
}

func (r *Renderer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	var errs []error

	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if r.pw != nil {
		if err := r.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}
