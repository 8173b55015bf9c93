package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/proxy"
)

var (
	ErrEmptyBody        = errors.New("empty response body")
	ErrExtractionMiss   = errors.New("title or price not found")
	ErrRetriesExhausted = errors.New("all fetch attempts failed")
)

// FetchError is a transient failure of one fetch attempt.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher returns the HTML of a page, optionally through a proxy.
type Fetcher interface {
	Fetch(ctx context.Context, url string, p *proxy.Entry) (string, error)
}

type HTTPFetcherOptions struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
	MaxRedirects   int
	InsecureTLS    bool
	UserAgent      string
	MaxBodyBytes   int64
}

// HTTPFetcher issues plain GET requests with browser-like headers. A new
// transport is built per request so that proxies never share connections.
type HTTPFetcher struct {
	opts HTTPFetcherOptions
}

func NewHTTPFetcher(opts HTTPFetcherOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = 5
	}
	if opts.UserAgent == "" {
		opts.UserAgent = config.DefaultUserAgent
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	return &HTTPFetcher{opts: opts}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, p *proxy.Entry) (string, error) {
	transport, err := proxy.NewTransport(p, proxy.TransportOptions{
		ConnectTimeout: f.opts.ConnectTimeout,
		InsecureTLS:    f.opts.InsecureTLS,
	})
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer transport.CloseIdleConnections()

	maxRedirects := f.opts.MaxRedirects
	client := &http.Client{
		Transport: transport,
		Timeout:   f.opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	f.setHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return "", &FetchError{URL: url, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	html := string(body)
	if strings.TrimSpace(html) == "" {
		return "", &FetchError{URL: url, Err: ErrEmptyBody}
	}

	return html, nil
}

func (f *HTTPFetcher) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
