package proxy

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

type PoolConfig struct {
	Enabled bool
	Manual  []string
}

// Pool rotates round-robin over the proxies that have not failed during
// the current run. All methods are safe for concurrent use.
type Pool struct {
	cfg       PoolConfig
	providers []Provider
	logger    *slog.Logger

	mu      sync.Mutex
	entries []Entry
	failed  map[string]struct{}
	cursor  int
}

func NewPool(cfg PoolConfig, providers []Provider, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:       cfg,
		providers: providers,
		logger:    logger.With("component", "proxy_pool"),
		failed:    make(map[string]struct{}),
	}
}

// Load replaces the pool contents with the providers' current lists and
// the manual entries, and clears the failed set.
func (p *Pool) Load(ctx context.Context) int {
	if !p.cfg.Enabled {
		p.logger.Info("proxy system is disabled")
		p.replace(nil)
		return 0
	}

	var entries []Entry
	for _, provider := range p.providers {
		list := provider.GetProxies(ctx)
		for _, e := range list {
			if e.Protocol == "" {
				e.Protocol = ProtocolHTTP
			}
			e.Provider = provider.Name()
			entries = append(entries, e)
		}
		p.logger.Info("loaded proxies from provider", "provider", provider.Name(), "count", len(list))
	}

	manual := 0
	for _, line := range p.cfg.Manual {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := ParseManual(line)
		if err != nil {
			p.logger.Warn("skipping manual proxy", "proxy", line, "error", err)
			continue
		}
		e.Provider = "manual"
		entries = append(entries, e)
		manual++
	}
	if manual > 0 {
		p.logger.Info("loaded manual proxies", "count", manual)
	}

	p.replace(entries)
	p.logger.Info("proxy pool loaded", "total", len(entries))
	return len(entries)
}

func (p *Pool) replace(entries []Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = dedupe(entries)
	p.failed = make(map[string]struct{})
	p.cursor = 0
}

func dedupe(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if _, ok := seen[e.Endpoint()]; ok {
			continue
		}
		seen[e.Endpoint()] = struct{}{}
		out = append(out, e)
	}
	return out
}

func (p *Pool) availableLocked() []Entry {
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		if _, bad := p.failed[e.Endpoint()]; !bad {
			out = append(out, e)
		}
	}
	return out
}

// Next returns the next usable proxy, or false when none remain.
func (p *Pool) Next() (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	available := p.availableLocked()
	if len(available) == 0 {
		return Entry{}, false
	}

	e := available[p.cursor%len(available)]
	p.cursor++
	return e, true
}

// MarkFailed excludes the proxy for the rest of the run and evicts it
// from its provider's cache.
func (p *Pool) MarkFailed(ctx context.Context, endpoint string) {
	p.mu.Lock()
	if _, already := p.failed[endpoint]; already {
		p.mu.Unlock()
		return
	}
	p.failed[endpoint] = struct{}{}

	var origin string
	for _, e := range p.entries {
		if e.Endpoint() == endpoint {
			origin = e.Provider
			break
		}
	}
	p.mu.Unlock()

	p.logger.Warn("proxy marked as failed", "proxy", endpoint, "provider", origin)

	for _, provider := range p.providers {
		if provider.Name() == origin {
			provider.RemoveProxy(ctx, endpoint)
		}
	}
}

func (p *Pool) ResetFailed() {
	p.mu.Lock()
	n := len(p.failed)
	p.failed = make(map[string]struct{})
	p.mu.Unlock()

	p.logger.Info("reset failed proxies", "count", n)
}

// Count returns the number of loaded proxies, failed ones included.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.availableLocked())
}

func (p *Pool) HasProxies() bool {
	return p.Available() > 0
}

// Providers returns the configured providers.
func (p *Pool) Providers() []Provider {
	return p.providers
}
