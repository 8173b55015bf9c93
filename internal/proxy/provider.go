package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Provider supplies validated proxies from one upstream list. Failures
// never escape a provider: an unreachable list yields no proxies.
type Provider interface {
	Name() string
	GetProxies(ctx context.Context) []Entry
	UpdateProxies(ctx context.Context) []Entry
	RemoveProxy(ctx context.Context, endpoint string)
}

// Checker filters candidates down to working proxies.
type Checker interface {
	Validate(ctx context.Context, candidates []Entry) []Entry
}

type decodeFunc func(body []byte) ([]Entry, error)

// listProvider implements the cache-first fetch/filter/validate cycle
// shared by the concrete providers.
type listProvider struct {
	name     string
	url      string
	cacheKey string
	ttl      time.Duration
	client   *http.Client
	cache    Cache
	checker  Checker
	decode   decodeFunc
	logger   *slog.Logger

	// mu serializes cache writes so concurrent evictions are not lost.
	mu sync.Mutex
}

func (p *listProvider) Name() string {
	return p.name
}

func (p *listProvider) GetProxies(ctx context.Context) []Entry {
	cached, ok, err := p.cache.Get(ctx, p.cacheKey)
	if err != nil {
		p.logger.Warn("proxy cache read failed", "error", err)
	}
	if ok && len(cached) > 0 {
		return cached
	}
	return p.UpdateProxies(ctx)
}

func (p *listProvider) UpdateProxies(ctx context.Context) []Entry {
	p.logger.Info("updating proxy list", "url", p.url)

	candidates, err := p.fetch(ctx)
	if err != nil {
		p.logger.Error("proxy list unavailable", "error", err)
		return nil
	}

	p.logger.Info("proxy candidates found, starting validation", "candidates", len(candidates))

	valid := p.checker.Validate(ctx, candidates)
	for i := range valid {
		valid[i].Provider = p.name
	}

	p.mu.Lock()
	err = p.cache.Set(ctx, p.cacheKey, valid, p.ttl)
	p.mu.Unlock()
	if err != nil {
		p.logger.Warn("proxy cache write failed", "error", err)
	}

	p.logger.Info("proxy cache updated", "valid", len(valid), "candidates", len(candidates))
	return valid
}

func (p *listProvider) RemoveProxy(ctx context.Context, endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cached, ok, err := p.cache.Get(ctx, p.cacheKey)
	if err != nil || !ok {
		return
	}

	kept := cached[:0]
	for _, e := range cached {
		if e.Endpoint() != endpoint {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(cached) {
		return
	}

	if err := p.cache.Set(ctx, p.cacheKey, kept, p.ttl); err != nil {
		p.logger.Warn("failed to evict proxy from cache", "proxy", endpoint, "error", err)
	}
}

func (p *listProvider) fetch(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proxy list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("proxy list request failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy list: %w", err)
	}

	entries, err := p.decode(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode proxy list: %w", err)
	}
	return entries, nil
}

// ProviderConfig configures a list provider. Zero values take the
// provider's defaults.
type ProviderConfig struct {
	URL     string
	TTL     time.Duration
	Timeout time.Duration
}

const (
	GeoNodeName  = "geonode"
	ProxiflyName = "proxifly"
)

func NewGeoNodeProvider(cfg ProviderConfig, cache Cache, checker Checker, logger *slog.Logger) Provider {
	return newListProvider(GeoNodeName, cfg, time.Hour, cache, checker, decodeGeoNode, logger)
}

func NewProxiflyProvider(cfg ProviderConfig, cache Cache, checker Checker, logger *slog.Logger) Provider {
	return newListProvider(ProxiflyName, cfg, 30*time.Minute, cache, checker, decodeProxifly, logger)
}

func newListProvider(name string, cfg ProviderConfig, defaultTTL time.Duration, cache Cache, checker Checker, decode decodeFunc, logger *slog.Logger) *listProvider {
	if cfg.TTL == 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &listProvider{
		name:     name,
		url:      cfg.URL,
		cacheKey: "proxies:" + name,
		ttl:      cfg.TTL,
		client:   &http.Client{Timeout: cfg.Timeout},
		cache:    cache,
		checker:  checker,
		decode:   decode,
		logger:   logger.With("component", "proxy_provider", "provider", name),
	}
}

// flexPort accepts ports encoded as JSON strings or numbers.
type flexPort int

func (p *flexPort) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid port %s", data)
	}
	*p = flexPort(n)
	return nil
}

type geoNodeResponse struct {
	Data []struct {
		IP             string   `json:"ip"`
		Port           flexPort `json:"port"`
		Protocols      []string `json:"protocols"`
		AnonymityLevel string   `json:"anonymityLevel"`
		Country        string   `json:"country"`
	} `json:"data"`
}

func decodeGeoNode(body []byte) ([]Entry, error) {
	var resp geoNodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	var out []Entry
	for _, item := range resp.Data {
		if item.IP == "" || item.Port == 0 || len(item.Protocols) == 0 {
			continue
		}

		anonymity := strings.ToLower(item.AnonymityLevel)
		if anonymity == "transparent" {
			continue
		}

		out = append(out, Entry{
			Host:      item.IP,
			Port:      int(item.Port),
			Protocol:  preferredProtocol(item.Protocols),
			Anonymity: anonymity,
			Country:   item.Country,
		})
	}
	return out, nil
}

// preferredProtocol picks socks5 over socks4 over http.
func preferredProtocol(protocols []string) Protocol {
	has := func(want string) bool {
		for _, p := range protocols {
			if strings.EqualFold(p, want) {
				return true
			}
		}
		return false
	}

	switch {
	case has("socks5"):
		return ProtocolSOCKS5
	case has("socks4"):
		return ProtocolSOCKS4
	default:
		return ProtocolHTTP
	}
}

type proxiflyItem struct {
	IP          string   `json:"ip"`
	Port        flexPort `json:"port"`
	Protocol    string   `json:"protocol"`
	Anonymity   string   `json:"anonymity"`
	Geolocation struct {
		Country string `json:"country"`
	} `json:"geolocation"`
}

func decodeProxifly(body []byte) ([]Entry, error) {
	var items []proxiflyItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, err
	}

	var out []Entry
	for _, item := range items {
		if item.IP == "" || item.Port == 0 {
			continue
		}

		anonymity := strings.ToLower(item.Anonymity)
		if anonymity == "transparent" {
			continue
		}

		protocol := strings.ToLower(item.Protocol)
		if protocol == "" {
			protocol = string(ProtocolHTTP)
		}
		if protocol != string(ProtocolHTTP) && protocol != string(ProtocolHTTPS) {
			continue
		}

		country := item.Geolocation.Country
		if country == "" {
			country = "unknown"
		}

		out = append(out, Entry{
			Host:      item.IP,
			Port:      int(item.Port),
			Protocol:  Protocol(protocol),
			Anonymity: anonymity,
			Country:   country,
		})
	}
	return out, nil
}
