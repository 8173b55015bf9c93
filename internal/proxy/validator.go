package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

type ValidatorConfig struct {
	Target         string
	Limit          int
	Concurrency    int
	ConnectTimeout time.Duration
	Timeout        time.Duration
}

// Validator checks candidates through themselves with a HEAD request.
type Validator struct {
	cfg    ValidatorConfig
	logger *slog.Logger
}

func NewValidator(cfg ValidatorConfig, logger *slog.Logger) *Validator {
	if cfg.Target == "" {
		cfg.Target = "http://www.google.com"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 25
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Validator{cfg: cfg, logger: logger.With("component", "proxy_validator")}
}

// Validate returns the working subset of the first Limit candidates,
// preserving their order.
func (v *Validator) Validate(ctx context.Context, candidates []Entry) []Entry {
	if len(candidates) > v.cfg.Limit {
		candidates = candidates[:v.cfg.Limit]
	}
	if len(candidates) == 0 {
		return nil
	}

	ok := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.Concurrency)

	for i := range candidates {
		g.Go(func() error {
			ok[i] = v.check(gctx, candidates[i])
			return nil
		})
	}
	_ = g.Wait()

	var valid []Entry
	for i, e := range candidates {
		if ok[i] {
			valid = append(valid, e)
		}
	}

	v.logger.Debug("validation finished", "checked", len(candidates), "valid", len(valid))
	return valid
}

// check reports whether the proxy answered with 2xx, 3xx or 403. A 403
// means the proxy works and the target refused it.
func (v *Validator) check(ctx context.Context, e Entry) bool {
	transport, err := NewTransport(&e, TransportOptions{
		ConnectTimeout: v.cfg.ConnectTimeout,
		InsecureTLS:    true,
	})
	if err != nil {
		return false
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   v.cfg.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, v.cfg.Target, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	code := resp.StatusCode
	return (code >= 200 && code < 400) || code == http.StatusForbidden
}
