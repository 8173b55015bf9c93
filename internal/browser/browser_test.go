package browser

import (
	"testing"
	"time"

	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/crawler"
	"github.com/maltedev/pricewatch/internal/proxy"
)

var _ crawler.Fetcher = (*Renderer)(nil)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.Headless {
		t.Error("Expected headless to be true by default")
	}

	if opts.Timeout != 30*time.Second {
		t.Errorf("Expected timeout to be 30s, got %v", opts.Timeout)
	}

	if opts.ViewportWidth != 1920 || opts.ViewportHeight != 1080 {
		t.Errorf("Expected viewport to be 1920x1080, got %dx%d", opts.ViewportWidth, opts.ViewportHeight)
	}

	if opts.Locale != "de-DE" {
		t.Errorf("Expected locale to be de-DE, got %s", opts.Locale)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.BrowserConfig{Headless: false, Timeout: 45 * time.Second}, "pricewatch/1.0")

	if opts.Headless {
		t.Error("Expected headless to follow config")
	}
	if opts.Timeout != 45*time.Second {
		t.Errorf("Expected timeout to be 45s, got %v", opts.Timeout)
	}
	if opts.UserAgent != "pricewatch/1.0" {
		t.Errorf("Expected user agent override, got %s", opts.UserAgent)
	}

	opts = OptionsFromConfig(config.BrowserConfig{Headless: true}, "")
	if opts.Timeout != 30*time.Second || opts.UserAgent != config.DefaultUserAgent {
		t.Errorf("Expected defaults to be kept, got %v %s", opts.Timeout, opts.UserAgent)
	}
}

func TestContextOptions_Proxy(t *testing.T) {
	opts := DefaultOptions()

	direct := contextOptions(opts, nil)
	if direct.Proxy != nil {
		t.Errorf("Expected no proxy for direct fetch, got %+v", direct.Proxy)
	}

	tests := []struct {
		name   string
		entry  proxy.Entry
		server string
		user   string
	}{
		{"http", proxy.Entry{Host: "10.0.0.1", Port: 8080, Protocol: proxy.ProtocolHTTP}, "http://10.0.0.1:8080", ""},
		{"no protocol", proxy.Entry{Host: "10.0.0.2", Port: 3128}, "http://10.0.0.2:3128", ""},
		{"socks5 with auth", proxy.Entry{Host: "10.0.0.3", Port: 1080, Protocol: proxy.ProtocolSOCKS5, Username: "u", Password: "p"}, "socks5://10.0.0.3:1080", "u"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contextOptions(opts, &tt.entry)
			if got.Proxy == nil {
				t.Fatal("Expected proxy to be set")
			}
			if got.Proxy.Server != tt.server {
				t.Errorf("Expected server %s, got %s", tt.server, got.Proxy.Server)
			}
			if tt.user == "" && got.Proxy.Username != nil {
				t.Errorf("Expected no username, got %s", *got.Proxy.Username)
			}
			if tt.user != "" && (got.Proxy.Username == nil || *got.Proxy.Username != tt.user) {
				t.Errorf("Expected username %s", tt.user)
			}
		})
	}
}
