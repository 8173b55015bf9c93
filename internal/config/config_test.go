package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Crawler.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Crawler.RetryDelay)
	assert.Equal(t, 2*time.Second, cfg.Crawler.ProxyDelay)
	assert.Equal(t, 60*time.Second, cfg.Crawler.DirectDelay)
	assert.Equal(t, 30*time.Second, cfg.Crawler.Timeout)
	assert.Equal(t, 5, cfg.Crawler.MaxRedirects)
	assert.False(t, cfg.Crawler.GenerateIdentifiers)
	assert.Equal(t, time.Hour, cfg.Proxy.GeoNodeTTL)
	assert.Equal(t, 30*time.Minute, cfg.Proxy.ProxiflyTTL)
	assert.Equal(t, 100, cfg.Proxy.ValidationLimit)
	assert.Equal(t, DefaultGeoNodeURL, cfg.Proxy.GeoNodeURL)
	assert.True(t, cfg.Events.ChainCompare)
	assert.Equal(t, "stream:pricewatch", cfg.Events.Stream)
	assert.Equal(t, int64(10000), cfg.Events.StreamMaxLen)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_MAX_RETRIES", "5")
	t.Setenv("CRAWLER_DIRECT_DELAY", "10s")
	t.Setenv("CRAWLER_GENERATE_IDENTIFIERS", "true")
	t.Setenv("PROXY_MANUAL", "1.2.3.4:8080, socks5://u:p@5.6.7.8:1080 ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Crawler.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Crawler.DirectDelay)
	assert.True(t, cfg.Crawler.GenerateIdentifiers)
	assert.Equal(t, []string{"1.2.3.4:8080", "socks5://u:p@5.6.7.8:1080"}, cfg.Proxy.Manual)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CRAWLER_MAX_RETRIES", "many")
	t.Setenv("CRAWLER_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Crawler.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Crawler.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"no db host", func(c *Config) { c.Database.Host = "" }, "database host is required"},
		{"zero retries", func(c *Config) { c.Crawler.MaxRetries = 0 }, "CRAWLER_MAX_RETRIES"},
		{"zero parallel", func(c *Config) { c.Crawler.Parallel = 0 }, "CRAWLER_PARALLEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, Name: "prices", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5433/prices?sslmode=disable", d.DSN())
}
