package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Crawler   CrawlerConfig
	Proxy     ProxyConfig
	Storage   StorageConfig
	Browser   BrowserConfig
	Scheduler SchedulerConfig
	Events    EventsConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type CrawlerConfig struct {
	MaxRetries          int
	RetryDelay          time.Duration
	ProxyDelay          time.Duration
	DirectDelay         time.Duration
	Timeout             time.Duration
	MaxRedirects        int
	InsecureTLS         bool
	UserAgent           string
	Parallel            int
	GenerateIdentifiers bool
}

type ProxyConfig struct {
	Enabled               bool
	GeoNodeEnabled        bool
	GeoNodeURL            string
	GeoNodeTTL            time.Duration
	ProxiflyEnabled       bool
	ProxiflyURL           string
	ProxiflyTTL           time.Duration
	Manual                []string
	ValidationTarget      string
	ValidationLimit       int
	ValidationConcurrency int
}

type StorageConfig struct {
	LocalRoot string
}

type BrowserConfig struct {
	Enabled  bool
	Headless bool
	Timeout  time.Duration
}

type SchedulerConfig struct {
	Enabled          bool
	ProxyInterval    time.Duration
	SupplierInterval time.Duration
	CrawlInterval    time.Duration
	CompareInterval  time.Duration
	LockTTL          time.Duration
}

// EventsConfig controls the job event stream and its consumer.
type EventsConfig struct {
	ChainCompare bool
	Stream       string
	Group        string
	Consumer     string
	// StreamMaxLen approximately caps the stream length. Zero disables trimming.
	StreamMaxLen int64
}

const (
	DefaultGeoNodeURL  = "https://proxylist.geonode.com/api/proxy-list?limit=50&page=1&sort_by=latency&sort_type=asc&protocols=http,https&anonymityLevel=elite&anonymityLevel=anonymous"
	DefaultProxiflyURL = "https://cdn.jsdelivr.net/gh/proxifly/free-proxy-list@main/proxies/protocols/http/data.json"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("PORT", 8085),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "pricewatch"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 1)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Crawler: CrawlerConfig{
			MaxRetries:          getEnvInt("CRAWLER_MAX_RETRIES", 3),
			RetryDelay:          getEnvDuration("CRAWLER_RETRY_DELAY", 2*time.Second),
			ProxyDelay:          getEnvDuration("CRAWLER_PROXY_DELAY", 2*time.Second),
			DirectDelay:         getEnvDuration("CRAWLER_DIRECT_DELAY", 60*time.Second),
			Timeout:             getEnvDuration("CRAWLER_TIMEOUT", 30*time.Second),
			MaxRedirects:        getEnvInt("CRAWLER_MAX_REDIRECTS", 5),
			InsecureTLS:         getEnvBool("CRAWLER_INSECURE_TLS", true),
			UserAgent:           getEnv("CRAWLER_USER_AGENT", DefaultUserAgent),
			Parallel:            getEnvInt("CRAWLER_PARALLEL", 1),
			GenerateIdentifiers: getEnvBool("CRAWLER_GENERATE_IDENTIFIERS", false),
		},
		Proxy: ProxyConfig{
			Enabled:               getEnvBool("PROXY_ENABLED", true),
			GeoNodeEnabled:        getEnvBool("PROXY_GEONODE_ENABLED", true),
			GeoNodeURL:            getEnv("PROXY_GEONODE_URL", DefaultGeoNodeURL),
			GeoNodeTTL:            getEnvDuration("PROXY_GEONODE_TTL", time.Hour),
			ProxiflyEnabled:       getEnvBool("PROXY_PROXIFLY_ENABLED", true),
			ProxiflyURL:           getEnv("PROXY_PROXIFLY_URL", DefaultProxiflyURL),
			ProxiflyTTL:           getEnvDuration("PROXY_PROXIFLY_TTL", 30*time.Minute),
			Manual:                getEnvSlice("PROXY_MANUAL", nil),
			ValidationTarget:      getEnv("PROXY_VALIDATION_TARGET", "http://www.google.com"),
			ValidationLimit:       getEnvInt("PROXY_VALIDATION_LIMIT", 100),
			ValidationConcurrency: getEnvInt("PROXY_VALIDATION_CONCURRENCY", 25),
		},
		Storage: StorageConfig{
			LocalRoot: getEnv("STORAGE_ROOT", "storage"),
		},
		Browser: BrowserConfig{
			Enabled:  getEnvBool("BROWSER_ENABLED", false),
			Headless: getEnvBool("BROWSER_HEADLESS", true),
			Timeout:  getEnvDuration("BROWSER_TIMEOUT", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getEnvBool("SCHEDULER_ENABLED", true),
			ProxyInterval:    getEnvDuration("SCHEDULE_PROXIES", 30*time.Minute),
			SupplierInterval: getEnvDuration("SCHEDULE_SUPPLIERS", 6*time.Hour),
			CrawlInterval:    getEnvDuration("SCHEDULE_CRAWL", 12*time.Hour),
			CompareInterval:  getEnvDuration("SCHEDULE_COMPARE", time.Hour),
			LockTTL:          getEnvDuration("SCHEDULE_LOCK_TTL", 2*time.Hour),
		},
		Events: EventsConfig{
			ChainCompare: getEnvBool("EVENTS_CHAIN_COMPARE", true),
			Stream:       getEnv("EVENTS_STREAM", "stream:pricewatch"),
			Group:        getEnv("EVENTS_GROUP", "pricewatch-chain"),
			Consumer:     getEnv("EVENTS_CONSUMER", "pricewatch-1"),
			StreamMaxLen: int64(getEnvInt("EVENTS_STREAM_MAXLEN", 10000)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Crawler.MaxRetries < 1 {
		return fmt.Errorf("CRAWLER_MAX_RETRIES must be at least 1")
	}

	if c.Crawler.Parallel < 1 {
		return fmt.Errorf("CRAWLER_PARALLEL must be at least 1")
	}

	if c.Proxy.ValidationConcurrency < 1 {
		return fmt.Errorf("PROXY_VALIDATION_CONCURRENCY must be at least 1")
	}

	return nil
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
