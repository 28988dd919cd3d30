package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the errorscope server. Shared knobs
// like the correlation window live here and are passed in at construction;
// nothing reads ambient global state.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Ingest    IngestConfig
	Dashboard DashboardConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type IngestConfig struct {
	// CorrelationWindow is the sliding span within which a new event can
	// join an existing group instead of starting a new one.
	CorrelationWindow time.Duration
	// Retention controls how long raw events are kept before the sweeper
	// purges them.
	Retention     time.Duration
	SweepInterval time.Duration
	// SubmitPerMinute caps event submissions per client IP.
	SubmitPerMinute int
}

type DashboardConfig struct {
	// QueryTimeout bounds each aggregate query; on timeout the endpoint
	// degrades instead of failing the whole request.
	QueryTimeout time.Duration
	// TrendCacheTTL is how long assembled trend series stay cached.
	TrendCacheTTL time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("ERRORSCOPE_PORT", 8080),
			Env:  envString("ERRORSCOPE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Ingest: IngestConfig{
			CorrelationWindow: envDuration("CORRELATION_WINDOW", 24*time.Hour),
			Retention:         envDuration("EVENT_RETENTION", 90*24*time.Hour),
			SweepInterval:     envDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
			SubmitPerMinute:   envInt("SUBMIT_RATE_LIMIT_PER_MIN", 120),
		},
		Dashboard: DashboardConfig{
			QueryTimeout:  envDuration("DASHBOARD_QUERY_TIMEOUT", 5*time.Second),
			TrendCacheTTL: envDuration("TREND_CACHE_TTL", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Ingest.CorrelationWindow <= 0 {
		return fmt.Errorf("CORRELATION_WINDOW must be positive, got %s", c.Ingest.CorrelationWindow)
	}
	if c.Ingest.Retention < c.Ingest.CorrelationWindow {
		return fmt.Errorf("EVENT_RETENTION (%s) must not be shorter than CORRELATION_WINDOW (%s)",
			c.Ingest.Retention, c.Ingest.CorrelationWindow)
	}
	if c.Ingest.SubmitPerMinute <= 0 {
		return fmt.Errorf("SUBMIT_RATE_LIMIT_PER_MIN must be positive, got %d", c.Ingest.SubmitPerMinute)
	}

	if c.Dashboard.QueryTimeout <= 0 {
		return fmt.Errorf("DASHBOARD_QUERY_TIMEOUT must be positive, got %s", c.Dashboard.QueryTimeout)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
