// Package config loads process configuration for mdserver and mdctl.
//
// Sources by decreasing priority:
//  1. explicit --config path;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. environment only (cleanenv).
//
// Environment variables overlay the file in every case.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/Sternrassler/markdown-negotiation/pkg/settings"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Cache     CacheConfig     `yaml:"cache"`
	Content   ContentConfig   `yaml:"content"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Ops       OpsConfig       `yaml:"ops"`

	// Settings seeds the runtime settings store.
	Settings settings.Settings `yaml:"settings"`
}

// HTTPConfig is the public listener.
type HTTPConfig struct {
	Host            string        `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	// BaseURL prefixes permalinks in discovery links; empty keeps them relative.
	BaseURL string `yaml:"base_url" env:"HTTP_BASE_URL"`
}

func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// MetricsConfig controls the Prometheus endpoint on the public listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

// LogConfig selects level and format.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
}

// RedisConfig enables the object cache and shared rate limit windows.
// An empty URL disables Redis.
type RedisConfig struct {
	URL         string        `yaml:"url" env:"REDIS_URL"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"2s"`
}

// PostgresConfig enables the transient cache driver. An empty DSN disables it.
type PostgresConfig struct {
	DSN         string        `yaml:"dsn" env:"POSTGRES_DSN"`
	PingTimeout time.Duration `yaml:"ping_timeout" env:"POSTGRES_PING_TIMEOUT" env-default:"3s"`
}

// CacheConfig holds backend details not covered by the runtime settings.
type CacheConfig struct {
	Dir         string `yaml:"dir" env:"CACHE_DIR" env-default:"./var/cache/markdown"`
	Namespace   string `yaml:"namespace" env:"CACHE_NAMESPACE" env-default:"mna:"`
	MemoryBytes int64  `yaml:"memory_bytes" env:"CACHE_MEMORY_BYTES" env-default:"67108864"`
}

// ContentConfig points at the Markdown sources.
type ContentConfig struct {
	Dir string `yaml:"dir" env:"CONTENT_DIR" env-default:"./content"`
	// ReloadInterval rescans Dir periodically; 0 disables.
	ReloadInterval time.Duration `yaml:"reload_interval" env:"CONTENT_RELOAD_INTERVAL" env-default:"0s"`
}

// RateLimitConfig holds the rate limiter backend details.
type RateLimitConfig struct {
	// Store is "memory" or "redis".
	Store string `yaml:"store" env:"RATE_LIMIT_STORE" env-default:"memory"`
	// IPHeaders overrides the proxy headers trusted for the client address.
	IPHeaders []string `yaml:"ip_headers" env:"RATE_LIMIT_IP_HEADERS" env-separator:","`
}

// OpsConfig guards the administrative endpoints.
type OpsConfig struct {
	// Token is the bearer token for cache flush; empty disables the endpoint.
	Token string `yaml:"token" env:"OPS_TOKEN"`
}

// defaults pre-fills values env-default cannot express: a bool default of
// true would override an explicit false.
func defaults() Config {
	return Config{
		Metrics:  MetricsConfig{Enabled: true},
		Settings: settings.Default(),
	}
}

// MustLoad panics on load errors.
func MustLoad(path string) *Config {
	cfg, err := Load(path)

	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	finish := func() (*Config, error) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		return finish()
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) environment only
	return finish()
}

// Validate checks cross-field constraints and the runtime settings.
func (c *Config) Validate() error {
	switch c.RateLimit.Store {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("rate_limit.store redis requires redis.url")
		}
	default:
		return fmt.Errorf("rate_limit.store: unknown store %q", c.RateLimit.Store)
	}

	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return nil
}
