// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "WAKEKEEPER_"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Auth     AuthConfig     `koanf:"auth"`
	Engine   EngineConfig   `koanf:"engine"`
	Status   StatusConfig   `koanf:"status"`
	Notify   NotifyConfig   `koanf:"notify"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AuthConfig contains API authentication settings.
// An empty secret disables authentication; intended for local development only.
type AuthConfig struct {
	Secret string `koanf:"secret"`
}

// EngineConfig contains alarm engine timing settings.
type EngineConfig struct {
	Grace             time.Duration `koanf:"grace"`
	KeepAliveInterval time.Duration `koanf:"keepalive_interval"`
	PeriodicInterval  time.Duration `koanf:"periodic_interval"`
}

// StatusConfig contains status notification repost settings.
type StatusConfig struct {
	MaxRepostAttempts    int           `koanf:"max_repost_attempts"`
	RepostInitialBackoff time.Duration `koanf:"repost_initial_backoff"`
	RepostMaxBackoff     time.Duration `koanf:"repost_max_backoff"`
}

// NotifyConfig contains notification sink settings.
// Empty webhook URLs fall back to the log sink.
type NotifyConfig struct {
	WebhookURL       string        `koanf:"webhook_url"`
	StatusWebhookURL string        `koanf:"status_webhook_url"`
	Timeout          time.Duration `koanf:"timeout"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Engine: EngineConfig{
			Grace:             10 * time.Minute,
			KeepAliveInterval: 20 * time.Second,
			PeriodicInterval:  60 * time.Second,
		},
		Status: StatusConfig{
			MaxRepostAttempts:    10,
			RepostInitialBackoff: 300 * time.Millisecond,
			RepostMaxBackoff:     8 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads configuration from an optional YAML file and the
// environment. Environment variables use the WAKEKEEPER_ prefix with
// underscore-separated paths, e.g. WAKEKEEPER_SERVER__PORT=8081.
// A double underscore separates path segments so that key names may
// themselves contain underscores.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Engine.Grace <= 0 {
		return fmt.Errorf("engine.grace must be positive")
	}
	if c.Engine.KeepAliveInterval <= 0 {
		return fmt.Errorf("engine.keepalive_interval must be positive")
	}
	if c.Status.MaxRepostAttempts < 0 {
		return fmt.Errorf("status.max_repost_attempts must be non-negative")
	}
	return nil
}
