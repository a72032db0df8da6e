package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string `env:"PORTUNUS_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"PORTUNUS_GRPC_ADDR" envDefault:":9090"`

	Env    string `env:"PORTUNUS_ENV" envDefault:"dev"`      // "dev" | "prod"
	Store  string `env:"PORTUNUS_STORE" envDefault:"sqlite"` // "sqlite" | "memory"
	DBPath string `env:"PORTUNUS_DB_PATH" envDefault:"./data/portunus.db"`

	PluginDir     string `env:"PORTUNUS_PLUGIN_DIR" envDefault:"./plugins"`
	PluginPattern string `env:"PORTUNUS_PLUGIN_PATTERN" envDefault:"*.yaml"`
	SiteConfig    string `env:"PORTUNUS_SITE_CONFIG"`

	PinTimeout   time.Duration `env:"PORTUNUS_PIN_TIMEOUT" envDefault:"3s"`
	PinMaxLength int           `env:"PORTUNUS_PIN_MAX_LENGTH" envDefault:"0"` // 0 = unlimited

	// Audit and status retention
	EventRetentionDays int `env:"PORTUNUS_EVENT_RETENTION_DAYS" envDefault:"90"` // 0 = keep forever
	PruneIntervalHours int `env:"PORTUNUS_PRUNE_INTERVAL_HOURS" envDefault:"6"`

	FeedbackQueueLen int `env:"PORTUNUS_FEEDBACK_QUEUE_LEN" envDefault:"16"`
	BusBuffer        int `env:"PORTUNUS_BUS_BUFFER" envDefault:"64"`

	LogLevel  string `env:"PORTUNUS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PORTUNUS_LOG_FORMAT" envDefault:"text"`

	OTelEndpoint string `env:"PORTUNUS_OTEL_ENDPOINT"` // empty = tracing off
}

// FromEnv parses the environment.  Malformed values are errors; values that
// parse but make no sense fall back to their defaults.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}

	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store != "sqlite" && c.Store != "memory" {
		c.Store = "sqlite"
	}

	if strings.TrimSpace(c.PluginPattern) == "" {
		c.PluginPattern = "*.yaml"
	}
	if c.PinTimeout <= 0 {
		c.PinTimeout = 3 * time.Second
	}
	if c.PinMaxLength < 0 {
		c.PinMaxLength = 0
	}
	if c.EventRetentionDays < 0 {
		c.EventRetentionDays = 90
	}
	if c.PruneIntervalHours <= 0 {
		c.PruneIntervalHours = 6
	}
	if c.FeedbackQueueLen <= 0 {
		c.FeedbackQueueLen = 16
	}
	if c.BusBuffer <= 0 {
		c.BusBuffer = 64
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != "json" {
		c.LogFormat = "text"
	}
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
