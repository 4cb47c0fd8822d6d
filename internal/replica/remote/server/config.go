package server

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string        `env:"HIVESYNC_LISTEN_ADDR"      envDefault:":8080"`
	StoreDriver     string        `env:"HIVESYNC_STORE_DRIVER"     envDefault:"sqlite"`
	StoreDSN        string        `env:"HIVESYNC_STORE_DSN"        envDefault:"./data/replicas.db"`
	APIKeys         []string      `env:"HIVESYNC_API_KEYS"         envSeparator:","`
	ShutdownTimeout time.Duration `env:"HIVESYNC_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes    int64         `env:"HIVESYNC_MAX_BODY_BYTES"   envDefault:"33554432"`
	LogFormat       string        `env:"HIVESYNC_LOG_FORMAT"       envDefault:"json"` // "json" or "text"
	LogLevel        string        `env:"HIVESYNC_LOG_LEVEL"        envDefault:"info"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the structured logger described by format and level.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
