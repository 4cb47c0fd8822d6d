// Package config loads client configuration with viper.
//
// Precedence, highest first: command-line flags bound with BindFlags,
// HIVESYNC_* environment variables, <data-dir>/config.yaml (or .toml,
// .json), then the defaults below. Nested keys map to environment
// variables with "." replaced by "_", so remote.api_key is read from
// HIVESYNC_REMOTE_API_KEY.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Remote drivers.
const (
	DriverHTTP   = "http"
	DriverSQL    = "sql"
	DriverS3     = "s3"
	DriverMemory = "memory"
)

// Config is the resolved client configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Teams     []string        `mapstructure:"teams"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// RemoteConfig selects and configures the remote store.
type RemoteConfig struct {
	Driver    string   `mapstructure:"driver"`
	URL       string   `mapstructure:"url"`
	APIKey    string   `mapstructure:"api_key"`
	DSN       string   `mapstructure:"dsn"`
	SQLDriver string   `mapstructure:"sql_driver"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config configures the object-store remote.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// SyncConfig tunes the scheduler.
type SyncConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// DashboardConfig configures the live status feed.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LogConfig configures the daemon's log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DefaultDataDir returns ~/.hivesync, or .hivesync when the home directory
// is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hivesync"
	}
	return filepath.Join(home, ".hivesync")
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("HIVESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("remote.driver", DriverHTTP)
	v.SetDefault("remote.url", "http://localhost:8080")
	v.SetDefault("remote.sql_driver", "sqlite")
	v.SetDefault("remote.s3.region", "us-east-1")
	v.SetDefault("sync.debounce", 2*time.Second)
	v.SetDefault("sync.poll_interval", 5*time.Second)
	v.SetDefault("sync.timeout", 30*time.Second)
	v.SetDefault("teams", []string{})
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 7420)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	// AutomaticEnv only covers keys viper already knows; bind the ones
	// without a default explicitly.
	for _, key := range []string{"remote.api_key", "remote.dsn", "remote.s3.bucket", "remote.s3.prefix", "remote.s3.endpoint", "remote.s3.path_style"} {
		_ = v.BindEnv(key)
	}
	return v
}

// BindFlags binds command-line flags to keys. flags maps key to flag name.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, flags map[string]string) error {
	for key, name := range flags {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q for key %s", name, key)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file from the data dir, if one exists, and returns
// the validated configuration.
func Load(v *viper.Viper) (*Config, error) {
	dataDir := v.GetString("data_dir")
	v.SetConfigName("config")
	v.AddConfigPath(dataDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for the selected remote driver.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	switch c.Remote.Driver {
	case DriverHTTP:
		if c.Remote.URL == "" {
			return fmt.Errorf("remote.url is required for the http driver")
		}
	case DriverSQL:
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote.dsn is required for the sql driver")
		}
	case DriverS3:
		if c.Remote.S3.Bucket == "" {
			return fmt.Errorf("remote.s3.bucket is required for the s3 driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown remote.driver %q (want http, sql, s3 or memory)", c.Remote.Driver)
	}
	if c.Sync.Debounce <= 0 || c.Sync.PollInterval <= 0 || c.Sync.Timeout <= 0 {
		return fmt.Errorf("sync intervals must be positive")
	}
	for _, t := range c.Teams {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("teams must not contain empty ids")
		}
	}
	return nil
}

// ReplicaPath is the local replica database.
func (c *Config) ReplicaPath() string {
	return filepath.Join(c.DataDir, "replica.db")
}

// InboxDir is the directory local edits are dropped into.
func (c *Config) InboxDir() string {
	return filepath.Join(c.DataDir, "inbox")
}

// LogPath is the daemon log file.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, "daemon.log")
}

// Write saves the settings of v to <data-dir>/config.yaml.
func Write(v *viper.Viper) (string, error) {
	dir := v.GetString("data_dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
