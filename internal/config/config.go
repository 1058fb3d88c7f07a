package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Stores    StoresConfig    `mapstructure:"stores"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	DocStore  DocStoreConfig  `mapstructure:"docstore"`
}

// ServerConfig holds the bundle API listener configuration
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // gin mode: "debug", "release" or "test"
}

// StoresConfig holds the document store endpoints the bundle API talks to
type StoresConfig struct {
	BundleURL string        `mapstructure:"bundle_url"`
	BookURL   string        `mapstructure:"book_url"`
	Timeout   time.Duration `mapstructure:"timeout"` // 0 keeps the transport default
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File   string `mapstructure:"file"`   // empty logs to stderr
	Level  string `mapstructure:"level"`  // DEBUG, INFO, WARN, ERROR
	Format string `mapstructure:"format"` // "json", "text" or "auto"
}

// RateLimitConfig holds per-client request limits. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

// DocStoreConfig holds the development document store configuration
type DocStoreConfig struct {
	Addr      string   `mapstructure:"addr"`
	Path      string   `mapstructure:"path"` // empty keeps documents in memory only
	Databases []string `mapstructure:"databases"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":3000",
			Mode: "release",
		},
		Stores: StoresConfig{
			BundleURL: "http://localhost:5984/b4",
			BookURL:   "http://localhost:5984/books",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "auto",
		},
		RateLimit: RateLimitConfig{
			IdleTTL: 10 * time.Minute,
		},
		DocStore: DocStoreConfig{
			Addr:      ":5984",
			Path:      filepath.Join(defaultDataPath(), "docstore.db"),
			Databases: []string{"b4", "books"},
		},
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "b4")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "b4")
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "b4")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "b4")
	}
}

// LoadConfig loads configuration from file and environment.
// An explicit path wins over the default search locations.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. B4_STORES_BUNDLE_URL
	v.SetEnvPrefix("B4")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.mode", cfg.Server.Mode)

	v.SetDefault("stores.bundle_url", cfg.Stores.BundleURL)
	v.SetDefault("stores.book_url", cfg.Stores.BookURL)
	v.SetDefault("stores.timeout", cfg.Stores.Timeout)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("rate_limit.rps", cfg.RateLimit.RPS)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)
	v.SetDefault("rate_limit.idle_ttl", cfg.RateLimit.IdleTTL)

	v.SetDefault("docstore.addr", cfg.DocStore.Addr)
	v.SetDefault("docstore.path", cfg.DocStore.Path)
	v.SetDefault("docstore.databases", cfg.DocStore.Databases)
}

// Validate checks the settings the bundle API cannot run without
func (c *Config) Validate() error {
	if err := validateStoreURL("stores.bundle_url", c.Stores.BundleURL); err != nil {
		return err
	}
	if err := validateStoreURL("stores.book_url", c.Stores.BookURL); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.burst must be positive when rate_limit.rps is set")
	}
	return nil
}

func validateStoreURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}
