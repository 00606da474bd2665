package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StorePebble   = "pebble"
)

// Brokers used when streams are held in process.
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"logLevel"`

	Store       string `yaml:"store"`
	DatabaseURL string `yaml:"databaseURL"`
	RedisURL    string `yaml:"redisURL"`
	SQLitePath  string `yaml:"sqlitePath"`
	PebbleDir   string `yaml:"pebbleDir"`

	// GripURL selects GRIP mode: streams are held by the proxy and messages
	// are published through its control API. Empty means direct mode.
	GripURL string `yaml:"gripURL"`
	Broker  string `yaml:"broker"`

	Retention   int           `yaml:"retention"`
	Retry       Retry         `yaml:"retry"`
	KeepAlive   time.Duration `yaml:"keepAlive"`
	MaxBodySize int64         `yaml:"maxBodySize"`

	// Fly.io placement, reported by /health
	Region   string `yaml:"-"`
	Instance string `yaml:"-"`
}

// Retry bounds the room log's conditional-write retries.
type Retry struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Base        time.Duration `yaml:"base"`
	Cap         time.Duration `yaml:"cap"`
	Factor      float64       `yaml:"factor"`
	Jitter      bool          `yaml:"jitter"`
}

// Default returns built-in defaults.
func Default() *Config {
	return &Config{
		Port:       "8080",
		Env:        "development",
		LogLevel:   "info",
		Store:      StoreMemory,
		SQLitePath: "./data/flychat.db",
		PebbleDir:  "./data/pebble",
		Broker:     BrokerMemory,
		Retention:  50,
		Retry: Retry{
			MaxAttempts: 10,
			Base:        5 * time.Millisecond,
			Cap:         250 * time.Millisecond,
			Factor:      2.0,
			Jitter:      true,
		},
		KeepAlive:   20 * time.Second,
		MaxBodySize: 8 * 1024,
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// FLYCHAT_CONFIG if set, then environment variables. A .env file is loaded
// into the environment first if present.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("FLYCHAT_CONFIG"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	FromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configured drivers have what they need.
func (c *Config) Validate() error {
	var errs []error

	drivers := []string{StoreMemory, StoreRedis, StorePostgres, StoreSQLite, StorePebble}
	if !slices.Contains(drivers, c.Store) {
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store))
	}
	if c.Store == StorePostgres && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
	}
	if c.Store == StoreSQLite && c.SQLitePath == "" {
		errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
	}
	if c.Store == StorePebble && c.PebbleDir == "" {
		errs = append(errs, errors.New("PEBBLE_DIR is required for the pebble store"))
	}
	if c.Store == StoreRedis && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required for the redis store"))
	}

	if c.GripURL == "" {
		switch c.Broker {
		case BrokerMemory:
		case BrokerRedis:
			if c.RedisURL == "" {
				errs = append(errs, errors.New("REDIS_URL is required for the redis broker"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown broker %q", c.Broker))
		}
	}

	if c.Retention <= 0 {
		errs = append(errs, fmt.Errorf("retention must be positive, got %d", c.Retention))
	}
	if c.KeepAlive <= 0 {
		errs = append(errs, fmt.Errorf("keep-alive must be positive, got %s", c.KeepAlive))
	}

	// In production, require a store that survives restarts
	if c.Env == "production" && c.Store == StoreMemory {
		errs = append(errs, errors.New("a durable store driver is required in production"))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// GripMode reports whether streams are held by a GRIP proxy.
func (c *Config) GripMode() bool {
	return c.GripURL != ""
}
