package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays environment variables onto cfg. Unparseable values are
// ignored.
func FromEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.Env, "ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	setString(&cfg.Store, "STORE_DRIVER")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.SQLitePath, "SQLITE_PATH")
	setString(&cfg.PebbleDir, "PEBBLE_DIR")

	setString(&cfg.GripURL, "GRIP_URL")
	setString(&cfg.Broker, "BROKER")

	if v := os.Getenv("RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retention = n
		}
	}
	if v := os.Getenv("APPEND_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = n
		}
	}
	setDuration(&cfg.Retry.Base, "APPEND_BACKOFF_BASE")
	setDuration(&cfg.Retry.Cap, "APPEND_BACKOFF_CAP")
	if v := os.Getenv("APPEND_BACKOFF_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retry.Factor = f
		}
	}
	if v := os.Getenv("APPEND_BACKOFF_JITTER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Retry.Jitter = b
		}
	}
	setDuration(&cfg.KeepAlive, "KEEP_ALIVE")
	if v := os.Getenv("MAX_BODY_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxBodySize = n
		}
	}

	setString(&cfg.Region, "FLY_REGION")
	setString(&cfg.Instance, "FLY_ALLOC_ID")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
