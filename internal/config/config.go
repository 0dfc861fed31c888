// Package config loads engine configuration from built-in defaults, an
// optional TOML file, and HYPE_* environment variable overrides, in that
// order of precedence (env wins).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the full engine configuration.
type Config struct {
	Port        int    `toml:"port"`
	LogLevel    string `toml:"log_level"`
	DatabaseURL string `toml:"database_url"`
	RedisURL    string `toml:"redis_url"`

	// PriceLevels sizes the discretized price axis [0, PriceLevels).
	PriceLevels int `toml:"price_levels"`

	// MaxOrderAmount and MaxAuctionExposure feed the order limiter;
	// zero disables the corresponding check.
	MaxOrderAmount     int64 `toml:"max_order_amount"`
	MaxAuctionExposure int64 `toml:"max_auction_exposure"`

	// CacheTTL bounds staleness of the Redis read-through cache.
	CacheTTL duration `toml:"cache_ttl"`
}

// duration wraps time.Duration for TOML decoding of strings like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:               8080,
		LogLevel:           "info",
		PriceLevels:        30,
		MaxOrderAmount:     1000,
		MaxAuctionExposure: 5000,
		CacheTTL:           duration{30 * time.Second},
	}
}

// Load reads the TOML file at path (skipped when path is empty or the
// file does not exist), merges it on top of the defaults, applies HYPE_*
// environment variable overrides, validates, and returns the final Config.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if cfg.PriceLevels < 2 {
		return nil, fmt.Errorf("config: price_levels must be at least 2, got %d", cfg.PriceLevels)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: invalid port %d", cfg.Port)
	}

	return &cfg, nil
}

// applyEnvOverrides reads well-known HYPE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Port, "HYPE_PORT")
	setStr(&cfg.LogLevel, "HYPE_LOG_LEVEL")
	setStr(&cfg.DatabaseURL, "HYPE_DATABASE_URL")
	setStr(&cfg.DatabaseURL, "DATABASE_URL") // compatibility alias
	setStr(&cfg.RedisURL, "HYPE_REDIS_URL")
	setStr(&cfg.RedisURL, "REDIS_URL") // compatibility alias
	setInt(&cfg.PriceLevels, "HYPE_PRICE_LEVELS")
	setInt64(&cfg.MaxOrderAmount, "HYPE_MAX_ORDER_AMOUNT")
	setInt64(&cfg.MaxAuctionExposure, "HYPE_MAX_AUCTION_EXPOSURE")
	setDuration(&cfg.CacheTTL, "HYPE_CACHE_TTL")
}

// Typed env-var helpers. Each only mutates the target when the
// environment variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
