// Package config handles application configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultGraphEndpoint is the Microsoft Graph base URL for the public
	// cloud. Overridable for sovereign clouds and tests.
	DefaultGraphEndpoint = "https://graph.microsoft.com/v1.0"

	defaultConcurrency   = 8
	defaultMaxRetries    = 4
	defaultRetryBaseWait = 500 * time.Millisecond
	defaultRateLimitRPS  = 20
	defaultRateBurst     = 40
)

// Config holds runtime configuration for scans and removals.
type Config struct {
	LogLevel      string        // log level: debug, info, warn, error (default "info")
	GraphEndpoint string        // Microsoft Graph base URL
	Concurrency   int           // bounded worker limit for group expansion (default 8)
	MaxRetries    int           // retry attempts for throttled calls (default 4)
	RetryBaseWait time.Duration // initial backoff interval (default 500ms)

	// Outbound request throttle for the directory client.
	RateLimitRPS   float64 // sustained requests per second (default 20)
	RateLimitBurst int     // burst capacity (default 40)

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
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

// LoadFromEnv loads configuration from ROLESWEEP_* environment variables.
// Every variable is optional; invalid values fall back to defaults with a
// collected warning.
func LoadFromEnv() *Config {
	cfg := &Config{
		LogLevel:      os.Getenv("ROLESWEEP_LOG_LEVEL"),
		GraphEndpoint: os.Getenv("ROLESWEEP_GRAPH_ENDPOINT"),
	}

	cfg.Concurrency = parseIntEnv(cfg, "ROLESWEEP_CONCURRENCY", defaultConcurrency)
	cfg.MaxRetries = parseIntEnv(cfg, "ROLESWEEP_MAX_RETRIES", defaultMaxRetries)

	if v := os.Getenv("ROLESWEEP_RETRY_BASE_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RetryBaseWait = d
		} else {
			cfg.Warnings = append(cfg.Warnings,
				fmt.Sprintf("ROLESWEEP_RETRY_BASE_WAIT=%q is not a valid duration, using default", v))
		}
	}
	if v := os.Getenv("ROLESWEEP_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateLimitRPS = f
		} else {
			cfg.Warnings = append(cfg.Warnings,
				fmt.Sprintf("ROLESWEEP_RATE_LIMIT_RPS=%q is not a valid rate, using default", v))
		}
	}
	cfg.RateLimitBurst = parseIntEnv(cfg, "ROLESWEEP_RATE_LIMIT_BURST", defaultRateBurst)

	// Defaults
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.GraphEndpoint == "" {
		cfg.GraphEndpoint = DefaultGraphEndpoint
	}
	cfg.GraphEndpoint = strings.TrimRight(cfg.GraphEndpoint, "/")
	if cfg.RetryBaseWait == 0 {
		cfg.RetryBaseWait = defaultRetryBaseWait
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = defaultRateLimitRPS
	}

	return cfg
}

func parseIntEnv(cfg *Config, key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		cfg.Warnings = append(cfg.Warnings,
			fmt.Sprintf("%s=%q is not a positive integer, using default %d", key, v, defaultVal))
		return defaultVal
	}
	return n
}
