// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all viewer configuration.
type Config struct {
	// Cache
	CacheDir  string
	BlobDir   string
	ChunkSize int

	// Remote listing
	PageSize int
	PageCap  int

	// Remote fetch retry
	RetryMaxAttempts int
	RetryInitialWait time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics (empty = disabled)
	MetricsAddr string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cacheDir := envOr("DRIVEVIEW_CACHE_DIR", "")
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache dir: %w", err)
		}
		cacheDir = filepath.Join(base, "driveview")
	}

	cfg := &Config{
		CacheDir:         cacheDir,
		BlobDir:          envOr("DRIVEVIEW_BLOB_DIR", filepath.Join(cacheDir, "blobs")),
		ChunkSize:        envInt("DRIVEVIEW_CHUNK_SIZE", 10000),
		PageSize:         envInt("DRIVEVIEW_PAGE_SIZE", 1000),
		PageCap:          envInt("DRIVEVIEW_PAGE_CAP", 10000),
		RetryMaxAttempts: envInt("DRIVEVIEW_RETRY_ATTEMPTS", 3),
		RetryInitialWait: envDuration("DRIVEVIEW_RETRY_WAIT", 100*time.Millisecond),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "console"),
		MetricsAddr:      envOr("METRICS_ADDR", ""),
	}

	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("DRIVEVIEW_CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("DRIVEVIEW_PAGE_SIZE must be positive, got %d", cfg.PageSize)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
