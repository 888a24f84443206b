// Package config defines service configuration and how it is loaded.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Remote backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// HistoryLimit caps the event history of each session.
	HistoryLimit int `koanf:"history_limit"`
	// MaxEvaluationPasses bounds achievement re-evaluation per mutation.
	MaxEvaluationPasses int `koanf:"max_evaluation_passes"`
	// DedupeSize bounds the remembered event ids per session.
	DedupeSize int `koanf:"dedupe_size"`

	// SyncTimeoutMS bounds one remote exchange.
	SyncTimeoutMS int `koanf:"sync_timeout_ms"`
	// SyncQueueSize bounds the background sync queue.
	SyncQueueSize int `koanf:"sync_queue_size"`
	// SyncWorkerCount sets the number of background sync workers.
	SyncWorkerCount int `koanf:"sync_worker_count"`

	// LeaderboardLimit is how many standings each sync pulls.
	LeaderboardLimit int `koanf:"leaderboard_limit"`
	// MaxLeaderboardLimit caps GET /players/{id}/leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// RemoteBackend selects the game data store: memory, redis or postgres.
	RemoteBackend string `koanf:"remote_backend"`

	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`

	PostgresDSN string `koanf:"postgres_dsn"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		HistoryLimit:        20,
		MaxEvaluationPasses: 8,
		DedupeSize:          1024,
		SyncTimeoutMS:       5000,
		SyncQueueSize:       1024,
		SyncWorkerCount:     runtime.NumCPU(),
		LeaderboardLimit:    10,
		MaxLeaderboardLimit: 100,
		RemoteBackend:       BackendMemory,
		RedisAddr:           "localhost:6379",
		RedisKeyPrefix:      "helpquest:",
	}
}

// SyncTimeout returns SyncTimeoutMS as a duration.
func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutMS) * time.Millisecond
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.HistoryLimit <= 0:
		return fmt.Errorf("%w: history_limit must be positive", ErrInvalidConfig)
	case c.MaxEvaluationPasses <= 0:
		return fmt.Errorf("%w: max_evaluation_passes must be positive", ErrInvalidConfig)
	case c.SyncTimeoutMS <= 0:
		return fmt.Errorf("%w: sync_timeout_ms must be positive", ErrInvalidConfig)
	case c.SyncQueueSize <= 0:
		return fmt.Errorf("%w: sync_queue_size must be positive", ErrInvalidConfig)
	case c.LeaderboardLimit < 0:
		return fmt.Errorf("%w: leaderboard_limit must not be negative", ErrInvalidConfig)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	switch c.RemoteBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis backend", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown remote_backend %q", ErrInvalidConfig, c.RemoteBackend)
	}
	return nil
}
