package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend        string
	SQLitePath     string
	DatabaseURL    string
	RedisURL       string
	RedisPrefix    string
	ConnectTimeout time.Duration
}

// Open connects to the configured backend, retrying with exponential backoff
// until ConnectTimeout. Configuration errors are not retried.
func Open(ctx context.Context, cfg Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendSQLite
	}
	switch backend {
	case BackendSQLite, BackendPostgres, BackendRedis:
	default:
		return nil, fmt.Errorf("store: unknown backend %q (valid: sqlite, postgres, redis)", cfg.Backend)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	attempt := 0
	operation := func() (Store, error) {
		attempt++
		st, err := openBackend(ctx, backend, cfg)
		if err == nil {
			return st, nil
		}
		if isConfigError(backend, cfg) {
			return nil, backoff.Permanent(err)
		}
		slog.Warn("store: connect failed",
			slog.String("backend", backend),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	st, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(timeout))
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", backend, err)
	}
	return st, nil
}

func openBackend(ctx context.Context, backend string, cfg Config) (Store, error) {
	switch backend {
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.DatabaseURL)
	case BackendRedis:
		return OpenRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
	default:
		return OpenSQLite(ctx, cfg.SQLitePath)
	}
}

// isConfigError reports failures that retrying cannot fix.
func isConfigError(backend string, cfg Config) bool {
	switch backend {
	case BackendPostgres:
		return cfg.DatabaseURL == ""
	case BackendRedis:
		return cfg.RedisURL == ""
	default:
		return cfg.SQLitePath == ""
	}
}
