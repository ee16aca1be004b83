// go_vidmark — video bookmarking MCP server.
//
// Saves YouTube and Instagram links per user, organizes them into lists and
// resolves embeddable player references. Exposes the library as MCP tools
// and, when API_PORT is set, as a JSON REST API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/anatolykoptev/go_vidmark/internal/api"
	"github.com/anatolykoptev/go_vidmark/internal/engine"
	"github.com/anatolykoptev/go_vidmark/internal/library"
	"github.com/anatolykoptev/go_vidmark/internal/store"
	"github.com/anatolykoptev/go_vidmark/internal/vidserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var version = "dev"

func main() {
	initEngine()
	if err := run(); err != nil {
		slog.Error("go_vidmark failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	c := engine.Cfg

	slog.Info("starting go_vidmark",
		slog.String("port", c.MCPPort),
		slog.String("backend", c.StoreBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		Backend:        c.StoreBackend,
		SQLitePath:     c.SQLitePath,
		DatabaseURL:    c.DatabaseURL,
		RedisURL:       c.RedisURL,
		RedisPrefix:    c.RedisPrefix,
		ConnectTimeout: c.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	defer st.Close()

	svc := library.New(st)

	if c.APIPort != "" {
		rest := api.New(svc, api.Config{
			Port:           c.APIPort,
			RateLimit:      c.APIRateLimit,
			RateBurst:      c.APIRateBurst,
			AllowedOrigins: c.AllowedOrigins,
		})
		go func() {
			if err := rest.Run(ctx); err != nil {
				slog.Error("rest api failed", slog.Any("error", err))
			}
		}()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_vidmark",
		Version: version,
	}, nil)

	n := vidserver.RegisterTools(server, svc)
	slog.Info("tools registered", slog.Int("count", n))

	return mcpserver.Run(server, mcpserver.Config{
		Name:         "go_vidmark",
		Version:      version,
		Port:         c.MCPPort,
		WriteTimeout: 60 * time.Second,
		Metrics:      engine.FormatMetrics,
	})
}

func initEngine() {
	engine.Init(engine.Config{
		MCPPort:        env.Str("MCP_PORT", "8893"),
		APIPort:        env.Str("API_PORT", ""),
		StoreBackend:   env.Str("STORE_BACKEND", store.BackendSQLite),
		SQLitePath:     env.Str("SQLITE_PATH", defaultSQLitePath()),
		DatabaseURL:    env.Str("DATABASE_URL", ""),
		RedisURL:       env.Str("REDIS_URL", ""),
		RedisPrefix:    env.Str("REDIS_PREFIX", "vidmark"),
		DefaultUserID:  env.Str("DEFAULT_USER_ID", "local"),
		ConnectTimeout: env.Duration("STORE_CONNECT_TIMEOUT", 30*time.Second),
		APIRateLimit:   env.Float("API_RATE_LIMIT", 20),
		APIRateBurst:   env.Int("API_RATE_BURST", 40),
		AllowedOrigins: env.List("API_ALLOWED_ORIGINS", "*"),
	})
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".go_vidmark", "vidmark.db")
}
