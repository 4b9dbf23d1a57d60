// Package main is the entry point for the multichat server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multichat/config"
	"multichat/internal/cache"
	"multichat/internal/directory"
	"multichat/internal/logging"
	"multichat/internal/observability"
	"multichat/internal/orchestrator"
	"multichat/internal/server"
	"multichat/internal/storage"
	"multichat/internal/store"
	"multichat/internal/version"
	"multichat/internal/wire"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting multichat",
		"version", version.Version,
		"commit", version.Commit,
		"storage", cfg.Storage.Type,
	)

	ctx := context.Background()

	// Persistence
	stg, err := storage.New(ctx, storage.Config{
		Type:   cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{Path: cfg.Storage.SQLitePath},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgresURL,
			MaxConns: cfg.Storage.PostgresMaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoURL,
			Database: cfg.Storage.MongoDatabase,
		},
	})
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = stg.Close() //nolint:errcheck
	}()

	st, err := store.New(ctx, stg)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}

	if cfg.SeedFile != "" {
		if err := store.Seed(ctx, st, cfg.SeedFile, logger); err != nil {
			logger.Error("failed to seed store", "file", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
	}

	// Resolution cache
	var resolutionCache cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		resolutionCache, err = cache.NewRedisCache(cache.RedisConfig{
			URL: cfg.Cache.RedisURL,
			TTL: cfg.Cache.TTL,
		})
		if err != nil {
			logger.Error("failed to initialize redis cache", "error", err)
			os.Exit(1)
		}
	case "none":
		logger.Info("resolution cache disabled")
	default:
		resolutionCache = cache.NewMemoryCache(cfg.Cache.TTL)
	}
	if resolutionCache != nil {
		defer func() {
			_ = resolutionCache.Close() //nolint:errcheck
		}()
	}

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
		logger.Info("prometheus metrics enabled")
	}

	dir := directory.New(st, resolutionCache, logger)
	adapter := wire.New()
	orch := orchestrator.New(dir, adapter, st, metrics, logger, orchestrator.Config{
		Concurrency: cfg.Dispatch.Concurrency,
		CallTimeout: cfg.Dispatch.CallTimeout,
	})

	if cfg.Server.MasterKey == "" {
		logger.Warn("MASTER_KEY not set, API is unauthenticated")
	} else {
		logger.Info("authentication enabled", "mode", "master_key")
	}

	handler := server.NewHandler(st, orch, dir, logger)
	srv := server.New(handler, metrics, &server.Config{
		MasterKey:      cfg.Server.MasterKey,
		MetricsEnabled: cfg.MetricsEnabled,
		StreamDelay:    cfg.Stream.Delay,
	})

	// Handle graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	logger.Info("starting server", "address", addr)

	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("server stopped gracefully")
		} else {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}
