// Package main is the entrypoint for the errorscope API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/razaq-yassine/errorscope/internal/api"
	"github.com/razaq-yassine/errorscope/internal/api/handler"
	mw "github.com/razaq-yassine/errorscope/internal/api/middleware"
	"github.com/razaq-yassine/errorscope/internal/api/response"
	"github.com/razaq-yassine/errorscope/internal/cache"
	"github.com/razaq-yassine/errorscope/internal/config"
	"github.com/razaq-yassine/errorscope/internal/ingest"
	"github.com/razaq-yassine/errorscope/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"correlation_window", cfg.Ingest.CorrelationWindow.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and ingestion service
	pgStore := store.NewPostgresStore(pool)
	svc := ingest.NewService(pgStore, cfg.Ingest)

	// 6. Start the retention sweeper
	go runRetentionSweeper(ctx, pgStore, cfg.Ingest)

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Ingest.SubmitPerMinute)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),
		SubmitHandler: handler.NewSubmitHandler(svc),

		DetailHandler:    handler.NewDetailHandler(pgStore),
		ListHandler:      handler.NewListHandler(pgStore),
		BreakdownHandler: handler.NewBreakdownHandler(pgStore),
		TrendsHandler: handler.NewTrendsHandler(pgStore, redisCache,
			cfg.Dashboard.QueryTimeout, cfg.Dashboard.TrendCacheTTL),
		AcknowledgeHandler: handler.NewAcknowledgeHandler(pgStore, svc),
		ResolveHandler:     handler.NewResolveHandler(pgStore, svc),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runRetentionSweeper periodically deletes events older than the retention
// horizon, along with any groups left without members.
func runRetentionSweeper(ctx context.Context, s store.Store, cfg config.IngestConfig) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-cfg.Retention)
			sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
			deleted, err := s.PurgeEventsBefore(sweepCtx, cutoff)
			cancel()
			if err != nil {
				slog.Error("retention sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Info("retention sweep completed",
					"events_deleted", deleted,
					"cutoff", cutoff.Format(time.RFC3339))
			}
		}
	}
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
