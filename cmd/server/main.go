// Package main is the entry point of the progression API server.
//
// The server exposes the point ledger, the level and badge catalog, student
// progression and the leaderboard over HTTP. Every point change runs the
// progression flow synchronously before the response is written.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schoolplay/progression/config"
	"github.com/schoolplay/progression/internal/application"
	"github.com/schoolplay/progression/internal/application/eventhandler"
	"github.com/schoolplay/progression/internal/infrastructure/messaging"
	"github.com/schoolplay/progression/internal/infrastructure/persistence"
	"github.com/schoolplay/progression/internal/infrastructure/telemetry"
	httpserver "github.com/schoolplay/progression/internal/interface/http"
	"github.com/schoolplay/progression/pkg/logger"
	"github.com/schoolplay/progression/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting progression server",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
	)
	timeutil.SetLocation(cfg.App.Location)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	backend, err := persistence.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing storage")
		backend.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS AND METRICS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	opts := application.Options{
		Logger:                 log,
		Publisher:              bus,
		ActivityWindowDays:     cfg.Engine.ActivityWindowDays,
		RecalcBatchSize:        cfg.Engine.RecalcBatchSize,
		LeaderboardPageSize:    cfg.Engine.LeaderboardPageSize,
		LeaderboardMaxPageSize: cfg.Engine.LeaderboardMaxPageSize,
		MaxLevelJumps:          cfg.Engine.MaxLevelJumps,
	}

	var metrics *telemetry.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = telemetry.NewMetrics()
		opts.Telemetry = metrics
		metrics.WatchEventBus(bus.Metrics())
		if err := bus.SubscribeAll(metrics.HandleEvent); err != nil {
			return fmt.Errorf("subscribe metrics: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	svc := application.NewService(backend.Stores, opts)

	if backend.Leaderboard != nil {
		onChanged := eventhandler.NewOnLeaderboardChangedHandler(svc.Ranking, cfg.Redis.WriteTimeout, log)
		if err := onChanged.Register(bus); err != nil {
			return fmt.Errorf("register leaderboard handler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := httpserver.NewHealthChecker(cfg.App.Version)
	if backend.DB != nil {
		health.AddDetailedCheck("database", backend.DB.HealthCheck)
	}
	if backend.Cache != nil {
		health.AddCheck("redis", httpserver.PingCheck(backend.Cache))
	}

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AdminKeyHash = cfg.HTTP.AdminKeyHash
	if httpCfg.AdminKeyHash == "" {
		log.Warn("HTTP_ADMIN_KEY_HASH not set, administrative routes are disabled")
	}

	server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		Service: svc,
		Metrics: metrics,
		Health:  health,
		Logger:  log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. RUN AND GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", logger.Err(err))
	}
	log.Info("progression server stopped")
	return nil
}

// setupLogger creates the process logger from the observability settings.
func setupLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.IsDevelopment(),
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}
