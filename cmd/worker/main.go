// Package main is the entry point of the progression worker.
//
// The worker runs the self-healing jobs: a periodic rebuild of every
// ranking entry and a nightly reconcile that re-runs level, badge and
// ranking evaluation for every student. Both repair state left behind by a
// progression step that failed after its points were recorded.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schoolplay/progression/config"
	"github.com/schoolplay/progression/internal/application"
	"github.com/schoolplay/progression/internal/infrastructure/messaging"
	"github.com/schoolplay/progression/internal/infrastructure/persistence"
	"github.com/schoolplay/progression/internal/infrastructure/scheduler"
	"github.com/schoolplay/progression/internal/infrastructure/scheduler/jobs"
	"github.com/schoolplay/progression/internal/infrastructure/telemetry"
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

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.IsDevelopment(),
	}).With(logger.String("app", cfg.App.Name+"-worker"))

	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, nothing to do")
		return nil
	}
	if cfg.UsesMemoryStore() {
		return errors.New("the worker needs DATABASE_URL; the in-memory store is not shared between processes")
	}
	timeutil.SetLocation(cfg.App.Location)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE AND APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	backend, err := persistence.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() { _ = bus.Close() }()

	metrics := telemetry.NewMetrics()
	metrics.WatchEventBus(bus.Metrics())
	if err := bus.SubscribeAll(metrics.HandleEvent); err != nil {
		return fmt.Errorf("subscribe metrics: %w", err)
	}

	svc := application.NewService(backend.Stores, application.Options{
		Logger:                 log,
		Publisher:              bus,
		Telemetry:              metrics,
		ActivityWindowDays:     cfg.Engine.ActivityWindowDays,
		RecalcBatchSize:        cfg.Engine.RecalcBatchSize,
		LeaderboardPageSize:    cfg.Engine.LeaderboardPageSize,
		LeaderboardMaxPageSize: cfg.Engine.LeaderboardMaxPageSize,
		MaxLevelJumps:          cfg.Engine.MaxLevelJumps,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = cfg.App.Location
	schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	schedCfg.Recorder = metrics
	sched := scheduler.NewScheduler(schedCfg)

	rebuild := jobs.NewRebuildRankingsJob(svc.Ranking, log)
	if err := sched.Register(rebuild, scheduler.Every(cfg.Scheduler.RankingInterval)); err != nil {
		return fmt.Errorf("register %s: %w", rebuild.Name(), err)
	}

	if cfg.Scheduler.ReconcileCron != "" {
		schedule, err := scheduler.ParseCron(cfg.Scheduler.ReconcileCron)
		if err != nil {
			return fmt.Errorf("SCHEDULER_RECONCILE_CRON: %w", err)
		}
		reconcile := jobs.NewReconcileStudentsJob(backend.Stores.Directory, svc.Resync, log, jobs.ReconcileConfig{
			Concurrency: cfg.Scheduler.ReconcileConcurrency,
		})
		if err := sched.Register(reconcile, schedule); err != nil {
			return fmt.Errorf("register %s: %w", reconcile.Name(), err)
		}
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	// Rebuild once before the first tick.
	if _, err := sched.RunNow(ctx, rebuild.Name()); err != nil {
		log.Warn("initial ranking rebuild failed", logger.Err(err))
	}

	var opsSrv *http.Server
	if cfg.Observability.WorkerOpsAddr != "" {
		mux := http.NewServeMux()
		sched.RegisterRoutes(mux)
		if cfg.Observability.MetricsEnabled {
			mux.Handle("GET /metrics", metrics.Handler())
		}
		opsSrv = &http.Server{
			Addr:              cfg.Observability.WorkerOpsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("ops server failed", logger.Err(err))
			}
		}()
		log.Info("ops listener started", logger.String("addr", opsSrv.Addr))
	}

	log.Info("progression worker is running")
	<-ctx.Done()
	log.Info("received shutdown signal")

	if opsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
		defer cancel()
		_ = opsSrv.Shutdown(shutdownCtx)
	}

	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop failed", logger.Err(err))
	}
	log.Info("progression worker stopped")
	return nil
}
