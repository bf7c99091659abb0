// Package main applies or inspects the embedded database migrations.
//
//	migrate            apply pending migrations
//	migrate -status    list migrations and when each was applied
//	migrate -down      roll back the newest applied migration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schoolplay/progression/config"
	"github.com/schoolplay/progression/internal/infrastructure/persistence"
	"github.com/schoolplay/progression/internal/infrastructure/persistence/postgres"
	"github.com/schoolplay/progression/pkg/logger"
)

func main() {
	var down, status bool
	flag.BoolVar(&down, "down", false, "roll back the newest applied migration")
	flag.BoolVar(&status, "status", false, "list migrations and exit")
	flag.Parse()

	if down && status {
		fmt.Fprintln(os.Stderr, "-down and -status are mutually exclusive")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, down, status); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, down, status bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.UsesMemoryStore() {
		return errors.New("DATABASE_URL is not set")
	}

	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	}).With(logger.String("app", cfg.App.Name+"-migrate"))

	conn, err := postgres.NewConnection(ctx, persistence.PostgresConfig(cfg))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close()

	migrator := postgres.NewMigrator(conn)

	switch {
	case status:
		states, err := migrator.Status(ctx)
		if err != nil {
			return fmt.Errorf("read migration status: %w", err)
		}
		for _, st := range states {
			fields := []logger.Field{logger.Int("version", st.Version), logger.String("name", st.Name)}
			if st.AppliedAt != nil {
				fields = append(fields, logger.Time("applied_at", *st.AppliedAt))
			}
			log.Info("migration", append(fields, logger.Bool("applied", st.AppliedAt != nil))...)
		}
	case down:
		if err := migrator.Rollback(ctx); err != nil {
			return fmt.Errorf("roll back migration: %w", err)
		}
		log.Info("rolled back newest migration")
	default:
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info("migrations applied")
	}
	return nil
}
