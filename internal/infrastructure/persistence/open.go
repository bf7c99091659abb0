// Package persistence selects and opens the storage backends of a process:
// PostgreSQL when a database URL is configured, the in-memory store
// otherwise, and the optional Redis leaderboard cache on top of either.
package persistence

import (
	"context"
	"fmt"

	"github.com/schoolplay/progression/config"
	"github.com/schoolplay/progression/internal/application"
	"github.com/schoolplay/progression/internal/infrastructure/persistence/memory"
	"github.com/schoolplay/progression/internal/infrastructure/persistence/postgres"
	"github.com/schoolplay/progression/internal/infrastructure/persistence/redis"
	"github.com/schoolplay/progression/pkg/circuitbreaker"
	"github.com/schoolplay/progression/pkg/logger"
)

// Backend holds the opened storage. DB and Cache are nil when not in use.
type Backend struct {
	Stores application.Stores

	DB     *postgres.Connection
	Cache  *redis.Cache
	Memory *memory.Store

	// Leaderboard is the cache behind Stores.LeaderboardCache, or nil.
	Leaderboard *redis.LeaderboardCache
}

// Open connects to the configured backends. A Redis failure only disables
// the cache; a database failure is fatal.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Backend, error) {
	b := &Backend{}

	if cfg.UsesMemoryStore() {
		log.Warn("DATABASE_URL not set, using the in-memory store")
		b.Memory = memory.NewStore()
		b.Stores = application.Stores{
			Directory: b.Memory.Directory(),
			Ledger:    b.Memory.Ledger(),
			Activity:  b.Memory.Activity(),
			Levels:    b.Memory.Levels(),
			Badges:    b.Memory.Badges(),
			Ranking:   b.Memory.Ranking(),
			Locker:    b.Memory.Locker(),
		}
	} else {
		if err := b.openPostgres(ctx, cfg, log); err != nil {
			return nil, err
		}
	}

	if !cfg.Redis.Disabled {
		b.openRedis(ctx, cfg, log)
	}
	return b, nil
}

// PostgresConfig maps the database settings onto the pool configuration.
func PostgresConfig(cfg *config.Config) postgres.Config {
	dbCfg := postgres.DefaultConfig(cfg.Database.URL)
	dbCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	dbCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	dbCfg.QueryTimeout = cfg.Database.QueryTimeout
	return dbCfg
}

func (b *Backend) openPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Info("connecting to database")
	conn, err := postgres.NewConnection(ctx, PostgresConfig(cfg))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		log.Info("running database migrations")
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	b.DB = conn
	b.Stores = application.Stores{
		Directory: postgres.NewDirectoryRepository(conn),
		Ledger:    postgres.NewLedgerRepository(conn),
		Activity:  postgres.NewActivityRepository(conn),
		Levels:    postgres.NewLevelRepository(conn),
		Badges:    postgres.NewBadgeRepository(conn),
		Ranking:   postgres.NewRankingRepository(conn),
		Locker:    postgres.NewStudentLocker(conn, log),
	}
	log.Info("database connection established")
	return nil
}

func (b *Backend) openRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) {
	redisCfg := redis.DefaultConfig()
	redisCfg.Addr = cfg.Redis.Addr
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout
	redisCfg.Prefix = cfg.App.Name + ":"

	cache, err := redis.NewCache(ctx, redisCfg)
	if err != nil {
		log.Warn("redis unavailable, leaderboard cache disabled", logger.Err(err))
		return
	}

	breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})

	b.Cache = cache
	b.Leaderboard = redis.NewLeaderboardCache(cache, cfg.Redis.CacheTTL).WithBreaker(breaker)
	b.Stores.LeaderboardCache = b.Leaderboard
	log.Info("redis connection established", logger.String("addr", redisCfg.Addr))
}

// Close releases every open connection.
func (b *Backend) Close() {
	if b.Cache != nil {
		_ = b.Cache.Close()
	}
	if b.DB != nil {
		b.DB.Close()
	}
}
