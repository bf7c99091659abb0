package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolplay/progression/config"
	"github.com/schoolplay/progression/pkg/logger"
)

func TestOpen_MemoryStoreWithoutDatabase(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Environment = config.EnvDevelopment
	cfg.Redis.Disabled = true

	b, err := Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer b.Close()

	require.NotNil(t, b.Memory)
	assert.Nil(t, b.DB)
	assert.Nil(t, b.Cache)
	assert.Nil(t, b.Stores.LeaderboardCache)

	assert.NotNil(t, b.Stores.Directory)
	assert.NotNil(t, b.Stores.Ledger)
	assert.NotNil(t, b.Stores.Activity)
	assert.NotNil(t, b.Stores.Levels)
	assert.NotNil(t, b.Stores.Badges)
	assert.NotNil(t, b.Stores.Ranking)
	assert.NotNil(t, b.Stores.Locker)
}

func TestOpen_UnreachableRedisDisablesCache(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Environment = config.EnvDevelopment
	cfg.App.Name = "progression"
	cfg.Redis.Addr = "127.0.0.1:1"

	b, err := Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer b.Close()

	assert.Nil(t, b.Cache)
	assert.Nil(t, b.Leaderboard)
	assert.Nil(t, b.Stores.LeaderboardCache)
}

func TestPostgresConfig_MapsDatabaseSettings(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.URL = "postgres://app@localhost:5432/progression"
	cfg.Database.MaxOpenConns = 10
	cfg.Database.MaxIdleConns = 3
	cfg.Database.ConnMaxLifetime = 5 * time.Minute
	cfg.Database.QueryTimeout = 2 * time.Second

	dbCfg := PostgresConfig(cfg)

	assert.Equal(t, cfg.Database.URL, dbCfg.URL)
	assert.Equal(t, int32(10), dbCfg.MaxConns)
	assert.Equal(t, int32(3), dbCfg.MinConns)
	assert.Equal(t, 5*time.Minute, dbCfg.MaxConnLifetime)
	assert.Equal(t, 2*time.Second, dbCfg.QueryTimeout)
}
