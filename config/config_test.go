package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, 90, cfg.Engine.ActivityWindowDays)
	assert.Equal(t, 200, cfg.Engine.RecalcBatchSize)
	assert.Equal(t, 10, cfg.Engine.LeaderboardPageSize)
	assert.Equal(t, 50, cfg.Engine.LeaderboardMaxPageSize)
	assert.Equal(t, 100, cfg.Engine.MaxLevelJumps)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.RankingInterval)
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.ReconcileCron)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.True(t, cfg.UsesMemoryStore())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ENGINE_RECALC_BATCH_SIZE", "25")
	t.Setenv("APP_TIMEZONE", "America/Bogota")
	t.Setenv("DATABASE_URL", "postgres://localhost/progression")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Engine.RecalcBatchSize)
	assert.Equal(t, "America/Bogota", cfg.App.Location.String())
	assert.False(t, cfg.UsesMemoryStore())
}

func TestFromEnv_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required in production")
	assert.Contains(t, err.Error(), "HTTP_ADMIN_KEY_HASH is required in production")
}

func TestFromEnv_RejectsBadPageSizes(t *testing.T) {
	t.Setenv("ENGINE_LEADERBOARD_PAGE_SIZE", "60")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENGINE_LEADERBOARD_MAX_PAGE_SIZE")
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ENGINE_MAX_LEVEL_JUMPS=7\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ENGINE_MAX_LEVEL_JUMPS") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Engine.MaxLevelJumps)
}

func TestLoad_MissingDotEnvIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}
