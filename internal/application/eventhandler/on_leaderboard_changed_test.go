package eventhandler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/infrastructure/messaging"
)

type countingCache struct {
	calls    atomic.Int32
	deadline atomic.Bool
}

func (c *countingCache) InvalidateCache(ctx context.Context) {
	_, ok := ctx.Deadline()
	c.deadline.Store(ok)
	c.calls.Add(1)
}

func TestOnLeaderboardChangedHandler_InvalidatesOnMembershipAndRanking(t *testing.T) {
	cache := &countingCache{}
	h := NewOnLeaderboardChangedHandler(cache, time.Second, nil)

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})
	defer bus.Close()
	require.NoError(t, h.Register(bus))

	now := time.Now()
	require.NoError(t, bus.Publish(shared.NewRankingRefreshedEvent("ana", 2, 1, 50, now)))
	require.NoError(t, bus.Publish(shared.NewLevelEarnedEvent("ana", "l1", "Novato", 20, shared.SourceAuto, now)))
	require.NoError(t, bus.Publish(shared.NewBadgeRevokedEvent("ana", "b1", "Racha", shared.SourceManual, "error", now)))
	require.NoError(t, bus.Publish(shared.NewPointsChangedEvent("ana", "tx", 5, 55, "quiz", now)))

	assert.Equal(t, int32(3), cache.calls.Load())
	assert.True(t, cache.deadline.Load())
}

func TestOnLeaderboardChangedHandler_EventTypes(t *testing.T) {
	h := NewOnLeaderboardChangedHandler(&countingCache{}, 0, nil)

	assert.NotContains(t, h.EventTypes(), shared.EventPointsChanged)
	assert.Contains(t, h.EventTypes(), shared.EventRankingRefreshed)
	assert.Equal(t, 5*time.Second, h.timeout)
}
