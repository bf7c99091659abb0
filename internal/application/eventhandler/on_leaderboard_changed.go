// Package eventhandler contains the subscribers of progression events.
package eventhandler

import (
	"context"
	"time"

	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LEADERBOARD CHANGED HANDLER
// Drops cached leaderboard pages whenever a total, a level or a badge count
// shown on the leaderboard may have changed.
// ═══════════════════════════════════════════════════════════════════════════

// CacheInvalidator drops cached leaderboard pages.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// OnLeaderboardChangedHandler invalidates the leaderboard cache.
type OnLeaderboardChangedHandler struct {
	cache   CacheInvalidator
	timeout time.Duration
	log     *logger.Logger
}

// NewOnLeaderboardChangedHandler creates the handler.
func NewOnLeaderboardChangedHandler(cache CacheInvalidator, timeout time.Duration, log *logger.Logger) *OnLeaderboardChangedHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OnLeaderboardChangedHandler{
		cache:   cache,
		timeout: timeout,
		log:     log.With(logger.Component("leaderboard_cache_handler")),
	}
}

// Handle processes one event.
func (h *OnLeaderboardChangedHandler) Handle(event shared.Event) error {
	if e, ok := event.(shared.RankingRefreshedEvent); ok && e.Moved() {
		h.log.Debug("ranking moved",
			logger.StudentID(e.StudentID),
			logger.Int("old_position", e.OldPosition),
			logger.Int("new_position", e.NewPosition),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	h.cache.InvalidateCache(ctx)
	return nil
}

// EventTypes returns the events this handler subscribes to.
func (h *OnLeaderboardChangedHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventRankingRefreshed,
		shared.EventLevelEarned,
		shared.EventLevelRevoked,
		shared.EventBadgeGranted,
		shared.EventBadgeRevoked,
	}
}

// Register subscribes the handler to every event it handles.
func (h *OnLeaderboardChangedHandler) Register(sub shared.EventSubscriber) error {
	for _, t := range h.EventTypes() {
		if err := sub.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}
