package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/schoolplay/progression/internal/domain/ranking"
	"github.com/schoolplay/progression/pkg/circuitbreaker"
)

// DefaultLeaderboardTTL bounds staleness if an invalidation is lost.
const DefaultLeaderboardTTL = 2 * time.Minute

// LeaderboardCache implements ranking.Cache by storing rendered pages as JSON.
// Pages are keyed by a generation counter kept in Redis; Invalidate bumps the
// counter and the old pages expire with their TTL. Calls go through an
// optional circuit breaker; a rejected call surfaces as an error, which the
// ranking index treats as a miss.
type LeaderboardCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewLeaderboardCache creates a LeaderboardCache. ttl <= 0 uses DefaultLeaderboardTTL.
func NewLeaderboardCache(cache *Cache, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = DefaultLeaderboardTTL
	}
	return &LeaderboardCache{cache: cache, ttl: ttl}
}

// WithBreaker guards every Redis call with cb.
func (l *LeaderboardCache) WithBreaker(cb *circuitbreaker.CircuitBreaker) *LeaderboardCache {
	l.breaker = cb
	return l
}

func (l *LeaderboardCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if l.breaker == nil {
		return fn(ctx)
	}
	return l.breaker.Execute(ctx, fn)
}

func (l *LeaderboardCache) generationKey() string {
	return l.cache.Key("leaderboard", "generation")
}

func (l *LeaderboardCache) pageKey(gen ranking.Generation, opts ranking.QueryOptions) string {
	return l.cache.Key("leaderboard", "g"+strconv.FormatInt(int64(gen), 10), opts.CacheKey())
}

// generation reads the current counter. A missing counter is generation 0.
func (l *LeaderboardCache) generation(ctx context.Context) (ranking.Generation, error) {
	n, err := l.cache.client.Get(ctx, l.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ranking.Generation(n), err
}

// GetPage returns the cached page of the current generation, or nil on a miss.
func (l *LeaderboardCache) GetPage(ctx context.Context, opts ranking.QueryOptions) (*ranking.Page, ranking.Generation, error) {
	var (
		page ranking.Page
		gen  ranking.Generation
		hit  bool
	)
	err := l.guard(ctx, func(ctx context.Context) error {
		g, err := l.generation(ctx)
		if err != nil {
			return err
		}
		gen = g

		err = l.cache.Get(ctx, l.pageKey(gen, opts), &page)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		hit = err == nil
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if !hit {
		return nil, gen, nil
	}
	return &page, gen, nil
}

// SetPage stores a page under gen with the configured TTL. A page rendered
// before an invalidation lands in a generation no reader asks for.
func (l *LeaderboardCache) SetPage(ctx context.Context, opts ranking.QueryOptions, gen ranking.Generation, page *ranking.Page) error {
	return l.guard(ctx, func(ctx context.Context) error {
		return l.cache.Set(ctx, l.pageKey(gen, opts), page, l.ttl)
	})
}

// Invalidate starts a new generation and sweeps the pages of the previous one.
func (l *LeaderboardCache) Invalidate(ctx context.Context) error {
	return l.guard(ctx, func(ctx context.Context) error {
		next, err := l.cache.client.Incr(ctx, l.generationKey()).Result()
		if err != nil {
			return err
		}
		prev := ranking.Generation(next - 1)
		return l.cache.DeleteByPattern(ctx, l.cache.Key("leaderboard", "g"+strconv.FormatInt(int64(prev), 10), "*"))
	})
}
