package redis

import (
	"context"
	"path"
	"strconv"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolplay/progression/internal/domain/ranking"
	"github.com/schoolplay/progression/pkg/circuitbreaker"
)

func unreachableCache() *Cache {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	return NewCacheWithClient(client, "test:")
}

// memoryRedis answers the handful of commands the caches use without a
// server, by short-circuiting the client's process hook.
type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func memoryCache() (*Cache, *memoryRedis) {
	mem := &memoryRedis{data: make(map[string]string)}
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	client.AddHook(mem)
	return NewCacheWithClient(client, "test:"), mem
}

func (m *memoryRedis) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *memoryRedis) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (m *memoryRedis) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func (m *memoryRedis) ProcessHook(goredis.ProcessHook) goredis.ProcessHook {
	return func(_ context.Context, cmd goredis.Cmder) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		args := cmd.Args()
		switch c := cmd.(type) {
		case *goredis.StringCmd: // GET
			v, ok := m.data[args[1].(string)]
			if !ok {
				c.SetErr(goredis.Nil)
				return goredis.Nil
			}
			c.SetVal(v)
		case *goredis.StatusCmd: // SET
			switch v := args[2].(type) {
			case []byte:
				m.data[args[1].(string)] = string(v)
			default:
				m.data[args[1].(string)] = v.(string)
			}
			c.SetVal("OK")
		case *goredis.IntCmd:
			switch cmd.Name() {
			case "incr":
				n, _ := strconv.ParseInt(m.data[args[1].(string)], 10, 64)
				n++
				m.data[args[1].(string)] = strconv.FormatInt(n, 10)
				c.SetVal(n)
			case "del":
				var n int64
				for _, k := range args[1:] {
					if _, ok := m.data[k.(string)]; ok {
						delete(m.data, k.(string))
						n++
					}
				}
				c.SetVal(n)
			}
		case *goredis.ScanCmd:
			var keys []string
			for k := range m.data {
				if ok, _ := path.Match(args[3].(string), k); ok {
					keys = append(keys, k)
				}
			}
			c.SetVal(keys, 0)
		}
		return nil
	}
}

func TestCache_Key(t *testing.T) {
	c := unreachableCache()
	defer c.Close()

	assert.Equal(t, "test:leaderboard:p2:s10", c.Key("leaderboard", "p2:s10"))
	assert.Equal(t, "test:", c.Key())
}

func TestLeaderboardCache_KeysFollowQueryOptions(t *testing.T) {
	c := unreachableCache()
	defer c.Close()

	lc := NewLeaderboardCache(c, 0)
	assert.Equal(t, DefaultLeaderboardTTL, lc.ttl)

	opts := ranking.DefaultQueryOptions().WithPage(3).WithPageSize(25, ranking.DefaultPageSize, ranking.MaxPageSize)
	assert.Equal(t, "test:leaderboard:g0:p3:s25", lc.pageKey(0, opts))
	assert.Equal(t, "test:leaderboard:g7:p3:s25", lc.pageKey(7, opts))
}

func TestLeaderboardCache_UnreachableReturnsErrors(t *testing.T) {
	c := unreachableCache()
	defer c.Close()

	lc := NewLeaderboardCache(c, time.Minute)
	ctx := context.Background()
	opts := ranking.DefaultQueryOptions()

	page, _, err := lc.GetPage(ctx, opts)
	require.Error(t, err)
	assert.Nil(t, page)

	assert.Error(t, lc.SetPage(ctx, opts, 0, &ranking.Page{Page: 1, PageSize: 10}))
	assert.Error(t, lc.Invalidate(ctx))
}

func TestCache_EmptyKey(t *testing.T) {
	c := unreachableCache()
	defer c.Close()

	ctx := context.Background()
	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Second), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Get(ctx, "", new(int)), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.DeleteByPattern(ctx, ""), ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))
}

func TestLeaderboardCache_BreakerOpensOnUnreachableRedis(t *testing.T) {
	c := unreachableCache()
	defer c.Close()

	cb := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(2), circuitbreaker.WithTimeout(time.Hour))
	lc := NewLeaderboardCache(c, time.Minute).WithBreaker(cb)
	ctx := context.Background()
	opts := ranking.DefaultQueryOptions()

	for range 2 {
		_, _, err := lc.GetPage(ctx, opts)
		require.Error(t, err)
		assert.False(t, circuitbreaker.IsRejected(err))
	}
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	_, _, err := lc.GetPage(ctx, opts)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.ErrorIs(t, lc.Invalidate(ctx), circuitbreaker.ErrCircuitOpen)
}

func TestLeaderboardCache_InvalidateRetiresEarlierPages(t *testing.T) {
	c, mem := memoryCache()
	defer c.Close()

	lc := NewLeaderboardCache(c, time.Minute)
	ctx := context.Background()
	opts := ranking.DefaultQueryOptions()

	// A reader misses, then points change before it stores what it rendered.
	page, readGen, err := lc.GetPage(ctx, opts)
	require.NoError(t, err)
	assert.Nil(t, page)
	assert.Equal(t, ranking.Generation(0), readGen)

	require.NoError(t, lc.Invalidate(ctx))
	stale := &ranking.Page{Rows: []ranking.Row{{StudentID: "ana", TotalPoints: 100}}, Page: 1, PageSize: 10, TotalStudents: 1}
	require.NoError(t, lc.SetPage(ctx, opts, readGen, stale))

	page, gen, err := lc.GetPage(ctx, opts)
	require.NoError(t, err)
	assert.Nil(t, page, "a page rendered before the invalidation must not be served")
	assert.Equal(t, ranking.Generation(1), gen)

	fresh := &ranking.Page{Rows: []ranking.Row{{StudentID: "ana", TotalPoints: 60}}, Page: 1, PageSize: 10, TotalStudents: 1}
	require.NoError(t, lc.SetPage(ctx, opts, gen, fresh))

	page, _, err = lc.GetPage(ctx, opts)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, int64(60), page.Rows[0].TotalPoints)

	require.NoError(t, lc.Invalidate(ctx))
	assert.False(t, mem.has(lc.pageKey(gen, opts)), "the previous generation is swept")

	page, _, err = lc.GetPage(ctx, opts)
	require.NoError(t, err)
	assert.Nil(t, page)
}
