package ranking

import (
	"context"
	"fmt"

	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
	"github.com/schoolplay/progression/pkg/logger"
)

// PointTotals reads current totals from the ledger.
type PointTotals interface {
	TotalFor(ctx context.Context, studentID string) (int64, error)
}

// IndexConfig holds Ranking Index settings.
type IndexConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultIndexConfig returns default settings.
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{DefaultPageSize: DefaultPageSize, MaxPageSize: MaxPageSize}
}

// Index derives positions and serves the leaderboard.
type Index struct {
	repo   Repository
	cache  Cache
	points PointTotals
	dir    student.Directory
	clock  shared.Clock
	log    *logger.Logger
	config IndexConfig
}

// NewIndex creates a Ranking Index. cache may be nil.
func NewIndex(repo Repository, cache Cache, points PointTotals, dir student.Directory, clock shared.Clock, log *logger.Logger, config IndexConfig) *Index {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = DefaultPageSize
	}
	if config.MaxPageSize < config.DefaultPageSize {
		config.MaxPageSize = max(MaxPageSize, config.DefaultPageSize)
	}
	return &Index{
		repo:   repo,
		cache:  cache,
		points: points,
		dir:    dir,
		clock:  clock,
		log:    log.With(logger.Component("ranking_index")),
		config: config,
	}
}

// PositionFor returns 1 + the number of students with a strictly greater total.
func (x *Index) PositionFor(ctx context.Context, studentID string) (Position, int64, error) {
	if _, err := student.RequireStudent(ctx, x.dir, studentID); err != nil {
		return 0, 0, err
	}
	total, err := x.points.TotalFor(ctx, studentID)
	if err != nil {
		return 0, 0, fmt.Errorf("total points: %w", err)
	}
	above, err := x.repo.CountAbove(ctx, total)
	if err != nil {
		return 0, 0, fmt.Errorf("count above: %w", err)
	}
	return Position(above + 1), total, nil
}

// Refresh recomputes and stores the entry of one student. It returns the new
// entry and the previously stored position, 0 if there was none.
func (x *Index) Refresh(ctx context.Context, studentID string) (Entry, Position, error) {
	pos, total, err := x.PositionFor(ctx, studentID)
	if err != nil {
		return Entry{}, 0, err
	}

	var old Position
	prev, ok, err := x.repo.Get(ctx, studentID)
	if err != nil {
		return Entry{}, 0, fmt.Errorf("get entry: %w", err)
	}
	if ok {
		old = prev.Position
	}

	entry := Entry{
		StudentID:   studentID,
		Position:    pos,
		TotalPoints: total,
		ComputedAt:  x.clock.Now(),
	}
	if err := x.repo.Upsert(ctx, entry); err != nil {
		return Entry{}, 0, fmt.Errorf("upsert entry: %w", err)
	}
	return entry, old, nil
}

// RebuildAll recomputes the entry of every student in one pass.
func (x *Index) RebuildAll(ctx context.Context) (int, error) {
	totals, err := x.repo.Totals(ctx)
	if err != nil {
		return 0, fmt.Errorf("totals: %w", err)
	}

	now := x.clock.Now()
	positions := Positions(totals)
	entries := make([]Entry, 0, len(totals))
	for id, total := range totals {
		entries = append(entries, Entry{
			StudentID:   id,
			Position:    positions[id],
			TotalPoints: total,
			ComputedAt:  now,
		})
	}

	if err := x.repo.Upsert(ctx, entries...); err != nil {
		return 0, fmt.Errorf("upsert entries: %w", err)
	}
	x.InvalidateCache(ctx)

	x.log.Info("rankings rebuilt", logger.Int("students", len(entries)))
	return len(entries), nil
}

// Options normalizes raw paging input against the configured limits.
func (x *Index) Options(page, pageSize int) QueryOptions {
	return DefaultQueryOptions().
		WithPage(page).
		WithPageSize(pageSize, x.config.DefaultPageSize, x.config.MaxPageSize)
}

// Leaderboard returns a page of the leaderboard, served from cache when present.
func (x *Index) Leaderboard(ctx context.Context, opts QueryOptions) (*Page, error) {
	opts = x.Options(opts.Page, opts.PageSize)

	var (
		gen       Generation
		cacheable bool
	)
	if x.cache != nil {
		cached, g, err := x.cache.GetPage(ctx, opts)
		switch {
		case err != nil:
			x.log.Warn("leaderboard cache read failed", logger.Err(err))
		case cached != nil:
			return cached, nil
		default:
			gen, cacheable = g, true
		}
	}

	rows, count, err := x.repo.Leaderboard(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	if rows == nil {
		rows = []Row{}
	}
	page := &Page{
		Rows:          rows,
		Page:          opts.Page,
		PageSize:      opts.PageSize,
		TotalStudents: count,
	}

	if cacheable {
		if err := x.cache.SetPage(ctx, opts, gen, page); err != nil {
			x.log.Warn("leaderboard cache write failed", logger.Err(err))
		}
	}
	return page, nil
}

// InvalidateCache drops cached leaderboard pages. Failures are logged only.
func (x *Index) InvalidateCache(ctx context.Context) {
	if x.cache == nil {
		return
	}
	if err := x.cache.Invalidate(ctx); err != nil {
		x.log.Warn("leaderboard cache invalidation failed", logger.Err(err))
	}
}
