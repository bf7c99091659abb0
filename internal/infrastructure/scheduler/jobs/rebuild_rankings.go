// Package jobs contains the scheduled jobs of the progression worker.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schoolplay/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD RANKINGS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RankingRebuilder recomputes every stored ranking entry.
type RankingRebuilder interface {
	RebuildAll(ctx context.Context) (int, error)
}

// RebuildRankingsJob recomputes the ranking entry of every student and drops
// the cached leaderboard pages. It heals entries left stale by a failed
// ranking step.
type RebuildRankingsJob struct {
	rebuilder RankingRebuilder
	log       *logger.Logger

	lastStats atomic.Pointer[RebuildStats]
}

// RebuildStats describes one rebuild run.
type RebuildStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Students  int
}

// NewRebuildRankingsJob creates the job.
func NewRebuildRankingsJob(rebuilder RankingRebuilder, log *logger.Logger) *RebuildRankingsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RebuildRankingsJob{
		rebuilder: rebuilder,
		log:       log.With(logger.Component("job"), logger.Operation("rebuild_rankings")),
	}
}

// Name returns the job name.
func (j *RebuildRankingsJob) Name() string {
	return "rebuild_rankings"
}

// Description returns the job description.
func (j *RebuildRankingsJob) Description() string {
	return "Recomputes every student's ranking entry and drops cached leaderboard pages"
}

// Run executes the job.
func (j *RebuildRankingsJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	count, err := j.rebuilder.RebuildAll(ctx)
	if err != nil {
		return fmt.Errorf("rebuild rankings: %w", err)
	}

	stats := &RebuildStats{
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Students:  count,
	}
	j.lastStats.Store(stats)

	j.log.Info("rankings rebuild finished",
		logger.Int("students", count),
		logger.Duration("duration", stats.Duration),
	)
	return nil
}

// LastStats returns the stats of the last successful run, nil before the first.
func (j *RebuildRankingsJob) LastStats() *RebuildStats {
	return j.lastStats.Load()
}
