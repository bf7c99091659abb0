// Package metrics computes the derived per-student figures that badge
// criteria are evaluated against. It holds no state; every call recomputes
// from the ledger and the activity collaborators.
package metrics

import (
	"context"
	"time"
)

// DefaultWindowDays bounds the history scanned for active days and streaks.
const DefaultWindowDays = 90

// StudentMetrics is an ephemeral snapshot of a student's activity.
type StudentMetrics struct {
	StudentID string

	TotalPoints int64

	TotalPlays     int
	CompletedPlays int
	AvgPlayScore   float64
	BestPlayScore  float64

	// Distinct active calendar days inside the window.
	ActiveDays int

	ActivitiesCompleted int
	TotalSessionMinutes int64

	CurrentStreakDays int
	AccountAgeDays    int

	// Threshold of the highest level held. Zero when HasLevel is false.
	HighestLevelPoints int64
	HasLevel           bool

	ComputedAt time.Time
}

// SessionHours returns total session time in hours.
func (m StudentMetrics) SessionHours() float64 {
	return float64(m.TotalSessionMinutes) / 60
}

// PlayStats aggregates a student's play records.
type PlayStats struct {
	Total     int
	Completed int
	AvgScore  float64
	BestScore float64
}

// UsageStats aggregates a student's usage-log records.
type UsageStats struct {
	ActivitiesCompleted int
	TotalMinutes        int64
}

// ActivityStore is the read-only Play/Usage collaborator.
type ActivityStore interface {
	PlayStats(ctx context.Context, studentID string) (PlayStats, error)
	UsageStats(ctx context.Context, studentID string) (UsageStats, error)

	// ActivityTimes returns timestamps of plays and usage logs at or after since.
	ActivityTimes(ctx context.Context, studentID string, since time.Time) ([]time.Time, error)
}

// PointSource exposes the ledger reads the aggregator needs.
type PointSource interface {
	TotalFor(ctx context.Context, studentID string) (int64, error)
	ActiveDates(ctx context.Context, studentID string, since time.Time) ([]time.Time, error)
}

// LevelSource reports the highest level a student currently holds.
type LevelSource interface {
	HighestHeldThreshold(ctx context.Context, studentID string) (points int64, ok bool, err error)
}
