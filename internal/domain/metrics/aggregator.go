package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
	"github.com/schoolplay/progression/pkg/timeutil"
)

// Aggregator assembles StudentMetrics from its collaborators.
type Aggregator struct {
	points     PointSource
	activity   ActivityStore
	levels     LevelSource
	dir        student.Directory
	clock      shared.Clock
	windowDays int
}

// NewAggregator creates an Aggregator. windowDays <= 0 uses DefaultWindowDays.
func NewAggregator(points PointSource, activity ActivityStore, levels LevelSource, dir student.Directory, clock shared.Clock, windowDays int) *Aggregator {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Aggregator{
		points:     points,
		activity:   activity,
		levels:     levels,
		dir:        dir,
		clock:      clock,
		windowDays: windowDays,
	}
}

// MetricsFor computes metrics for a student at the clock's current time.
func (a *Aggregator) MetricsFor(ctx context.Context, studentID string) (StudentMetrics, error) {
	return a.MetricsAt(ctx, studentID, a.clock.Now())
}

// MetricsAt computes metrics as of now.
func (a *Aggregator) MetricsAt(ctx context.Context, studentID string, now time.Time) (StudentMetrics, error) {
	profile, err := a.dir.Profile(ctx, studentID)
	if err != nil {
		return StudentMetrics{}, err
	}

	m := StudentMetrics{
		StudentID:      studentID,
		AccountAgeDays: profile.AccountAgeDays(now),
		ComputedAt:     now,
	}

	if m.TotalPoints, err = a.points.TotalFor(ctx, studentID); err != nil {
		return StudentMetrics{}, fmt.Errorf("total points: %w", err)
	}

	plays, err := a.activity.PlayStats(ctx, studentID)
	if err != nil {
		return StudentMetrics{}, fmt.Errorf("play stats: %w", err)
	}
	m.TotalPlays = plays.Total
	m.CompletedPlays = plays.Completed
	m.AvgPlayScore = plays.AvgScore
	m.BestPlayScore = plays.BestScore

	usage, err := a.activity.UsageStats(ctx, studentID)
	if err != nil {
		return StudentMetrics{}, fmt.Errorf("usage stats: %w", err)
	}
	m.ActivitiesCompleted = usage.ActivitiesCompleted
	m.TotalSessionMinutes = usage.TotalMinutes

	since := timeutil.StartOfDay(now).AddDate(0, 0, -(a.windowDays - 1))

	activityTimes, err := a.activity.ActivityTimes(ctx, studentID, since)
	if err != nil {
		return StudentMetrics{}, fmt.Errorf("activity dates: %w", err)
	}
	ledgerTimes, err := a.points.ActiveDates(ctx, studentID, since)
	if err != nil {
		return StudentMetrics{}, fmt.Errorf("ledger dates: %w", err)
	}

	days := timeutil.DistinctDaysDesc(append(activityTimes, ledgerTimes...))
	days = withinWindow(days, since, now)
	m.ActiveDays = len(days)
	m.CurrentStreakDays = CurrentStreak(days, now)

	if a.levels != nil {
		pts, ok, err := a.levels.HighestHeldThreshold(ctx, studentID)
		if err != nil {
			return StudentMetrics{}, fmt.Errorf("highest level: %w", err)
		}
		m.HighestLevelPoints = pts
		m.HasLevel = ok
	}

	return m, nil
}

func withinWindow(days []time.Time, since, now time.Time) []time.Time {
	today := timeutil.StartOfDay(now)
	out := days[:0]
	for _, d := range days {
		if d.Before(since) || d.After(today) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// CurrentStreak counts consecutive active days ending today or earlier.
// Starting from today, it walks the distinct days newest first and stops at
// the first gap larger than one day. Days after today are ignored.
func CurrentStreak(days []time.Time, now time.Time) int {
	days = timeutil.DistinctDaysDesc(days)
	today := timeutil.StartOfDay(now)

	streak := 0
	prev := today
	for _, d := range days {
		if d.After(today) {
			continue
		}
		if timeutil.DaysBetween(d, prev) > 1 {
			break
		}
		streak++
		prev = d
	}
	return streak
}
