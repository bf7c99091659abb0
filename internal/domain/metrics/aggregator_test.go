package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
)

var now = time.Date(2024, 5, 20, 14, 30, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return now.AddDate(0, 0, -n)
}

func TestCurrentStreak(t *testing.T) {
	tests := []struct {
		name string
		days []time.Time
		want int
	}{
		{"no activity", nil, 0},
		{"today only", []time.Time{now}, 1},
		{"yesterday only", []time.Time{daysAgo(1)}, 1},
		{"two days ago breaks", []time.Time{daysAgo(2), daysAgo(3)}, 0},
		{
			"seven consecutive days",
			[]time.Time{now, daysAgo(1), daysAgo(2), daysAgo(3), daysAgo(4), daysAgo(5), daysAgo(6)},
			7,
		},
		{
			"gap in the middle",
			[]time.Time{now, daysAgo(1), daysAgo(2), daysAgo(10), daysAgo(11), daysAgo(12), daysAgo(13)},
			3,
		},
		{
			"duplicates on one day count once",
			[]time.Time{now, now.Add(-time.Hour), daysAgo(1), daysAgo(1).Add(-3 * time.Hour)},
			2,
		},
		{"future days are skipped", []time.Time{now.AddDate(0, 0, 2), now, daysAgo(1)}, 2},
		{"unsorted input", []time.Time{daysAgo(2), now, daysAgo(1)}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentStreak(tt.days, now))
		})
	}
}

type fakePoints struct {
	total int64
	times []time.Time
}

func (f fakePoints) TotalFor(context.Context, string) (int64, error) { return f.total, nil }
func (f fakePoints) ActiveDates(_ context.Context, _ string, since time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, t := range f.times {
		if !t.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeActivity struct {
	plays PlayStats
	usage UsageStats
	times []time.Time
}

func (f fakeActivity) PlayStats(context.Context, string) (PlayStats, error)   { return f.plays, nil }
func (f fakeActivity) UsageStats(context.Context, string) (UsageStats, error) { return f.usage, nil }
func (f fakeActivity) ActivityTimes(_ context.Context, _ string, since time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, t := range f.times {
		if !t.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeLevels struct {
	points int64
	ok     bool
}

func (f fakeLevels) HighestHeldThreshold(context.Context, string) (int64, bool, error) {
	return f.points, f.ok, nil
}

type fakeDirectory struct {
	profiles map[string]student.Profile
}

func (f fakeDirectory) IsStudent(_ context.Context, id string) (bool, error) {
	p, ok := f.profiles[id]
	return ok && p.Role == student.RoleStudent, nil
}

func (f fakeDirectory) RoleOf(ctx context.Context, id string) (student.Role, error) {
	p, err := f.Profile(ctx, id)
	return p.Role, err
}

func (f fakeDirectory) Profile(_ context.Context, id string) (student.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return student.Profile{}, shared.ErrStudentNotFound
	}
	return p, nil
}

func (f fakeDirectory) ListStudentIDs(context.Context) ([]string, error) {
	var ids []string
	for id, p := range f.profiles {
		if p.Role == student.RoleStudent {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func TestAggregator_MetricsFor(t *testing.T) {
	dir := fakeDirectory{profiles: map[string]student.Profile{
		"s1": {ID: "s1", Role: student.RoleStudent, CreatedAt: daysAgo(400)},
	}}
	points := fakePoints{total: 320, times: []time.Time{now, daysAgo(200)}}
	activity := fakeActivity{
		plays: PlayStats{Total: 12, Completed: 9, AvgScore: 71.5, BestScore: 98},
		usage: UsageStats{ActivitiesCompleted: 4, TotalMinutes: 150},
		times: []time.Time{daysAgo(1), daysAgo(2), daysAgo(5), daysAgo(89), daysAgo(90)},
	}

	agg := NewAggregator(points, activity, fakeLevels{points: 200, ok: true}, dir, shared.NewFixedClock(now), 90)

	m, err := agg.MetricsFor(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, int64(320), m.TotalPoints)
	assert.Equal(t, 12, m.TotalPlays)
	assert.Equal(t, 9, m.CompletedPlays)
	assert.InDelta(t, 71.5, m.AvgPlayScore, 1e-9)
	assert.InDelta(t, 98.0, m.BestPlayScore, 1e-9)
	assert.Equal(t, 4, m.ActivitiesCompleted)
	assert.Equal(t, int64(150), m.TotalSessionMinutes)
	assert.InDelta(t, 2.5, m.SessionHours(), 1e-9)
	// today, 1, 2, 5 and 89 days ago; 90 and 200 days ago fall outside the window
	assert.Equal(t, 5, m.ActiveDays)
	assert.Equal(t, 3, m.CurrentStreakDays)
	assert.Equal(t, 400, m.AccountAgeDays)
	assert.Equal(t, int64(200), m.HighestLevelPoints)
	assert.True(t, m.HasLevel)
	assert.Equal(t, now, m.ComputedAt)
}

func TestAggregator_UnknownStudent(t *testing.T) {
	agg := NewAggregator(fakePoints{}, fakeActivity{}, nil, fakeDirectory{}, shared.NewFixedClock(now), 0)

	_, err := agg.MetricsFor(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}
