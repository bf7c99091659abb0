package badge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolplay/progression/internal/domain/metrics"
	"github.com/schoolplay/progression/internal/domain/shared"
)

func TestParseCriterion_RoundTrip(t *testing.T) {
	inputs := []string{
		"points:1000",
		"puntos:500",
		"racha:7",
		"level:250",
		"nivel:0",
		"time_hours:1.5",
		"horas:02",
		"avg_points:87.250",
		"mejor_puntaje:100",
		"veterano:365",
		"active_days:30",
		"dias_activos:10",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			c, err := ParseCriterion(in)
			require.NoError(t, err)
			assert.Equal(t, in, c.String())

			again, err := ParseCriterion(c.String())
			require.NoError(t, err)
			assert.True(t, c.Equal(again))
		})
	}
}

func TestParseCriterion_Rejects(t *testing.T) {
	inputs := []string{
		"",
		"puntos",
		"foo:10",
		"points:",
		":10",
		"points:10:20",
		"points::10",
		"points:-5",
		"points:abc",
		"points:1e3",
		"points:NaN",
		"points:Inf",
		"points:0x10",
		" points:10",
		"points:10 ",
		"points: 10",
		"Points:10",
		"points:.5",
		"points:5.",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := ParseCriterion(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrInvalidCriterion)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestParseCriterion_UnknownTypeListsKinds(t *testing.T) {
	_, err := ParseCriterion("foo:10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown criterion type "foo"`)
	for _, k := range Kinds {
		assert.Contains(t, err.Error(), string(k))
	}
}

func TestParseCriterion_Aliases(t *testing.T) {
	c := MustParseCriterion("racha:7")
	assert.Equal(t, KindStreak, c.Kind)
	assert.Equal(t, 7.0, c.Threshold)

	c = MustParseCriterion("completados:3")
	assert.Equal(t, KindCompleted, c.Kind)
}

func TestNewCriterion(t *testing.T) {
	c, err := NewCriterion(KindTimeHours, 2.5)
	require.NoError(t, err)
	assert.Equal(t, "time_hours:2.5", c.String())

	_, err = NewCriterion(KindPoints, -1)
	assert.Error(t, err)
}

func TestCriterion_Evaluate(t *testing.T) {
	m := metrics.StudentMetrics{
		TotalPoints:         750,
		TotalPlays:          12,
		CompletedPlays:      8,
		AvgPlayScore:        64.5,
		BestPlayScore:       99,
		ActiveDays:          20,
		ActivitiesCompleted: 5,
		TotalSessionMinutes: 90,
		CurrentStreakDays:   7,
		AccountAgeDays:      400,
		HighestLevelPoints:  500,
		HasLevel:            true,
	}

	tests := []struct {
		criterion string
		want      bool
	}{
		{"points:750", true},
		{"puntos:1000", false},
		{"level:500", true},
		{"nivel:501", false},
		{"plays:12", true},
		{"completed:9", false},
		{"racha:7", true},
		{"streak:8", false},
		{"active_days:20", true},
		{"activities:6", false},
		{"time_hours:1.5", true},
		{"horas:2", false},
		{"avg_points:64.5", true},
		{"best_score:100", false},
		{"veteran:365", true},
	}

	for _, tt := range tests {
		t.Run(tt.criterion, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParseCriterion(tt.criterion).Evaluate(m))
		})
	}
}

func TestCriterion_LevelWithoutHeldLevel(t *testing.T) {
	m := metrics.StudentMetrics{TotalPoints: 10_000}
	assert.False(t, MustParseCriterion("level:0").Evaluate(m))
	assert.Zero(t, MustParseCriterion("level:100").Progress(m))
}

func TestCriterion_Progress(t *testing.T) {
	c := MustParseCriterion("points:1000")

	assert.Equal(t, 0, c.Progress(metrics.StudentMetrics{TotalPoints: -50}))
	assert.Equal(t, 49, c.Progress(metrics.StudentMetrics{TotalPoints: 499}))
	assert.Equal(t, 99, c.Progress(metrics.StudentMetrics{TotalPoints: 999}))
	assert.Equal(t, 100, c.Progress(metrics.StudentMetrics{TotalPoints: 1000}))
	assert.Equal(t, 100, MustParseCriterion("points:0").Progress(metrics.StudentMetrics{}))
}

func TestCriterion_JSON(t *testing.T) {
	var b struct {
		Criterion Criterion `json:"criterion"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"criterion":"racha:7"}`), &b))
	assert.Equal(t, KindStreak, b.Criterion.Kind)

	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"criterion":"racha:7"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"criterion":"racha"}`), &b))
}
