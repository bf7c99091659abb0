package level

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolplay/progression/internal/domain/shared"
)

var ladder = []Level{
	{ID: "gold", Name: "Gold", PointsRequired: 500},
	{ID: "bronze", Name: "Bronze", PointsRequired: 20},
	{ID: "silver", Name: "Silver", PointsRequired: 100},
}

func TestNextEligible(t *testing.T) {
	bronze := ladder[1]
	silver := ladder[2]
	gold := ladder[0]

	tests := []struct {
		name   string
		held   *Level
		total  int64
		wantID string
	}{
		{"nothing held, below first", nil, 19, ""},
		{"nothing held, reaches first", nil, 25, "bronze"},
		{"only the next level even on a big jump", nil, 10_000, "bronze"},
		{"held bronze, reaches silver", &bronze, 100, "silver"},
		{"held silver, below gold", &silver, 499, ""},
		{"held top level", &gold, 9999, ""},
		{"penalized below held keeps nothing new", &silver, 40, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextEligible(ladder, tt.held, tt.total)
			if tt.wantID == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestNextEligible_ZeroThreshold(t *testing.T) {
	got, ok := NextEligible([]Level{{ID: "novice", PointsRequired: 0}}, nil, 0)
	require.True(t, ok)
	assert.Equal(t, "novice", got.ID)
}

func TestProgressFor(t *testing.T) {
	silver := ladder[2]

	p := ProgressFor(ladder, &silver, 320)
	require.NotNil(t, p.Next)
	assert.Equal(t, "gold", p.Next.ID)
	assert.Equal(t, int64(180), p.PointsToNext)

	p = ProgressFor(ladder, nil, 5)
	assert.Nil(t, p.Current)
	require.NotNil(t, p.Next)
	assert.Equal(t, "bronze", p.Next.ID)
	assert.Equal(t, int64(15), p.PointsToNext)

	gold := ladder[0]
	p = ProgressFor(ladder, &gold, 900)
	assert.Nil(t, p.Next)
	assert.Zero(t, p.PointsToNext)

	// unsorted input stays untouched
	assert.Equal(t, "gold", ladder[0].ID)
}

func TestLevel_Validate(t *testing.T) {
	assert.NoError(t, Level{Name: "Bronze", PointsRequired: 0}.Validate())
	assert.ErrorIs(t, Level{Name: "  ", PointsRequired: 5}.Validate(), shared.ErrMissingField)
	assert.ErrorIs(t, Level{Name: "Bronze", PointsRequired: -1}.Validate(), shared.ErrInvalidThreshold)
}
