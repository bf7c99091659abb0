package student

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/schoolplay/progression/internal/domain/shared"
)

func TestProfile_RequireStudent(t *testing.T) {
	assert.NoError(t, Profile{Role: RoleStudent}.RequireStudent())
	assert.ErrorIs(t, Profile{Role: RoleTeacher}.RequireStudent(), shared.ErrNotAStudent)
	assert.ErrorIs(t, Profile{Role: RoleAdmin}.RequireStudent(), shared.ErrIntegrity)
}

func TestProfile_AccountAgeDays(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

	p := Profile{CreatedAt: time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)}
	assert.Equal(t, 9, p.AccountAgeDays(now))

	assert.Zero(t, Profile{}.AccountAgeDays(now))
	assert.Zero(t, Profile{CreatedAt: now.Add(48 * time.Hour)}.AccountAgeDays(now))
}

func TestRole_IsValid(t *testing.T) {
	assert.True(t, RoleTeacher.IsValid())
	assert.False(t, Role("parent").IsValid())
}
