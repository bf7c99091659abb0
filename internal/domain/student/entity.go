package student

import (
	"time"

	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLE
// ══════════════════════════════════════════════════════════════════════════════

// Role is the platform role of an account.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// CanEarnPoints reports whether accounts with this role take part in progression.
func (r Role) CanEarnPoints() bool {
	return r == RoleStudent
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile is the read-only view of an account used by the engine.
type Profile struct {
	ID          string
	DisplayName string
	Role        Role
	CreatedAt   time.Time
}

// AccountAgeDays returns whole calendar days since the account was created.
func (p Profile) AccountAgeDays(now time.Time) int {
	if p.CreatedAt.IsZero() {
		return 0
	}
	return timeutil.DaysSince(p.CreatedAt, now)
}

// RequireStudent returns ErrNotAStudent unless the profile is a student.
func (p Profile) RequireStudent() error {
	if !p.Role.CanEarnPoints() {
		return shared.ErrNotAStudent
	}
	return nil
}
