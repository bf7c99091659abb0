package student

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Directory answers identity questions about accounts.
type Directory interface {
	// IsStudent reports whether id exists and has the student role.
	IsStudent(ctx context.Context, id string) (bool, error)

	// RoleOf returns the role of id.
	// Returns ErrStudentNotFound if the account does not exist.
	RoleOf(ctx context.Context, id string) (Role, error)

	// Profile returns the account profile.
	// Returns ErrStudentNotFound if the account does not exist.
	Profile(ctx context.Context, id string) (Profile, error)

	// ListStudentIDs returns every account with the student role, ordered by id.
	ListStudentIDs(ctx context.Context) ([]string, error)
}

// RequireStudent loads the profile of id and checks its role.
// Unknown ids yield ErrStudentNotFound, other roles ErrNotAStudent.
func RequireStudent(ctx context.Context, dir Directory, id string) (Profile, error) {
	p, err := dir.Profile(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if err := p.RequireStudent(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOCKER
// ══════════════════════════════════════════════════════════════════════════════

// Locker runs fn while holding an exclusive lock scoped to one student.
type Locker interface {
	WithStudentLock(ctx context.Context, studentID string, fn func(ctx context.Context) error) error
}
