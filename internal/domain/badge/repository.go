package badge

import (
	"context"
)

// Repository persists badges and badge memberships.
type Repository interface {
	// Create stores a new badge. Returns ErrDuplicateBadgeName.
	Create(ctx context.Context, b Badge) error

	// Update overwrites a badge definition.
	// Returns ErrBadgeNotFound or ErrDuplicateBadgeName.
	Update(ctx context.Context, b Badge) error

	// Get returns a badge by id. Returns ErrBadgeNotFound.
	Get(ctx context.Context, id string) (Badge, error)

	// List returns all badges ordered by name.
	List(ctx context.Context) ([]Badge, error)

	// Held returns every badge membership of a student.
	Held(ctx context.Context, studentID string) ([]StudentBadge, error)

	// Grant inserts a membership. It reports false when it already existed.
	Grant(ctx context.Context, m StudentBadge) (bool, error)

	// Revoke deletes a membership. It reports false when none existed.
	Revoke(ctx context.Context, studentID, badgeID string) (bool, error)

	// Holders returns the ids of students holding a badge.
	Holders(ctx context.Context, badgeID string) ([]string, error)
}
