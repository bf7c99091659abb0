package level

import (
	"context"
)

// Repository persists levels and level memberships.
type Repository interface {
	// Create stores a new level.
	// Returns ErrDuplicateThreshold if another level has the same threshold.
	Create(ctx context.Context, l Level) error

	// Update overwrites a level definition.
	// Returns ErrLevelNotFound or ErrDuplicateThreshold.
	Update(ctx context.Context, l Level) error

	// Get returns a level by id. Returns ErrLevelNotFound.
	Get(ctx context.Context, id string) (Level, error)

	// List returns all levels ordered by threshold ascending.
	List(ctx context.Context) ([]Level, error)

	// HighestHeld returns the held level with the largest threshold.
	HighestHeld(ctx context.Context, studentID string) (Level, bool, error)

	// Held returns every level membership of a student.
	Held(ctx context.Context, studentID string) ([]StudentLevel, error)

	// Assign inserts a membership. It reports false when it already existed.
	Assign(ctx context.Context, m StudentLevel) (bool, error)

	// Remove deletes a membership. It reports false when there was none.
	Remove(ctx context.Context, studentID, levelID string) (bool, error)

	// Holders returns the ids of students holding a level.
	Holders(ctx context.Context, levelID string) ([]string, error)
}
