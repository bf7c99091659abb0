package ranking

import (
	"context"
)

// Repository computes standings from the ledger and stores ranking entries.
// Only accounts with the student role take part.
type Repository interface {
	// CountAbove returns how many students have a total strictly greater than total.
	// Students without transactions count with a total of 0.
	CountAbove(ctx context.Context, total int64) (int, error)

	// Totals returns the current total of every student.
	Totals(ctx context.Context) (map[string]int64, error)

	// Get returns the stored entry of a student.
	Get(ctx context.Context, studentID string) (Entry, bool, error)

	// Upsert stores or replaces entries.
	Upsert(ctx context.Context, entries ...Entry) error

	// Leaderboard returns a page of rows sorted by total descending, with
	// the total number of students.
	Leaderboard(ctx context.Context, opts QueryOptions) ([]Row, int, error)
}

// Generation identifies one lifetime of the leaderboard cache. Invalidate
// starts a new generation and pages stored under an older one are never
// served again.
type Generation int64

// Cache holds rendered leaderboard pages.
type Cache interface {
	// GetPage returns a cached page, or nil on a miss, together with the
	// generation it was looked up in.
	GetPage(ctx context.Context, opts QueryOptions) (*Page, Generation, error)

	// SetPage stores a page under gen, the generation returned by the
	// GetPage call that missed.
	SetPage(ctx context.Context, opts QueryOptions, gen Generation, page *Page) error

	// Invalidate drops every cached page.
	Invalidate(ctx context.Context) error
}
