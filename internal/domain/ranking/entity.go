// Package ranking implements the Ranking Index: a student's ordinal standing
// by total points, cached as RankingEntry rows, and the leaderboard projection.
package ranking

import (
	"fmt"
	"sort"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Position is a 1-based standing. Tied students share a position.
type Position int

// IsValid checks that the position is positive.
func (p Position) IsValid() bool {
	return p > 0
}

// IsTop reports whether the position is within the first n.
func (p Position) IsTop(n int) bool {
	return p >= 1 && int(p) <= n
}

// String returns "#n".
func (p Position) String() string {
	return fmt.Sprintf("#%d", p)
}

// PositionOf is 1 + the number of totals strictly greater than mine.
func PositionOf(mine int64, others []int64) Position {
	above := 0
	for _, t := range others {
		if t > mine {
			above++
		}
	}
	return Position(above + 1)
}

// Positions assigns every student its position. Equal totals share a
// position and the next lower total skips the tied places.
func Positions(totals map[string]int64) map[string]Position {
	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if totals[ids[i]] != totals[ids[j]] {
			return totals[ids[i]] > totals[ids[j]]
		}
		return ids[i] < ids[j]
	})

	out := make(map[string]Position, len(ids))
	for i, id := range ids {
		if i > 0 && totals[id] == totals[ids[i-1]] {
			out[id] = out[ids[i-1]]
			continue
		}
		out[id] = Position(i + 1)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Entry is the cached ranking of one student. It is always re-derivable from
// the ledger and never authoritative.
type Entry struct {
	StudentID   string
	Position    Position
	TotalPoints int64
	ComputedAt  time.Time
}

// Row is one line of the leaderboard projection.
type Row struct {
	Position    Position `json:"position"`
	StudentID   string   `json:"student_id"`
	DisplayName string   `json:"display_name"`
	TotalPoints int64    `json:"total_points"`
	LevelName   string   `json:"level_name,omitempty"`
	BadgeCount  int      `json:"badge_count"`
}

// Page is a slice of the leaderboard.
type Page struct {
	Rows          []Row `json:"rows"`
	Page          int   `json:"page"`
	PageSize      int   `json:"page_size"`
	TotalStudents int   `json:"total_students"`
}

// TotalPages returns the number of pages at this page size.
func (p Page) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.TotalStudents + p.PageSize - 1) / p.PageSize
}

// HasNext reports whether a following page exists.
func (p Page) HasNext() bool {
	return p.Page < p.TotalPages()
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// QueryOptions selects a leaderboard page.
type QueryOptions struct {
	Page     int
	PageSize int
}

// DefaultQueryOptions returns the first page at the default size.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{Page: 1, PageSize: DefaultPageSize}
}

// WithPage sets the page number; values below 1 select the first page.
func (o QueryOptions) WithPage(page int) QueryOptions {
	if page < 1 {
		page = 1
	}
	o.Page = page
	return o
}

// WithPageSize sets the page size within [1, maxSize]; values below 1 select def.
func (o QueryOptions) WithPageSize(size, def, maxSize int) QueryOptions {
	if size < 1 {
		size = def
	}
	if size > maxSize {
		size = maxSize
	}
	o.PageSize = size
	return o
}

// Offset returns the number of rows to skip.
func (o QueryOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}

// Limit returns the number of rows to fetch.
func (o QueryOptions) Limit() int {
	return o.PageSize
}

// CacheKey identifies the page in a cache.
func (o QueryOptions) CacheKey() string {
	return fmt.Sprintf("p%d:s%d", o.Page, o.PageSize)
}
