// Package level implements the Level Engine: named milestones unlocked at
// cumulative point thresholds.
package level

import (
	"sort"
	"time"

	"github.com/schoolplay/progression/internal/domain/shared"
)

// Level is admin-managed reference data. PointsRequired is unique.
type Level struct {
	ID             string
	Name           string
	Description    string
	PointsRequired int64
	DifficultyTag  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the level definition.
func (l Level) Validate() error {
	if _, err := shared.RequireText("level", "Validate", "name", l.Name); err != nil {
		return err
	}
	if l.PointsRequired < 0 {
		return shared.ErrInvalidThreshold
	}
	return nil
}

// StudentLevel is a level membership.
type StudentLevel struct {
	StudentID string
	LevelID   string
	EarnedAt  time.Time
	Source    shared.Source
}

// SortByThreshold orders levels by PointsRequired ascending, in place.
func SortByThreshold(levels []Level) {
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].PointsRequired < levels[j].PointsRequired
	})
}

// NextEligible selects the single level a student should be assigned next:
// the lowest threshold strictly above the highest held one, provided the
// student's total reaches it. held is nil when the student holds no level.
func NextEligible(levels []Level, held *Level, total int64) (Level, bool) {
	var (
		next  Level
		found bool
	)
	for _, l := range levels {
		if held != nil && l.PointsRequired <= held.PointsRequired {
			continue
		}
		if !found || l.PointsRequired < next.PointsRequired {
			next = l
			found = true
		}
	}
	if !found || next.PointsRequired > total {
		return Level{}, false
	}
	return next, true
}

// Progress describes where a student stands on the level ladder.
type Progress struct {
	Current      *Level
	Next         *Level
	PointsToNext int64
}

// ProgressFor computes the current and next level for the snapshot view.
// current is the highest held level, or nil.
func ProgressFor(levels []Level, current *Level, total int64) Progress {
	p := Progress{Current: current}

	sorted := make([]Level, len(levels))
	copy(sorted, levels)
	SortByThreshold(sorted)

	for i := range sorted {
		if current != nil && sorted[i].PointsRequired <= current.PointsRequired {
			continue
		}
		next := sorted[i]
		p.Next = &next
		if remaining := next.PointsRequired - total; remaining > 0 {
			p.PointsToNext = remaining
		}
		break
	}
	return p
}
