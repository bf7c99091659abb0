// Package badge implements the Badge Engine: named achievements unlocked by
// criteria over derived student metrics, plus the criterion mini-language.
package badge

import (
	"time"

	"github.com/schoolplay/progression/internal/domain/metrics"
	"github.com/schoolplay/progression/internal/domain/shared"
)

// Badge is an achievement definition. Name is unique.
type Badge struct {
	ID          string
	Name        string
	Description string
	Criterion   Criterion
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the badge definition.
func (b Badge) Validate() error {
	if _, err := shared.RequireText("badge", "Validate", "name", b.Name); err != nil {
		return err
	}
	if b.Criterion.IsZero() {
		return shared.Invalid(shared.ErrInvalidCriterion, "Validate", "criterion is required")
	}
	return nil
}

// StudentBadge is a badge membership.
type StudentBadge struct {
	StudentID string
	BadgeID   string
	GrantedAt time.Time
	Source    shared.Source
	Reason    string
}

// Status is a badge as seen by one student.
type Status struct {
	Badge     Badge
	Unlocked  bool
	GrantedAt *time.Time
	Progress  int // 0-100
}

// StatusesFor combines definitions, memberships and metrics into per-badge
// status. Held badges report 100 regardless of current metrics.
func StatusesFor(badges []Badge, held []StudentBadge, m metrics.StudentMetrics) []Status {
	grants := make(map[string]time.Time, len(held))
	for _, h := range held {
		grants[h.BadgeID] = h.GrantedAt
	}

	out := make([]Status, 0, len(badges))
	for _, b := range badges {
		s := Status{Badge: b}
		if at, ok := grants[b.ID]; ok {
			s.Unlocked = true
			s.GrantedAt = &at
			s.Progress = 100
		} else {
			s.Progress = b.Criterion.Progress(m)
		}
		out = append(out, s)
	}
	return out
}
