// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolplay/progression/internal/domain/badge"
	"github.com/schoolplay/progression/internal/domain/ledger"
	"github.com/schoolplay/progression/internal/domain/level"
	"github.com/schoolplay/progression/internal/domain/metrics"
	"github.com/schoolplay/progression/internal/domain/ranking"
	"github.com/schoolplay/progression/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESSION QUERY
// Total points, current and next level, every badge with its locked/unlocked
// state and progress, and the ranking position of one student.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressionQuery identifies the student.
type GetProgressionQuery struct {
	StudentID string
}

// LevelDTO is a level in API responses.
type LevelDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	PointsRequired int64  `json:"points_required"`
	DifficultyTag  string `json:"difficulty_tag,omitempty"`
}

// NewLevelDTO converts a level.
func NewLevelDTO(l level.Level) LevelDTO {
	return LevelDTO{
		ID:             l.ID,
		Name:           l.Name,
		Description:    l.Description,
		PointsRequired: l.PointsRequired,
		DifficultyTag:  l.DifficultyTag,
	}
}

// BadgeDTO is a badge definition in API responses.
type BadgeDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Criterion   string `json:"criterion"`
}

// NewBadgeDTO converts a badge.
func NewBadgeDTO(b badge.Badge) BadgeDTO {
	return BadgeDTO{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		Criterion:   b.Criterion.String(),
	}
}

// BadgeStatusDTO is a badge as seen by one student.
type BadgeStatusDTO struct {
	BadgeDTO
	Unlocked  bool       `json:"unlocked"`
	GrantedAt *time.Time `json:"granted_at,omitempty"`
	Progress  int        `json:"progress"`
}

// ProgressionDTO is the progression snapshot of one student. TotalPoints is
// clamped at zero for display; LedgerTotal is the signed ledger sum.
type ProgressionDTO struct {
	StudentID    string           `json:"student_id"`
	DisplayName  string           `json:"display_name"`
	TotalPoints  int64            `json:"total_points"`
	LedgerTotal  int64            `json:"ledger_total"`
	CurrentLevel *LevelDTO        `json:"current_level"`
	NextLevel    *LevelDTO        `json:"next_level"`
	PointsToNext int64            `json:"points_to_next"`
	Badges       []BadgeStatusDTO `json:"badges"`
	Position     int              `json:"position"`
	ComputedAt   time.Time        `json:"computed_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// MetricsReader computes derived metrics.
type MetricsReader interface {
	MetricsFor(ctx context.Context, studentID string) (metrics.StudentMetrics, error)
}

// LevelProgress reads level standing.
type LevelProgress interface {
	Progress(ctx context.Context, studentID string, total int64) (level.Progress, error)
}

// BadgeStatus reads badge standing.
type BadgeStatus interface {
	StatusFor(ctx context.Context, m metrics.StudentMetrics) ([]badge.Status, error)
}

// PositionReader computes a live ranking position.
type PositionReader interface {
	PositionFor(ctx context.Context, studentID string) (ranking.Position, int64, error)
}

// GetProgressionHandler handles the GetProgressionQuery.
type GetProgressionHandler struct {
	dir      student.Directory
	metrics  MetricsReader
	levels   LevelProgress
	badges   BadgeStatus
	position PositionReader
}

// NewGetProgressionHandler creates a new GetProgressionHandler.
func NewGetProgressionHandler(dir student.Directory, m MetricsReader, levels LevelProgress, badges BadgeStatus, position PositionReader) *GetProgressionHandler {
	return &GetProgressionHandler{
		dir:      dir,
		metrics:  m,
		levels:   levels,
		badges:   badges,
		position: position,
	}
}

// Handle executes the query. The position is computed from ledger totals,
// not read from the cached ranking entry.
func (h *GetProgressionHandler) Handle(ctx context.Context, q GetProgressionQuery) (*ProgressionDTO, error) {
	profile, err := student.RequireStudent(ctx, h.dir, q.StudentID)
	if err != nil {
		return nil, err
	}

	m, err := h.metrics.MetricsFor(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get_progression: metrics: %w", err)
	}
	progress, err := h.levels.Progress(ctx, q.StudentID, m.TotalPoints)
	if err != nil {
		return nil, fmt.Errorf("get_progression: levels: %w", err)
	}
	statuses, err := h.badges.StatusFor(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("get_progression: badges: %w", err)
	}
	pos, _, err := h.position.PositionFor(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get_progression: position: %w", err)
	}

	dto := &ProgressionDTO{
		StudentID:    profile.ID,
		DisplayName:  profile.DisplayName,
		TotalPoints:  ledger.DisplayTotal(m.TotalPoints),
		LedgerTotal:  m.TotalPoints,
		PointsToNext: progress.PointsToNext,
		Badges:       make([]BadgeStatusDTO, 0, len(statuses)),
		Position:     int(pos),
		ComputedAt:   m.ComputedAt,
	}
	if progress.Current != nil {
		l := NewLevelDTO(*progress.Current)
		dto.CurrentLevel = &l
	}
	if progress.Next != nil {
		l := NewLevelDTO(*progress.Next)
		dto.NextLevel = &l
	}
	for _, s := range statuses {
		dto.Badges = append(dto.Badges, BadgeStatusDTO{
			BadgeDTO:  NewBadgeDTO(s.Badge),
			Unlocked:  s.Unlocked,
			GrantedAt: s.GrantedAt,
			Progress:  s.Progress,
		})
	}
	return dto, nil
}
