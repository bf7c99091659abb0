package query

import (
	"context"
	"fmt"

	"github.com/schoolplay/progression/internal/domain/ledger"
	"github.com/schoolplay/progression/internal/domain/ranking"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// A page of students ordered by total points, with level and badge count.
// Tied students share a position.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery selects a page. Zero values select the defaults;
// oversized pages are clamped.
type GetLeaderboardQuery struct {
	Page     int
	PageSize int
}

// LeaderboardRowDTO is one leaderboard line. Position comes from the signed
// ledger total; TotalPoints is clamped at zero for display.
type LeaderboardRowDTO struct {
	Position    ranking.Position `json:"position"`
	StudentID   string           `json:"student_id"`
	DisplayName string           `json:"display_name"`
	TotalPoints int64            `json:"total_points"`
	LedgerTotal int64            `json:"ledger_total"`
	LevelName   string           `json:"level_name,omitempty"`
	BadgeCount  int              `json:"badge_count"`
}

// NewLeaderboardRowDTO converts a projection row.
func NewLeaderboardRowDTO(r ranking.Row) LeaderboardRowDTO {
	return LeaderboardRowDTO{
		Position:    r.Position,
		StudentID:   r.StudentID,
		DisplayName: r.DisplayName,
		TotalPoints: ledger.DisplayTotal(r.TotalPoints),
		LedgerTotal: r.TotalPoints,
		LevelName:   r.LevelName,
		BadgeCount:  r.BadgeCount,
	}
}

// LeaderboardDTO is a leaderboard page in API responses.
type LeaderboardDTO struct {
	Rows          []LeaderboardRowDTO `json:"rows"`
	Page          int                 `json:"page"`
	PageSize      int                 `json:"page_size"`
	TotalStudents int                 `json:"total_students"`
	TotalPages    int                 `json:"total_pages"`
	HasNext       bool                `json:"has_next"`
}

// LeaderboardReader serves leaderboard pages.
type LeaderboardReader interface {
	Options(page, pageSize int) ranking.QueryOptions
	Leaderboard(ctx context.Context, opts ranking.QueryOptions) (*ranking.Page, error)
}

// GetLeaderboardHandler handles the GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	index LeaderboardReader
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler.
func NewGetLeaderboardHandler(index LeaderboardReader) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{index: index}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*LeaderboardDTO, error) {
	page, err := h.index.Leaderboard(ctx, h.index.Options(q.Page, q.PageSize))
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}
	dto := &LeaderboardDTO{
		Rows:          make([]LeaderboardRowDTO, 0, len(page.Rows)),
		Page:          page.Page,
		PageSize:      page.PageSize,
		TotalStudents: page.TotalStudents,
		TotalPages:    page.TotalPages(),
		HasNext:       page.HasNext(),
	}
	for _, r := range page.Rows {
		dto.Rows = append(dto.Rows, NewLeaderboardRowDTO(r))
	}
	return dto, nil
}
