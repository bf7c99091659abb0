package http

import (
	"net/http"
	"time"

	"github.com/schoolplay/progression/internal/application/command"
	"github.com/schoolplay/progression/internal/application/query"
	"github.com/schoolplay/progression/internal/application/saga"
	"github.com/schoolplay/progression/internal/domain/badge"
	"github.com/schoolplay/progression/internal/domain/ledger"
	"github.com/schoolplay/progression/internal/domain/level"
	"github.com/schoolplay/progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE DTOS
// ══════════════════════════════════════════════════════════════════════════════

type pointsRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type createLevelRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	Description    string `json:"description" validate:"max=1000"`
	PointsRequired *int64 `json:"points_required" validate:"required,gte=0"`
	DifficultyTag  string `json:"difficulty_tag" validate:"max=50"`
}

type updateLevelRequest struct {
	Name           *string `json:"name" validate:"omitempty,max=100"`
	Description    *string `json:"description" validate:"omitempty,max=1000"`
	PointsRequired *int64  `json:"points_required" validate:"omitempty,gte=0"`
	DifficultyTag  *string `json:"difficulty_tag" validate:"omitempty,max=50"`
}

type createBadgeRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	Criterion   string `json:"criterion" validate:"required,max=100"`
}

type updateBadgeRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Criterion   *string `json:"criterion" validate:"omitempty,max=100"`
}

// OutcomeDTO summarizes the progression run that followed a change.
type OutcomeDTO struct {
	TotalPoints int64            `json:"total_points"`
	NewLevels   []query.LevelDTO `json:"new_levels"`
	NewBadges   []query.BadgeDTO `json:"new_badges"`
	Position    int              `json:"position,omitempty"`
	OldPosition int              `json:"old_position,omitempty"`
	Complete    bool             `json:"complete"`
	FailedSteps []string         `json:"failed_steps,omitempty"`
}

func newOutcomeDTO(o *saga.Outcome) OutcomeDTO {
	dto := OutcomeDTO{
		TotalPoints: ledger.DisplayTotal(o.TotalPoints),
		NewLevels:   make([]query.LevelDTO, 0, len(o.NewLevels)),
		NewBadges:   make([]query.BadgeDTO, 0, len(o.NewBadges)),
		Position:    int(o.Position),
		OldPosition: int(o.OldPosition),
		Complete:    o.Complete(),
	}
	for _, l := range o.NewLevels {
		dto.NewLevels = append(dto.NewLevels, query.NewLevelDTO(l))
	}
	for _, b := range o.NewBadges {
		dto.NewBadges = append(dto.NewBadges, query.NewBadgeDTO(b))
	}
	for _, step := range o.FailedSteps() {
		dto.FailedSteps = append(dto.FailedSteps, string(step))
	}
	return dto
}

// PointsChangeDTO is the response to an award or penalty. NewTotal is the
// signed ledger sum; TotalPoints is the display value.
type PointsChangeDTO struct {
	Transaction query.TransactionDTO `json:"transaction"`
	NewTotal    int64                `json:"new_total"`
	TotalPoints int64                `json:"total_points"`
	Progression OutcomeDTO           `json:"progression"`
}

// RecalcDTO is a recalculation report.
type RecalcDTO struct {
	Processed        int      `json:"processed"`
	Granted          []string `json:"granted"`
	Revoked          []string `json:"revoked"`
	FailedStudentIDs []string `json:"failed_student_ids,omitempty"`
}

func newRecalcDTO(r *shared.RecalcReport) *RecalcDTO {
	if r == nil {
		return nil
	}
	return &RecalcDTO{
		Processed:        r.Processed,
		Granted:          nonNil(r.Granted),
		Revoked:          nonNil(r.Revoked),
		FailedStudentIDs: r.FailedStudentIDs,
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// MembershipDTO is a level or badge membership.
type MembershipDTO struct {
	StudentID string    `json:"student_id"`
	LevelID   string    `json:"level_id,omitempty"`
	BadgeID   string    `json:"badge_id,omitempty"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLIC HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProgression handles GET /api/v1/students/{id}/progression
func (s *Server) handleGetProgression(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Service.Progression.Handle(r.Context(), query.GetProgressionQuery{StudentID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleGetTransactions handles GET /api/v1/students/{id}/transactions
func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dto, err := s.deps.Service.Transactions.Handle(r.Context(), query.GetTransactionsQuery{
		StudentID: r.PathValue("id"),
		Limit:     limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleGetLeaderboard handles GET /api/v1/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	size, err := queryInt(r, "page_size")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	dto, err := s.deps.Service.Leaderboard.Handle(r.Context(), query.GetLeaderboardQuery{Page: page, PageSize: size})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleListLevels handles GET /api/v1/levels
func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.deps.Service.Catalog.Levels(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, levels)
}

// handleListBadges handles GET /api/v1/badges
func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := s.deps.Service.Catalog.Badges(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, badges)
}

// ══════════════════════════════════════════════════════════════════════════════
// POINT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleAward handles POST /api/v1/students/{id}/points/award
func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	s.changePoints(w, r, command.PointsAward)
}

// handlePenalize handles POST /api/v1/students/{id}/points/penalize
func (s *Server) handlePenalize(w http.ResponseWriter, r *http.Request) {
	s.changePoints(w, r, command.PointsPenalty)
}

func (s *Server) changePoints(w http.ResponseWriter, r *http.Request, kind command.PointsKind) {
	var req pointsRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	res, err := s.deps.Service.ChangePoints.Handle(r.Context(), command.ChangePointsCommand{
		StudentID: r.PathValue("id"),
		Kind:      kind,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, PointsChangeDTO{
		Transaction: query.NewTransactionDTO(res.Transaction),
		NewTotal:    res.NewTotal,
		TotalPoints: ledger.DisplayTotal(res.NewTotal),
		Progression: newOutcomeDTO(res.Outcome),
	})
}

// handleResync handles POST /api/v1/students/{id}/resync
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Service.Resync.Handle(r.Context(), command.ResyncStudentCommand{StudentID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newOutcomeDTO(out))
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMBERSHIP HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGrantBadge handles POST /api/v1/students/{id}/badges/{badge_id}
func (s *Server) handleGrantBadge(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	m, err := s.deps.Service.BadgeAdmin.Grant(r.Context(), command.BadgeMembershipCommand{
		StudentID: r.PathValue("id"),
		BadgeID:   r.PathValue("badge_id"),
		Reason:    req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, MembershipDTO{
		StudentID: m.StudentID,
		BadgeID:   m.BadgeID,
		Source:    string(m.Source),
		Reason:    m.Reason,
		At:        m.GrantedAt,
	})
}

// handleRevokeBadge handles DELETE /api/v1/students/{id}/badges/{badge_id}
func (s *Server) handleRevokeBadge(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	err := s.deps.Service.BadgeAdmin.Revoke(r.Context(), command.BadgeMembershipCommand{
		StudentID: r.PathValue("id"),
		BadgeID:   r.PathValue("badge_id"),
		Reason:    req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleAssignLevel handles POST /api/v1/students/{id}/levels/{level_id}
func (s *Server) handleAssignLevel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	m, err := s.deps.Service.LevelAdmin.Assign(r.Context(), command.AssignLevelCommand{
		StudentID: r.PathValue("id"),
		LevelID:   r.PathValue("level_id"),
		Reason:    req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, MembershipDTO{
		StudentID: m.StudentID,
		LevelID:   m.LevelID,
		Source:    string(m.Source),
		Reason:    req.Reason,
		At:        m.EarnedAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCreateLevel handles POST /api/v1/levels
func (s *Server) handleCreateLevel(w http.ResponseWriter, r *http.Request) {
	var req createLevelRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	lvl, err := s.deps.Service.LevelAdmin.Create(r.Context(), level.CreateParams{
		Name:           req.Name,
		Description:    req.Description,
		PointsRequired: *req.PointsRequired,
		DifficultyTag:  req.DifficultyTag,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.NewLevelDTO(lvl))
}

// handleUpdateLevel handles PUT /api/v1/levels/{id}
func (s *Server) handleUpdateLevel(w http.ResponseWriter, r *http.Request) {
	var req updateLevelRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	res, err := s.deps.Service.LevelAdmin.Update(r.Context(), r.PathValue("id"), level.UpdateParams{
		Name:           req.Name,
		Description:    req.Description,
		DifficultyTag:  req.DifficultyTag,
		PointsRequired: req.PointsRequired,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"level":         query.NewLevelDTO(res.Level),
		"recalculation": newRecalcDTO(res.Recalc),
	})
}

// handleCreateBadge handles POST /api/v1/badges
func (s *Server) handleCreateBadge(w http.ResponseWriter, r *http.Request) {
	var req createBadgeRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	b, err := s.deps.Service.BadgeAdmin.Create(r.Context(), badge.CreateParams{
		Name:        req.Name,
		Description: req.Description,
		Criterion:   req.Criterion,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.NewBadgeDTO(b))
}

// handleUpdateBadge handles PUT /api/v1/badges/{id}
func (s *Server) handleUpdateBadge(w http.ResponseWriter, r *http.Request) {
	var req updateBadgeRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	res, err := s.deps.Service.BadgeAdmin.Update(r.Context(), r.PathValue("id"), badge.UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		Criterion:   req.Criterion,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"badge":         query.NewBadgeDTO(res.Badge),
		"recalculation": newRecalcDTO(res.Recalc),
	})
}
