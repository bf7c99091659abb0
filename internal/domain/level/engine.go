package level

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
	"github.com/schoolplay/progression/pkg/logger"
)

// PointTotals reads current totals from the ledger.
type PointTotals interface {
	TotalFor(ctx context.Context, studentID string) (int64, error)
}

// EngineConfig holds Level Engine settings.
type EngineConfig struct {
	RecalcBatchSize int
}

// DefaultEngineConfig returns default settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{RecalcBatchSize: 200}
}

// Engine decides and persists level memberships.
type Engine struct {
	repo   Repository
	points PointTotals
	dir    student.Directory
	locker student.Locker
	clock  shared.Clock
	log    *logger.Logger
	config EngineConfig
	newID  func() string
}

// NewEngine creates a Level Engine.
func NewEngine(repo Repository, points PointTotals, dir student.Directory, locker student.Locker, clock shared.Clock, log *logger.Logger, config EngineConfig) *Engine {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		repo:   repo,
		points: points,
		dir:    dir,
		locker: locker,
		clock:  clock,
		log:    log.With(logger.Component("level_engine")),
		config: config,
		newID:  shared.NewID,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// CheckAndAssign assigns at most one level: the next one above the highest
// held, if the student's total reaches it. Callers fast-forward after a large
// award by looping until it reports false.
func (e *Engine) CheckAndAssign(ctx context.Context, studentID string) (Level, bool, error) {
	total, err := e.points.TotalFor(ctx, studentID)
	if err != nil {
		return Level{}, false, fmt.Errorf("total points: %w", err)
	}
	return e.checkAndAssign(ctx, studentID, total)
}

func (e *Engine) checkAndAssign(ctx context.Context, studentID string, total int64) (Level, bool, error) {
	levels, err := e.repo.List(ctx)
	if err != nil {
		return Level{}, false, fmt.Errorf("list levels: %w", err)
	}

	held, hasHeld, err := e.repo.HighestHeld(ctx, studentID)
	if err != nil {
		return Level{}, false, fmt.Errorf("highest held level: %w", err)
	}
	var heldPtr *Level
	if hasHeld {
		heldPtr = &held
	}

	next, ok := NextEligible(levels, heldPtr, total)
	if !ok {
		return Level{}, false, nil
	}

	inserted, err := e.repo.Assign(ctx, StudentLevel{
		StudentID: studentID,
		LevelID:   next.ID,
		EarnedAt:  e.clock.Now(),
		Source:    shared.SourceAuto,
	})
	if err != nil {
		return Level{}, false, fmt.Errorf("assign level: %w", err)
	}
	if !inserted {
		return Level{}, false, nil
	}

	e.log.Info("level earned",
		logger.StudentID(studentID),
		logger.LevelID(next.ID),
		logger.Points(total),
	)
	return next, true, nil
}

// CatchUp repeats single-step assignment for a known total until nothing
// more qualifies or maxJumps levels were assigned.
func (e *Engine) CatchUp(ctx context.Context, studentID string, total int64, maxJumps int) ([]Level, error) {
	var earned []Level
	for i := 0; i < maxJumps; i++ {
		lvl, ok, err := e.checkAndAssign(ctx, studentID, total)
		if err != nil {
			return earned, err
		}
		if !ok {
			return earned, nil
		}
		earned = append(earned, lvl)
	}
	e.log.Warn("level catch-up stopped at jump limit",
		logger.StudentID(studentID),
		logger.Int("max_jumps", maxJumps),
	)
	return earned, nil
}

// CurrentLevel returns the highest held level, if any.
func (e *Engine) CurrentLevel(ctx context.Context, studentID string) (Level, bool, error) {
	return e.repo.HighestHeld(ctx, studentID)
}

// HighestHeldThreshold reports the threshold of the highest held level.
func (e *Engine) HighestHeldThreshold(ctx context.Context, studentID string) (int64, bool, error) {
	l, ok, err := e.repo.HighestHeld(ctx, studentID)
	if err != nil || !ok {
		return 0, false, err
	}
	return l.PointsRequired, true, nil
}

// Progress returns current level, next level and points remaining.
func (e *Engine) Progress(ctx context.Context, studentID string, total int64) (Progress, error) {
	levels, err := e.repo.List(ctx)
	if err != nil {
		return Progress{}, fmt.Errorf("list levels: %w", err)
	}
	current, ok, err := e.repo.HighestHeld(ctx, studentID)
	if err != nil {
		return Progress{}, fmt.Errorf("highest held level: %w", err)
	}
	if !ok {
		return ProgressFor(levels, nil, total), nil
	}
	return ProgressFor(levels, &current, total), nil
}

// AssignManually grants a level through the administrative surface,
// regardless of the student's total.
func (e *Engine) AssignManually(ctx context.Context, studentID, levelID, reason string) (StudentLevel, error) {
	if _, err := student.RequireStudent(ctx, e.dir, studentID); err != nil {
		return StudentLevel{}, err
	}
	lvl, err := e.repo.Get(ctx, levelID)
	if err != nil {
		return StudentLevel{}, err
	}

	m := StudentLevel{
		StudentID: studentID,
		LevelID:   lvl.ID,
		EarnedAt:  e.clock.Now(),
		Source:    shared.SourceManual,
	}
	inserted, err := e.repo.Assign(ctx, m)
	if err != nil {
		return StudentLevel{}, fmt.Errorf("assign level: %w", err)
	}
	if !inserted {
		return StudentLevel{}, shared.ErrLevelAlreadyHeld
	}

	e.log.Info("level assigned manually",
		logger.StudentID(studentID),
		logger.LevelID(lvl.ID),
		logger.String("reason", strings.TrimSpace(reason)),
	)
	return m, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECALCULATION
// ══════════════════════════════════════════════════════════════════════════════

// RecalculateForThresholdChange stores a new threshold for the level and
// reconciles memberships so that exactly the students whose total reaches it
// hold the level.
func (e *Engine) RecalculateForThresholdChange(ctx context.Context, levelID string, newPointsRequired int64) (shared.RecalcReport, error) {
	lvl, err := e.repo.Get(ctx, levelID)
	if err != nil {
		return shared.RecalcReport{}, err
	}
	if newPointsRequired < 0 {
		return shared.RecalcReport{}, shared.ErrInvalidThreshold
	}

	if lvl.PointsRequired != newPointsRequired {
		lvl.PointsRequired = newPointsRequired
		lvl.UpdatedAt = e.clock.Now()
		if err := e.repo.Update(ctx, lvl); err != nil {
			return shared.RecalcReport{}, err
		}
	}

	students, err := e.dir.ListStudentIDs(ctx)
	if err != nil {
		return shared.RecalcReport{}, fmt.Errorf("list students: %w", err)
	}
	return e.Reconcile(ctx, lvl, students, e.clock.Now())
}

// Reconcile re-evaluates one level against an explicit student set. Holders
// outside the set lose the level; students in the set hold it iff their total
// reaches the threshold.
func (e *Engine) Reconcile(ctx context.Context, lvl Level, studentIDs []string, now time.Time) (shared.RecalcReport, error) {
	holders, err := e.repo.Holders(ctx, lvl.ID)
	if err != nil {
		return shared.RecalcReport{}, fmt.Errorf("list holders: %w", err)
	}

	eligible := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		eligible[id] = struct{}{}
	}
	held := make(map[string]struct{}, len(holders))
	for _, id := range holders {
		held[id] = struct{}{}
	}

	log := e.log.With(logger.LevelID(lvl.ID), logger.Operation("threshold_recalculation"))
	ids := shared.UnionIDs(holders, studentIDs)

	report := shared.Recalculate(ctx, ids, e.config.RecalcBatchSize, e.locker.WithStudentLock,
		func(ctx context.Context, id string) (shared.MembershipChange, error) {
			_, isStudent := eligible[id]
			_, holds := held[id]

			qualifies := false
			if isStudent {
				total, err := e.points.TotalFor(ctx, id)
				if err != nil {
					return shared.Unchanged, err
				}
				qualifies = total >= lvl.PointsRequired
			}

			switch {
			case holds && !qualifies:
				removed, err := e.repo.Remove(ctx, id, lvl.ID)
				if err != nil || !removed {
					return shared.Unchanged, err
				}
				return shared.Revoked, nil
			case !holds && qualifies:
				inserted, err := e.repo.Assign(ctx, StudentLevel{
					StudentID: id,
					LevelID:   lvl.ID,
					EarnedAt:  now,
					Source:    shared.SourceAuto,
				})
				if err != nil || !inserted {
					return shared.Unchanged, err
				}
				return shared.Granted, nil
			}
			return shared.Unchanged, nil
		},
		func(done, total int) {
			log.Info("recalculation batch done", logger.Int("done", done), logger.Int("total", total))
		},
	)

	if report.Partial() {
		log.Warn("recalculation incomplete", logger.Int("failed", len(report.FailedStudentIDs)))
	}
	return report, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMINISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// CreateParams describes a new level.
type CreateParams struct {
	Name           string
	Description    string
	PointsRequired int64
	DifficultyTag  string
}

// Create stores a new level definition. Existing students are not
// re-evaluated; they reach the level on their next point change or resync.
func (e *Engine) Create(ctx context.Context, p CreateParams) (Level, error) {
	now := e.clock.Now()
	lvl := Level{
		ID:             e.newID(),
		Name:           strings.TrimSpace(p.Name),
		Description:    strings.TrimSpace(p.Description),
		PointsRequired: p.PointsRequired,
		DifficultyTag:  strings.TrimSpace(p.DifficultyTag),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := lvl.Validate(); err != nil {
		return Level{}, err
	}
	if err := e.repo.Create(ctx, lvl); err != nil {
		return Level{}, err
	}
	return lvl, nil
}

// UpdateParams holds optional changes to a level. Nil fields are kept.
type UpdateParams struct {
	Name           *string
	Description    *string
	DifficultyTag  *string
	PointsRequired *int64
}

// Update edits a level. A threshold change triggers a full recalculation,
// whose report is returned.
func (e *Engine) Update(ctx context.Context, levelID string, p UpdateParams) (Level, *shared.RecalcReport, error) {
	lvl, err := e.repo.Get(ctx, levelID)
	if err != nil {
		return Level{}, nil, err
	}

	if p.Name != nil {
		lvl.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		lvl.Description = strings.TrimSpace(*p.Description)
	}
	if p.DifficultyTag != nil {
		lvl.DifficultyTag = strings.TrimSpace(*p.DifficultyTag)
	}
	thresholdChanged := p.PointsRequired != nil && *p.PointsRequired != lvl.PointsRequired
	if thresholdChanged {
		lvl.PointsRequired = *p.PointsRequired
	}
	if err := lvl.Validate(); err != nil {
		return Level{}, nil, err
	}

	lvl.UpdatedAt = e.clock.Now()
	if err := e.repo.Update(ctx, lvl); err != nil {
		return Level{}, nil, err
	}
	if !thresholdChanged {
		return lvl, nil, nil
	}

	report, err := e.RecalculateForThresholdChange(ctx, lvl.ID, lvl.PointsRequired)
	if err != nil {
		return lvl, nil, err
	}
	return lvl, &report, nil
}

// Get returns a level by id.
func (e *Engine) Get(ctx context.Context, id string) (Level, error) {
	return e.repo.Get(ctx, id)
}

// List returns all levels ordered by threshold.
func (e *Engine) List(ctx context.Context) ([]Level, error) {
	return e.repo.List(ctx)
}
