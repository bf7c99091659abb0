package command

import (
	"context"
	"fmt"

	"github.com/schoolplay/progression/internal/domain/level"
	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
	"github.com/schoolplay/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL ADMINISTRATION COMMANDS
// Create and edit level definitions, and assign levels by hand. A threshold
// change recalculates every student; its report and membership events are
// published like any other change.
// ══════════════════════════════════════════════════════════════════════════════

// LevelEngine is the level administration surface.
type LevelEngine interface {
	Create(ctx context.Context, p level.CreateParams) (level.Level, error)
	Update(ctx context.Context, levelID string, p level.UpdateParams) (level.Level, *shared.RecalcReport, error)
	Get(ctx context.Context, id string) (level.Level, error)
	AssignManually(ctx context.Context, studentID, levelID, reason string) (level.StudentLevel, error)
}

// RecalcRecorder receives recalculation reports.
type RecalcRecorder interface {
	RecordRecalculation(target string, r shared.RecalcReport)
}

type nopRecalcRecorder struct{}

func (nopRecalcRecorder) RecordRecalculation(string, shared.RecalcReport) {}

// AssignLevelCommand grants a level by hand.
type AssignLevelCommand struct {
	StudentID string
	LevelID   string

	// Reason is optional and only logged.
	Reason string
}

// UpdateLevelResult is the edited level plus the recalculation report, nil
// when the threshold did not change.
type UpdateLevelResult struct {
	Level  level.Level
	Recalc *shared.RecalcReport
}

// LevelAdminHandler handles the level administration commands.
type LevelAdminHandler struct {
	levels    LevelEngine
	locker    student.Locker
	publisher shared.EventPublisher
	recorder  RecalcRecorder
	clock     shared.Clock
	log       *logger.Logger
}

// NewLevelAdminHandler creates a new LevelAdminHandler. publisher and
// recorder may be nil.
func NewLevelAdminHandler(levels LevelEngine, locker student.Locker, publisher shared.EventPublisher, recorder RecalcRecorder, clock shared.Clock, log *logger.Logger) *LevelAdminHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if recorder == nil {
		recorder = nopRecalcRecorder{}
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LevelAdminHandler{
		levels:    levels,
		locker:    locker,
		publisher: publisher,
		recorder:  recorder,
		clock:     clock,
		log:       log.With(logger.Component("level_admin")),
	}
}

// Create stores a new level.
func (h *LevelAdminHandler) Create(ctx context.Context, p level.CreateParams) (level.Level, error) {
	lvl, err := h.levels.Create(ctx, p)
	if err != nil {
		return level.Level{}, err
	}
	h.log.Info("level created", logger.LevelID(lvl.ID), logger.Int64("points_required", lvl.PointsRequired))
	return lvl, nil
}

// Update edits a level and publishes the memberships its recalculation changed.
func (h *LevelAdminHandler) Update(ctx context.Context, levelID string, p level.UpdateParams) (*UpdateLevelResult, error) {
	lvl, report, err := h.levels.Update(ctx, levelID, p)
	if err != nil {
		return nil, err
	}
	if report != nil {
		h.recorder.RecordRecalculation("level", *report)
		now := h.clock.Now()
		for _, id := range report.Granted {
			h.publish(shared.NewLevelEarnedEvent(id, lvl.ID, lvl.Name, lvl.PointsRequired, shared.SourceAuto, now))
		}
		for _, id := range report.Revoked {
			h.publish(shared.NewLevelRevokedEvent(id, lvl.ID, lvl.Name, lvl.PointsRequired, now))
		}
		h.log.Info("level threshold recalculated",
			logger.LevelID(lvl.ID),
			logger.Int("processed", report.Processed),
			logger.Int("granted", len(report.Granted)),
			logger.Int("revoked", len(report.Revoked)),
			logger.Int("failed", len(report.FailedStudentIDs)),
		)
	}
	return &UpdateLevelResult{Level: lvl, Recalc: report}, nil
}

// Assign grants a level by hand under the student's lock.
func (h *LevelAdminHandler) Assign(ctx context.Context, cmd AssignLevelCommand) (level.StudentLevel, error) {
	var (
		membership level.StudentLevel
		lvl        level.Level
	)
	err := h.locker.WithStudentLock(ctx, cmd.StudentID, func(ctx context.Context) error {
		var err error
		if membership, err = h.levels.AssignManually(ctx, cmd.StudentID, cmd.LevelID, cmd.Reason); err != nil {
			return err
		}
		lvl, err = h.levels.Get(ctx, membership.LevelID)
		return err
	})
	if err != nil {
		return level.StudentLevel{}, fmt.Errorf("assign_level: %w", err)
	}

	h.publish(shared.NewLevelEarnedEvent(cmd.StudentID, lvl.ID, lvl.Name, lvl.PointsRequired, shared.SourceManual, membership.EarnedAt))
	return membership, nil
}

func (h *LevelAdminHandler) publish(e shared.Event) {
	if err := h.publisher.Publish(e); err != nil {
		h.log.Warn("event publish failed", logger.String("event_type", string(e.EventType())), logger.Err(err))
	}
}
