package command

import (
	"context"
	"fmt"

	"github.com/schoolplay/progression/internal/domain/badge"
	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
	"github.com/schoolplay/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE ADMINISTRATION COMMANDS
// Create and edit badge definitions, grant and revoke badges by hand. A
// criterion change recalculates every student.
// ══════════════════════════════════════════════════════════════════════════════

// BadgeEngine is the badge administration surface.
type BadgeEngine interface {
	Create(ctx context.Context, p badge.CreateParams) (badge.Badge, error)
	Update(ctx context.Context, badgeID string, p badge.UpdateParams) (badge.Badge, *shared.RecalcReport, error)
	GrantManually(ctx context.Context, studentID, badgeID, reason string) (badge.Badge, badge.StudentBadge, error)
	Revoke(ctx context.Context, studentID, badgeID, reason string) (badge.Badge, error)
}

// BadgeMembershipCommand targets one student's badge.
type BadgeMembershipCommand struct {
	StudentID string
	BadgeID   string

	// Reason is required for both grant and revoke.
	Reason string
}

// UpdateBadgeResult is the edited badge plus the recalculation report, nil
// when the criterion did not change.
type UpdateBadgeResult struct {
	Badge  badge.Badge
	Recalc *shared.RecalcReport
}

// BadgeAdminHandler handles the badge administration commands.
type BadgeAdminHandler struct {
	badges    BadgeEngine
	locker    student.Locker
	publisher shared.EventPublisher
	recorder  RecalcRecorder
	clock     shared.Clock
	log       *logger.Logger
}

// NewBadgeAdminHandler creates a new BadgeAdminHandler. publisher and
// recorder may be nil.
func NewBadgeAdminHandler(badges BadgeEngine, locker student.Locker, publisher shared.EventPublisher, recorder RecalcRecorder, clock shared.Clock, log *logger.Logger) *BadgeAdminHandler {
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
	return &BadgeAdminHandler{
		badges:    badges,
		locker:    locker,
		publisher: publisher,
		recorder:  recorder,
		clock:     clock,
		log:       log.With(logger.Component("badge_admin")),
	}
}

// Create stores a new badge.
func (h *BadgeAdminHandler) Create(ctx context.Context, p badge.CreateParams) (badge.Badge, error) {
	b, err := h.badges.Create(ctx, p)
	if err != nil {
		return badge.Badge{}, err
	}
	h.log.Info("badge created", logger.BadgeID(b.ID), logger.String("criterion", b.Criterion.String()))
	return b, nil
}

// Update edits a badge and publishes the memberships its recalculation changed.
func (h *BadgeAdminHandler) Update(ctx context.Context, badgeID string, p badge.UpdateParams) (*UpdateBadgeResult, error) {
	b, report, err := h.badges.Update(ctx, badgeID, p)
	if err != nil {
		return nil, err
	}
	if report != nil {
		h.recorder.RecordRecalculation("badge", *report)
		now := h.clock.Now()
		for _, id := range report.Granted {
			h.publish(shared.NewBadgeGrantedEvent(id, b.ID, b.Name, shared.SourceAuto, "criterion changed", now))
		}
		for _, id := range report.Revoked {
			h.publish(shared.NewBadgeRevokedEvent(id, b.ID, b.Name, shared.SourceAuto, "criterion changed", now))
		}
		h.log.Info("badge criterion recalculated",
			logger.BadgeID(b.ID),
			logger.Int("processed", report.Processed),
			logger.Int("granted", len(report.Granted)),
			logger.Int("revoked", len(report.Revoked)),
			logger.Int("failed", len(report.FailedStudentIDs)),
		)
	}
	return &UpdateBadgeResult{Badge: b, Recalc: report}, nil
}

// Grant grants a badge by hand under the student's lock.
func (h *BadgeAdminHandler) Grant(ctx context.Context, cmd BadgeMembershipCommand) (badge.StudentBadge, error) {
	var (
		b          badge.Badge
		membership badge.StudentBadge
	)
	err := h.locker.WithStudentLock(ctx, cmd.StudentID, func(ctx context.Context) error {
		var err error
		b, membership, err = h.badges.GrantManually(ctx, cmd.StudentID, cmd.BadgeID, cmd.Reason)
		return err
	})
	if err != nil {
		return badge.StudentBadge{}, fmt.Errorf("grant_badge: %w", err)
	}

	h.publish(shared.NewBadgeGrantedEvent(cmd.StudentID, b.ID, b.Name, shared.SourceManual, membership.Reason, membership.GrantedAt))
	return membership, nil
}

// Revoke removes a badge by hand under the student's lock.
func (h *BadgeAdminHandler) Revoke(ctx context.Context, cmd BadgeMembershipCommand) error {
	var b badge.Badge
	err := h.locker.WithStudentLock(ctx, cmd.StudentID, func(ctx context.Context) error {
		var err error
		b, err = h.badges.Revoke(ctx, cmd.StudentID, cmd.BadgeID, cmd.Reason)
		return err
	})
	if err != nil {
		return fmt.Errorf("revoke_badge: %w", err)
	}

	h.publish(shared.NewBadgeRevokedEvent(cmd.StudentID, b.ID, b.Name, shared.SourceManual, cmd.Reason, h.clock.Now()))
	return nil
}

func (h *BadgeAdminHandler) publish(e shared.Event) {
	if err := h.publisher.Publish(e); err != nil {
		h.log.Warn("event publish failed", logger.String("event_type", string(e.EventType())), logger.Err(err))
	}
}
