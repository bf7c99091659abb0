// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/schoolplay/progression/internal/application/saga"
	"github.com/schoolplay/progression/internal/domain/ledger"
	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
	"github.com/schoolplay/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHANGE POINTS COMMAND
// Records an award or a penalty and runs the progression flow while the
// student's lock is held, so concurrent changes for one student never
// double-grant a level or badge.
// ══════════════════════════════════════════════════════════════════════════════

// PointsKind selects the direction of a point change.
type PointsKind string

const (
	PointsAward   PointsKind = "award"
	PointsPenalty PointsKind = "penalty"
)

// ChangePointsCommand contains the data to record a point change.
type ChangePointsCommand struct {
	StudentID string

	Kind PointsKind

	// Amount is always positive; Kind gives the sign.
	Amount int64

	Reason string
}

// Validate validates the command shape. Amount and reason rules are enforced
// by the ledger.
func (c ChangePointsCommand) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return shared.Invalid(shared.ErrMissingField, "ChangePoints", "student_id is required")
	}
	switch c.Kind {
	case PointsAward, PointsPenalty:
		return nil
	default:
		return shared.Invalid(shared.ErrMissingField, "ChangePoints", fmt.Sprintf("unknown kind %q", c.Kind))
	}
}

// ChangePointsResult contains the result of a point change.
type ChangePointsResult struct {
	Transaction ledger.PointTransaction
	NewTotal    int64

	// Outcome is the progression run that followed the ledger write.
	Outcome *saga.Outcome
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// PointRecorder writes ledger entries.
type PointRecorder interface {
	Award(ctx context.Context, studentID string, amount int64, reason string) (ledger.Entry, error)
	Penalize(ctx context.Context, studentID string, amount int64, reason string) (ledger.Entry, error)
}

// PointsFlow runs the progression flow after a ledger write.
type PointsFlow interface {
	OnPointsChanged(ctx context.Context, entry ledger.Entry) *saga.Outcome
}

// ChangePointsHandler handles the ChangePointsCommand.
type ChangePointsHandler struct {
	ledger PointRecorder
	locker student.Locker
	flow   PointsFlow
	log    *logger.Logger
}

// NewChangePointsHandler creates a new ChangePointsHandler.
func NewChangePointsHandler(l PointRecorder, locker student.Locker, flow PointsFlow, log *logger.Logger) *ChangePointsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ChangePointsHandler{
		ledger: l,
		locker: locker,
		flow:   flow,
		log:    log.With(logger.Component("change_points")),
	}
}

// Handle executes the command. The transaction is committed before the flow
// runs; flow failures are reported in the outcome, never as an error.
func (h *ChangePointsHandler) Handle(ctx context.Context, cmd ChangePointsCommand) (*ChangePointsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *ChangePointsResult
	err := h.locker.WithStudentLock(ctx, cmd.StudentID, func(ctx context.Context) error {
		record := h.ledger.Award
		if cmd.Kind == PointsPenalty {
			record = h.ledger.Penalize
		}

		entry, err := record(ctx, cmd.StudentID, cmd.Amount, cmd.Reason)
		if err != nil {
			return err
		}

		h.log.Info("points recorded",
			logger.StudentID(cmd.StudentID),
			logger.String("kind", string(cmd.Kind)),
			logger.Points(entry.Transaction.Amount),
			logger.Int64("new_total", entry.NewTotal),
		)

		result = &ChangePointsResult{
			Transaction: entry.Transaction,
			NewTotal:    entry.NewTotal,
			Outcome:     h.flow.OnPointsChanged(ctx, entry),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("change_points: %w", err)
	}
	return result, nil
}
