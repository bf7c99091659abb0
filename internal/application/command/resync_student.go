package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/schoolplay/progression/internal/application/saga"
	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESYNC STUDENT COMMAND
// Re-runs the progression flow without a ledger write. Used by operators and
// by the nightly reconcile job to heal runs that left steps failed.
// ══════════════════════════════════════════════════════════════════════════════

// ResyncStudentCommand identifies the student to resync.
type ResyncStudentCommand struct {
	StudentID string
}

// ResyncFlow re-evaluates one student.
type ResyncFlow interface {
	Resync(ctx context.Context, studentID string) (*saga.Outcome, error)
}

// ResyncStudentHandler handles the ResyncStudentCommand.
type ResyncStudentHandler struct {
	locker student.Locker
	flow   ResyncFlow
}

// NewResyncStudentHandler creates a new ResyncStudentHandler.
func NewResyncStudentHandler(locker student.Locker, flow ResyncFlow) *ResyncStudentHandler {
	return &ResyncStudentHandler{locker: locker, flow: flow}
}

// Handle executes the command.
func (h *ResyncStudentHandler) Handle(ctx context.Context, cmd ResyncStudentCommand) (*saga.Outcome, error) {
	if strings.TrimSpace(cmd.StudentID) == "" {
		return nil, shared.Invalid(shared.ErrMissingField, "Resync", "student_id is required")
	}

	var out *saga.Outcome
	err := h.locker.WithStudentLock(ctx, cmd.StudentID, func(ctx context.Context) error {
		var err error
		out, err = h.flow.Resync(ctx, cmd.StudentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resync: %w", err)
	}
	return out, nil
}

// Resync adapts the handler to the reconcile job. A run with failed steps is
// reported as an error.
func (h *ResyncStudentHandler) Resync(ctx context.Context, studentID string) error {
	out, err := h.Handle(ctx, ResyncStudentCommand{StudentID: studentID})
	if err != nil {
		return err
	}
	if !out.Complete() {
		return fmt.Errorf("resync %s: failed steps %v", studentID, out.FailedSteps())
	}
	return nil
}
