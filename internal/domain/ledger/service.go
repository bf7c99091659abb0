package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
)

// Entry is the result of a successful award or penalty.
type Entry struct {
	Transaction PointTransaction
	NewTotal    int64
}

// Ledger validates and records point transactions.
type Ledger struct {
	repo  Repository
	dir   student.Directory
	clock shared.Clock
	newID func() string
}

// New creates a Ledger.
func New(repo Repository, dir student.Directory, clock shared.Clock) *Ledger {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Ledger{
		repo:  repo,
		dir:   dir,
		clock: clock,
		newID: shared.NewID,
	}
}

// Award records a positive transaction of amount points.
func (l *Ledger) Award(ctx context.Context, studentID string, amount int64, reason string) (Entry, error) {
	return l.record(ctx, "Award", studentID, amount, reason, 1)
}

// Penalize records a transaction of -amount points. It never touches
// memberships that were already earned.
func (l *Ledger) Penalize(ctx context.Context, studentID string, amount int64, reason string) (Entry, error) {
	return l.record(ctx, "Penalize", studentID, amount, reason, -1)
}

func (l *Ledger) record(ctx context.Context, op, studentID string, amount int64, reason string, sign int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, shared.WrapError("ledger", op, shared.ErrValidation,
			fmt.Sprintf("amount %d is not positive", amount), shared.ErrInvalidAmount)
	}
	reason, err := shared.RequireText("ledger", op, "reason", reason)
	if err != nil {
		return Entry{}, err
	}
	if _, err := student.RequireStudent(ctx, l.dir, studentID); err != nil {
		return Entry{}, err
	}

	tx := PointTransaction{
		ID:         l.newID(),
		StudentID:  studentID,
		Amount:     sign * amount,
		Reason:     reason,
		OccurredAt: l.clock.Now(),
	}
	if err := l.repo.Append(ctx, tx); err != nil {
		return Entry{}, fmt.Errorf("append transaction: %w", err)
	}

	total, err := l.repo.SumFor(ctx, studentID)
	if err != nil {
		return Entry{}, fmt.Errorf("sum transactions: %w", err)
	}

	return Entry{Transaction: tx, NewTotal: total}, nil
}

// TotalFor returns the current total of a student, 0 if there are no transactions.
func (l *Ledger) TotalFor(ctx context.Context, studentID string) (int64, error) {
	total, err := l.repo.SumFor(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}
	return total, nil
}

// History returns up to limit recent transactions, newest first.
func (l *Ledger) History(ctx context.Context, studentID string, limit int) ([]PointTransaction, error) {
	if _, err := l.dir.RoleOf(ctx, studentID); err != nil {
		return nil, err
	}
	return l.repo.ListFor(ctx, studentID, limit)
}

// ActiveDates returns the times of transactions at or after since.
func (l *Ledger) ActiveDates(ctx context.Context, studentID string, since time.Time) ([]time.Time, error) {
	return l.repo.TransactionTimes(ctx, studentID, since)
}
