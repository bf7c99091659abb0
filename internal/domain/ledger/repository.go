package ledger

import (
	"context"
	"time"
)

// Repository persists point transactions. Rows are never updated or deleted.
type Repository interface {
	// Append stores a new transaction.
	Append(ctx context.Context, tx PointTransaction) error

	// SumFor returns the sum of all transactions of a student, 0 if none.
	SumFor(ctx context.Context, studentID string) (int64, error)

	// ListFor returns the most recent transactions, newest first.
	// A limit <= 0 returns all of them.
	ListFor(ctx context.Context, studentID string, limit int) ([]PointTransaction, error)

	// TransactionTimes returns occurred_at of every transaction at or after since.
	TransactionTimes(ctx context.Context, studentID string, since time.Time) ([]time.Time, error)
}
