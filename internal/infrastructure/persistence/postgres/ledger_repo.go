package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolplay/progression/internal/domain/ledger"
	"github.com/schoolplay/progression/internal/domain/shared"
)

// LedgerRepository implements ledger.Repository. Rows are never updated or
// deleted.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

// Append inserts a transaction.
func (r *LedgerRepository) Append(ctx context.Context, tx ledger.PointTransaction) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO point_transactions (id, student_id, amount, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, tx.ID, tx.StudentID, tx.Amount, tx.Reason, tx.OccurredAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrStudentNotFound
		}
		return fmt.Errorf("insert point transaction: %w", err)
	}
	return nil
}

// SumFor returns the sum of all amounts of the student, 0 when none.
func (r *LedgerRepository) SumFor(ctx context.Context, studentID string) (int64, error) {
	var total int64
	err := r.conn.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::BIGINT FROM point_transactions WHERE student_id = $1`,
		studentID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum points: %w", err)
	}
	return total, nil
}

// ListFor returns the newest transactions first. limit <= 0 returns all.
func (r *LedgerRepository) ListFor(ctx context.Context, studentID string, limit int) ([]ledger.PointTransaction, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, student_id, amount, reason, occurred_at
		FROM point_transactions
		WHERE student_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT NULLIF($2::INT, 0)
	`, studentID, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("list point transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.PointTransaction
	for rows.Next() {
		var tx ledger.PointTransaction
		if err := rows.Scan(&tx.ID, &tx.StudentID, &tx.Amount, &tx.Reason, &tx.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan point transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// TransactionTimes returns the timestamps of transactions at or after since.
func (r *LedgerRepository) TransactionTimes(ctx context.Context, studentID string, since time.Time) ([]time.Time, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT occurred_at FROM point_transactions WHERE student_id = $1 AND occurred_at >= $2`,
		studentID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("transaction times: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan transaction time: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
