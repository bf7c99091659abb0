package query

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolplay/progression/internal/domain/ledger"
	"github.com/schoolplay/progression/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET TRANSACTIONS QUERY
// Recent ledger entries of one student, newest first.
// ══════════════════════════════════════════════════════════════════════════════

const (
	DefaultTransactionLimit = 20
	MaxTransactionLimit     = 200
)

// GetTransactionsQuery selects a student's history.
type GetTransactionsQuery struct {
	StudentID string
	Limit     int
}

func (q GetTransactionsQuery) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultTransactionLimit
	case q.Limit > MaxTransactionLimit:
		return MaxTransactionLimit
	default:
		return q.Limit
	}
}

// TransactionDTO is a ledger entry in API responses.
type TransactionDTO struct {
	ID         string    `json:"id"`
	Amount     int64     `json:"amount"`
	Kind       string    `json:"kind"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTransactionDTO converts a ledger transaction.
func NewTransactionDTO(tx ledger.PointTransaction) TransactionDTO {
	return TransactionDTO{
		ID:         tx.ID,
		Amount:     tx.Amount,
		Kind:       tx.Kind(),
		Reason:     tx.Reason,
		OccurredAt: tx.OccurredAt,
	}
}

// TransactionsDTO is a student's recent history.
type TransactionsDTO struct {
	StudentID    string           `json:"student_id"`
	TotalPoints  int64            `json:"total_points"`
	LedgerTotal  int64            `json:"ledger_total"`
	Transactions []TransactionDTO `json:"transactions"`
}

// LedgerReader reads ledger history.
type LedgerReader interface {
	TotalFor(ctx context.Context, studentID string) (int64, error)
	History(ctx context.Context, studentID string, limit int) ([]ledger.PointTransaction, error)
}

// GetTransactionsHandler handles the GetTransactionsQuery.
type GetTransactionsHandler struct {
	dir    student.Directory
	ledger LedgerReader
}

// NewGetTransactionsHandler creates a new GetTransactionsHandler.
func NewGetTransactionsHandler(dir student.Directory, l LedgerReader) *GetTransactionsHandler {
	return &GetTransactionsHandler{dir: dir, ledger: l}
}

// Handle executes the query.
func (h *GetTransactionsHandler) Handle(ctx context.Context, q GetTransactionsQuery) (*TransactionsDTO, error) {
	if _, err := student.RequireStudent(ctx, h.dir, q.StudentID); err != nil {
		return nil, err
	}

	total, err := h.ledger.TotalFor(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get_transactions: total: %w", err)
	}
	txs, err := h.ledger.History(ctx, q.StudentID, q.limit())
	if err != nil {
		return nil, fmt.Errorf("get_transactions: history: %w", err)
	}

	dto := &TransactionsDTO{
		StudentID:    q.StudentID,
		TotalPoints:  ledger.DisplayTotal(total),
		LedgerTotal:  total,
		Transactions: make([]TransactionDTO, 0, len(txs)),
	}
	for _, tx := range txs {
		dto.Transactions = append(dto.Transactions, NewTransactionDTO(tx))
	}
	return dto, nil
}
