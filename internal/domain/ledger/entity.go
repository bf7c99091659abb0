// Package ledger implements the Point Ledger: an append-only log of signed
// point transactions per student. The sum of a student's transactions is their
// current total; the total is never stored.
package ledger

import (
	"time"
)

// PointTransaction is one immutable point event.
type PointTransaction struct {
	ID         string
	StudentID  string
	Amount     int64 // positive for awards, negative for penalties
	Reason     string
	OccurredAt time.Time
}

// IsPenalty reports whether the transaction removed points.
func (t PointTransaction) IsPenalty() bool {
	return t.Amount < 0
}

// Kind returns "award" or "penalty".
func (t PointTransaction) Kind() string {
	if t.IsPenalty() {
		return "penalty"
	}
	return "award"
}

// Sum adds up the amounts of txs.
func Sum(txs []PointTransaction) int64 {
	var total int64
	for _, tx := range txs {
		total += tx.Amount
	}
	return total
}

// DisplayTotal clamps a running total for presentation.
// The ledger itself may hold a negative sum.
func DisplayTotal(total int64) int64 {
	if total < 0 {
		return 0
	}
	return total
}
