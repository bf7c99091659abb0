package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolplay/progression/internal/domain/ledger"
	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
	"github.com/schoolplay/progression/internal/infrastructure/persistence/memory"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) (*ledger.Ledger, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.AddStudent("ana", "Ana", now)
	store.AddAccount(student.Profile{ID: "profe", DisplayName: "Profe", Role: student.RoleTeacher})
	return ledger.New(store.Ledger(), store.Directory(), shared.NewFixedClock(now)), store
}

func TestLedger_AwardAndPenalize(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	entry, err := l.Award(ctx, "ana", 100, "  quiz  ")
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.NewTotal)
	assert.Equal(t, "quiz", entry.Transaction.Reason)
	assert.Equal(t, now, entry.Transaction.OccurredAt)
	assert.NotEmpty(t, entry.Transaction.ID)

	entry, err = l.Penalize(ctx, "ana", 130, "late")
	require.NoError(t, err)
	assert.Equal(t, int64(-30), entry.NewTotal)
	assert.Equal(t, int64(-130), entry.Transaction.Amount)
	assert.True(t, entry.Transaction.IsPenalty())
	assert.Equal(t, int64(0), ledger.DisplayTotal(entry.NewTotal))

	history, err := l.History(ctx, "ana", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "late", history[0].Reason)
}

func TestLedger_RejectsBeforeWriting(t *testing.T) {
	tests := []struct {
		name    string
		student string
		amount  int64
		reason  string
		check   func(error) bool
	}{
		{"zero amount", "ana", 0, "quiz", shared.IsValidation},
		{"negative amount", "ana", -5, "quiz", shared.IsValidation},
		{"blank reason", "ana", 5, "   ", shared.IsValidation},
		{"unknown student", "ghost", 5, "quiz", shared.IsNotFound},
		{"not a student", "profe", 5, "quiz", shared.IsIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newLedger(t)
			ctx := context.Background()

			_, err := l.Award(ctx, tt.student, tt.amount, tt.reason)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)

			total, err := l.TotalFor(ctx, tt.student)
			require.NoError(t, err)
			assert.Zero(t, total)
		})
	}
}

func TestLedger_InvalidAmountIsNamed(t *testing.T) {
	l, _ := newLedger(t)

	_, err := l.Penalize(context.Background(), "ana", 0, "late")

	assert.True(t, errors.Is(err, shared.ErrInvalidAmount))
}
