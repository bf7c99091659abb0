package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func noLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestRecalculate_CollectsChangesAndFailures(t *testing.T) {
	var batches []int
	ids := []string{"a", "b", "c", "d", "e"}

	report := Recalculate(context.Background(), ids, 2, noLock,
		func(_ context.Context, id string) (MembershipChange, error) {
			switch id {
			case "a":
				return Granted, nil
			case "c":
				return Revoked, nil
			case "d":
				return Unchanged, errors.New("db down")
			}
			return Unchanged, nil
		},
		func(done, total int) { batches = append(batches, done) },
	)

	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, []string{"a"}, report.Granted)
	assert.Equal(t, []string{"c"}, report.Revoked)
	assert.Equal(t, []string{"d"}, report.FailedStudentIDs)
	assert.True(t, report.Partial())
	assert.Equal(t, []int{2, 4, 5}, batches)
}

func TestRecalculate_CancelledContextFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	report := Recalculate(ctx, []string{"a", "b", "c"}, 10, noLock,
		func(_ context.Context, id string) (MembershipChange, error) {
			calls++
			cancel()
			return Unchanged, nil
		}, nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"b", "c"}, report.FailedStudentIDs)
}

func TestUnionIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, UnionIDs([]string{"a", "b"}, []string{"b", "c", "a"}))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrConflict, KindOf(ErrAlreadyGranted))
	assert.Equal(t, ErrIntegrity, KindOf(ErrNotAStudent))
	assert.Equal(t, ErrValidation, KindOf(Invalid(ErrInvalidCriterion, "Parse", "unknown type")))
	assert.Nil(t, KindOf(errors.New("boom")))
}
