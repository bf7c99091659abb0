package shared

import (
	"context"
)

// MembershipChange is the outcome of re-evaluating one student.
type MembershipChange int

const (
	Unchanged MembershipChange = iota
	Granted
	Revoked
)

// RecalcReport summarizes a recalculation over many students.
// FailedStudentIDs lists the students that must be retried.
type RecalcReport struct {
	Processed        int      `json:"processed"`
	Granted          []string `json:"granted"`
	Revoked          []string `json:"revoked"`
	FailedStudentIDs []string `json:"failed_student_ids"`
}

// Partial reports whether some students were not processed.
func (r RecalcReport) Partial() bool {
	return len(r.FailedStudentIDs) > 0
}

// LockFunc runs fn under a per-student lock.
type LockFunc func(ctx context.Context, studentID string, fn func(ctx context.Context) error) error

// Recalculate applies step to every student id in batches of batchSize,
// each call under that student's lock. Failures do not stop the run; once ctx
// is done, the remaining ids are reported as failed.
func Recalculate(
	ctx context.Context,
	ids []string,
	batchSize int,
	lock LockFunc,
	step func(ctx context.Context, studentID string) (MembershipChange, error),
	onBatch func(done, total int),
) RecalcReport {
	if batchSize <= 0 {
		batchSize = len(ids)
	}

	report := RecalcReport{
		Granted:          []string{},
		Revoked:          []string{},
		FailedStudentIDs: []string{},
	}

	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		for _, id := range ids[start:end] {
			if ctx.Err() != nil {
				report.FailedStudentIDs = append(report.FailedStudentIDs, id)
				continue
			}

			var change MembershipChange
			err := lock(ctx, id, func(ctx context.Context) error {
				var err error
				change, err = step(ctx, id)
				return err
			})
			if err != nil {
				report.FailedStudentIDs = append(report.FailedStudentIDs, id)
				continue
			}

			report.Processed++
			switch change {
			case Granted:
				report.Granted = append(report.Granted, id)
			case Revoked:
				report.Revoked = append(report.Revoked, id)
			}
		}

		if onBatch != nil {
			onBatch(end, len(ids))
		}
	}

	return report
}

// UnionIDs returns the ids of a followed by those of b not already present.
func UnionIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
