package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schoolplay/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE STUDENTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// StudentLister lists every student id.
type StudentLister interface {
	ListStudentIDs(ctx context.Context) ([]string, error)
}

// Resyncer re-runs level, badge and ranking evaluation for one student.
type Resyncer interface {
	Resync(ctx context.Context, studentID string) error
}

// ReconcileStudentsJob re-evaluates every student so that levels and badges
// missed after a failed orchestration step are eventually granted.
type ReconcileStudentsJob struct {
	students StudentLister
	resyncer Resyncer
	log      *logger.Logger
	config   ReconcileConfig

	lastStats atomic.Pointer[ReconcileStats]
}

// ReconcileConfig contains configuration for the reconcile job.
type ReconcileConfig struct {
	// Concurrency is the number of students processed in parallel.
	Concurrency int
}

// DefaultReconcileConfig returns sensible defaults.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{Concurrency: 4}
}

// ReconcileStats describes one reconcile run.
type ReconcileStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Total     int
	Succeeded int
	Failed    []string
}

// NewReconcileStudentsJob creates the job.
func NewReconcileStudentsJob(students StudentLister, resyncer Resyncer, log *logger.Logger, config ReconcileConfig) *ReconcileStudentsJob {
	if log == nil {
		log = logger.Nop()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultReconcileConfig().Concurrency
	}
	return &ReconcileStudentsJob{
		students: students,
		resyncer: resyncer,
		log:      log.With(logger.Component("job"), logger.Operation("reconcile_students")),
		config:   config,
	}
}

// Name returns the job name.
func (j *ReconcileStudentsJob) Name() string {
	return "reconcile_students"
}

// Description returns the job description.
func (j *ReconcileStudentsJob) Description() string {
	return "Re-evaluates levels, badges and ranking of every student"
}

// Run executes the job. A failing student does not stop the run; the job
// reports an error when any student failed.
func (j *ReconcileStudentsJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	ids, err := j.students.ListStudentIDs(ctx)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}

	stats := &ReconcileStats{StartedAt: startedAt, Total: len(ids)}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		semaphore = make(chan struct{}, j.config.Concurrency)
	)

loop:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			break loop
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			err := j.resyncer.Resync(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed = append(stats.Failed, id)
				j.log.Warn("student reconcile failed", logger.StudentID(id), logger.Err(err))
				return
			}
			stats.Succeeded++
		}(id)
	}
	wg.Wait()

	stats.Duration = time.Since(startedAt)
	j.lastStats.Store(stats)

	j.log.Info("reconcile finished",
		logger.Int("total", stats.Total),
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("failed", len(stats.Failed)),
		logger.Duration("duration", stats.Duration),
	)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reconcile interrupted: %w", err)
	}
	if len(stats.Failed) > 0 {
		return fmt.Errorf("reconcile completed with %d failures", len(stats.Failed))
	}
	return nil
}

// LastStats returns the stats of the last run, nil before the first.
func (j *ReconcileStudentsJob) LastStats() *ReconcileStats {
	return j.lastStats.Load()
}
