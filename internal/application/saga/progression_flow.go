// Package saga contains the multi-step progression process that runs after
// every change to a student's point total.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schoolplay/progression/internal/domain/badge"
	"github.com/schoolplay/progression/internal/domain/ledger"
	"github.com/schoolplay/progression/internal/domain/level"
	"github.com/schoolplay/progression/internal/domain/metrics"
	"github.com/schoolplay/progression/internal/domain/ranking"
	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
	"github.com/schoolplay/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION FLOW SAGA
// Flow: Compute Metrics → Catch Up Levels → Grant Badges → Refresh Ranking →
//
//	Publish Events
//
// The ledger write that triggers the flow is already committed. A failing
// step is recorded and the remaining steps still run; nothing is rolled back.
// ══════════════════════════════════════════════════════════════════════════════

// Step names one stage of the flow.
type Step string

const (
	StepMetrics Step = "metrics"
	StepLevels  Step = "levels"
	StepBadges  Step = "badges"
	StepRanking Step = "ranking"
	StepEvents  Step = "events"
)

// ErrMetricsUnavailable marks steps skipped because metrics could not be computed.
var ErrMetricsUnavailable = errors.New("metrics unavailable")

// StepError is the failure of one step.
type StepError struct {
	Step Step
	Err  error
}

func (e StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e StepError) Unwrap() error {
	return e.Err
}

// Outcome is what one run of the flow produced.
type Outcome struct {
	StudentID   string
	TotalPoints int64

	NewLevels []level.Level
	NewBadges []badge.Badge

	// Position is zero when the ranking step failed.
	Position    ranking.Position
	OldPosition ranking.Position

	Failures    []StepError
	CompletedAt time.Time
}

// Complete reports whether every step succeeded.
func (o *Outcome) Complete() bool {
	return len(o.Failures) == 0
}

// FailedSteps lists the failed steps in run order.
func (o *Outcome) FailedSteps() []Step {
	steps := make([]Step, 0, len(o.Failures))
	for _, f := range o.Failures {
		steps = append(steps, f.Step)
	}
	return steps
}

func (o *Outcome) fail(step Step, err error) {
	o.Failures = append(o.Failures, StepError{Step: step, Err: err})
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// MetricsSource computes derived metrics.
type MetricsSource interface {
	MetricsAt(ctx context.Context, studentID string, now time.Time) (metrics.StudentMetrics, error)
}

// PointTotals reads ledger totals.
type PointTotals interface {
	TotalFor(ctx context.Context, studentID string) (int64, error)
}

// LevelAssigner assigns levels a total qualifies for.
type LevelAssigner interface {
	CatchUp(ctx context.Context, studentID string, total int64, maxJumps int) ([]level.Level, error)
}

// BadgeGranter grants badges whose criterion is met.
type BadgeGranter interface {
	GrantQualifying(ctx context.Context, m metrics.StudentMetrics) ([]badge.Badge, error)
}

// RankingRefresher recomputes a ranking entry.
type RankingRefresher interface {
	Refresh(ctx context.Context, studentID string) (ranking.Entry, ranking.Position, error)
}

// Observer receives run telemetry.
type Observer interface {
	ObserveRun(d time.Duration)
	StepFailed(step string)
}

type nopObserver struct{}

func (nopObserver) ObserveRun(time.Duration) {}
func (nopObserver) StepFailed(string)        {}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionFlowConfig contains configuration for the flow.
type ProgressionFlowConfig struct {
	// MaxLevelJumps bounds level assignments in a single run.
	MaxLevelJumps int
}

// DefaultProgressionFlowConfig returns default configuration.
func DefaultProgressionFlowConfig() ProgressionFlowConfig {
	return ProgressionFlowConfig{MaxLevelJumps: 100}
}

// ProgressionFlow evaluates levels, badges and ranking for one student.
type ProgressionFlow struct {
	dir       student.Directory
	points    PointTotals
	metrics   MetricsSource
	levels    LevelAssigner
	badges    BadgeGranter
	ranking   RankingRefresher
	publisher shared.EventPublisher
	observer  Observer
	clock     shared.Clock
	log       *logger.Logger
	config    ProgressionFlowConfig
}

// ProgressionFlowDeps groups the collaborators of the flow.
type ProgressionFlowDeps struct {
	Directory student.Directory
	Points    PointTotals
	Metrics   MetricsSource
	Levels    LevelAssigner
	Badges    BadgeGranter
	Ranking   RankingRefresher

	// Optional.
	Publisher shared.EventPublisher
	Observer  Observer
	Clock     shared.Clock
	Logger    *logger.Logger
}

// NewProgressionFlow creates the flow.
func NewProgressionFlow(deps ProgressionFlowDeps, config ProgressionFlowConfig) *ProgressionFlow {
	if deps.Publisher == nil {
		deps.Publisher = shared.NopPublisher{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if config.MaxLevelJumps <= 0 {
		config.MaxLevelJumps = DefaultProgressionFlowConfig().MaxLevelJumps
	}
	return &ProgressionFlow{
		dir:       deps.Directory,
		points:    deps.Points,
		metrics:   deps.Metrics,
		levels:    deps.Levels,
		badges:    deps.Badges,
		ranking:   deps.Ranking,
		publisher: deps.Publisher,
		observer:  deps.Observer,
		clock:     deps.Clock,
		log:       deps.Logger.With(logger.Component("progression_flow")),
		config:    config,
	}
}

// OnPointsChanged runs the flow after a committed ledger entry and publishes
// points.changed ahead of the events the run produced.
func (f *ProgressionFlow) OnPointsChanged(ctx context.Context, entry ledger.Entry) *Outcome {
	tx := entry.Transaction
	trigger := shared.NewPointsChangedEvent(tx.StudentID, tx.ID, tx.Amount, entry.NewTotal, tx.Reason, tx.OccurredAt)
	return f.run(ctx, tx.StudentID, trigger)
}

// Resync runs the flow without a ledger write. It is the self-healing path
// after a run that left steps failed.
func (f *ProgressionFlow) Resync(ctx context.Context, studentID string) (*Outcome, error) {
	if _, err := student.RequireStudent(ctx, f.dir, studentID); err != nil {
		return nil, err
	}
	return f.run(ctx, studentID, nil), nil
}

func (f *ProgressionFlow) run(ctx context.Context, studentID string, trigger shared.Event) *Outcome {
	started := time.Now()
	now := f.clock.Now()
	log := f.log.With(logger.StudentID(studentID))
	out := &Outcome{StudentID: studentID}

	// Step 1: metrics
	m, metricsErr := f.metrics.MetricsAt(ctx, studentID, now)
	if metricsErr != nil {
		f.stepFailed(log, out, StepMetrics, metricsErr)
	}

	// Step 2: levels
	total := m.TotalPoints
	levelsReady := metricsErr == nil
	if !levelsReady {
		var err error
		if total, err = f.points.TotalFor(ctx, studentID); err != nil {
			f.stepFailed(log, out, StepLevels, fmt.Errorf("total points: %w", err))
		} else {
			levelsReady = true
		}
	}
	out.TotalPoints = total
	if levelsReady {
		earned, err := f.levels.CatchUp(ctx, studentID, total, f.config.MaxLevelJumps)
		out.NewLevels = earned
		if err != nil {
			f.stepFailed(log, out, StepLevels, err)
		}
	}

	// Step 3: badges, against metrics that include the levels just earned
	if metricsErr != nil {
		f.stepFailed(log, out, StepBadges, ErrMetricsUnavailable)
	} else {
		for _, l := range out.NewLevels {
			if !m.HasLevel || l.PointsRequired > m.HighestLevelPoints {
				m.HighestLevelPoints = l.PointsRequired
				m.HasLevel = true
			}
		}
		granted, err := f.badges.GrantQualifying(ctx, m)
		out.NewBadges = granted
		if err != nil {
			f.stepFailed(log, out, StepBadges, err)
		}
	}

	// Step 4: ranking
	entry, old, err := f.ranking.Refresh(ctx, studentID)
	if err != nil {
		f.stepFailed(log, out, StepRanking, err)
	} else {
		out.Position = entry.Position
		out.OldPosition = old
		out.TotalPoints = entry.TotalPoints
	}

	// Step 5: events
	f.publish(log, out, trigger, entry, err == nil)

	out.CompletedAt = f.clock.Now()
	f.observer.ObserveRun(time.Since(started))

	if out.Complete() {
		log.Debug("progression run completed",
			logger.Int("new_levels", len(out.NewLevels)),
			logger.Int("new_badges", len(out.NewBadges)),
			logger.Position(int(out.Position)),
		)
	} else {
		log.Warn("progression run incomplete",
			logger.Any("failed_steps", out.FailedSteps()),
		)
	}
	return out
}

func (f *ProgressionFlow) publish(log *logger.Logger, out *Outcome, trigger shared.Event, entry ranking.Entry, refreshed bool) {
	now := f.clock.Now()
	events := make([]shared.Event, 0, 2+len(out.NewLevels)+len(out.NewBadges))
	if trigger != nil {
		events = append(events, trigger)
	}
	for _, l := range out.NewLevels {
		events = append(events, shared.NewLevelEarnedEvent(out.StudentID, l.ID, l.Name, l.PointsRequired, shared.SourceAuto, now))
	}
	for _, b := range out.NewBadges {
		events = append(events, shared.NewBadgeGrantedEvent(out.StudentID, b.ID, b.Name, shared.SourceAuto, "", now))
	}
	if refreshed {
		events = append(events, shared.NewRankingRefreshedEvent(out.StudentID, int(out.OldPosition), int(entry.Position), entry.TotalPoints, now))
	}

	var errs []error
	for _, e := range events {
		if err := f.publisher.Publish(e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.EventType(), err))
		}
	}
	if len(errs) > 0 {
		f.stepFailed(log, out, StepEvents, errors.Join(errs...))
	}
}

func (f *ProgressionFlow) stepFailed(log *logger.Logger, out *Outcome, step Step, err error) {
	out.fail(step, err)
	f.observer.StepFailed(string(step))
	log.Error("progression step failed", logger.Step(string(step)), logger.Err(err))
}
