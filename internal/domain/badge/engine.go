package badge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/schoolplay/progression/internal/domain/metrics"
	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
	"github.com/schoolplay/progression/pkg/logger"
)

// MetricsSource computes student metrics as of a given time.
type MetricsSource interface {
	MetricsAt(ctx context.Context, studentID string, now time.Time) (metrics.StudentMetrics, error)
}

// EngineConfig holds Badge Engine settings.
type EngineConfig struct {
	RecalcBatchSize int
}

// DefaultEngineConfig returns default settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{RecalcBatchSize: 200}
}

// Engine evaluates criteria and persists badge memberships.
type Engine struct {
	repo    Repository
	metrics MetricsSource
	dir     student.Directory
	locker  student.Locker
	clock   shared.Clock
	log     *logger.Logger
	config  EngineConfig
	newID   func() string
}

// NewEngine creates a Badge Engine.
func NewEngine(repo Repository, ms MetricsSource, dir student.Directory, locker student.Locker, clock shared.Clock, log *logger.Logger, config EngineConfig) *Engine {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		repo:    repo,
		metrics: ms,
		dir:     dir,
		locker:  locker,
		clock:   clock,
		log:     log.With(logger.Component("badge_engine")),
		config:  config,
		newID:   shared.NewID,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// CheckAndGrant evaluates every badge the student does not hold yet and
// grants those whose criterion is met. Running it twice without a change in
// metrics grants nothing the second time.
func (e *Engine) CheckAndGrant(ctx context.Context, studentID string) ([]Badge, error) {
	m, err := e.metrics.MetricsAt(ctx, studentID, e.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	return e.GrantQualifying(ctx, m)
}

// GrantQualifying is CheckAndGrant with metrics already computed.
func (e *Engine) GrantQualifying(ctx context.Context, m metrics.StudentMetrics) ([]Badge, error) {
	badges, err := e.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	held, err := e.repo.Held(ctx, m.StudentID)
	if err != nil {
		return nil, fmt.Errorf("held badges: %w", err)
	}

	owned := make(map[string]struct{}, len(held))
	for _, h := range held {
		owned[h.BadgeID] = struct{}{}
	}

	var granted []Badge
	for _, b := range badges {
		if _, ok := owned[b.ID]; ok {
			continue
		}
		if !b.Criterion.Evaluate(m) {
			continue
		}

		inserted, err := e.repo.Grant(ctx, StudentBadge{
			StudentID: m.StudentID,
			BadgeID:   b.ID,
			GrantedAt: e.clock.Now(),
			Source:    shared.SourceAuto,
		})
		if err != nil {
			return granted, fmt.Errorf("grant badge %s: %w", b.ID, err)
		}
		if inserted {
			granted = append(granted, b)
			e.log.Info("badge granted",
				logger.StudentID(m.StudentID),
				logger.BadgeID(b.ID),
				logger.String("criterion", b.Criterion.String()),
			)
		}
	}
	return granted, nil
}

// StatusFor returns every badge with locked/unlocked state and progress.
func (e *Engine) StatusFor(ctx context.Context, m metrics.StudentMetrics) ([]Status, error) {
	badges, err := e.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	held, err := e.repo.Held(ctx, m.StudentID)
	if err != nil {
		return nil, fmt.Errorf("held badges: %w", err)
	}
	return StatusesFor(badges, held, m), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMINISTRATIVE GRANT / REVOKE
// ══════════════════════════════════════════════════════════════════════════════

// GrantManually grants a badge regardless of its criterion.
func (e *Engine) GrantManually(ctx context.Context, studentID, badgeID, reason string) (Badge, StudentBadge, error) {
	reason, err := shared.RequireText("badge", "GrantManually", "reason", reason)
	if err != nil {
		return Badge{}, StudentBadge{}, err
	}
	if _, err := student.RequireStudent(ctx, e.dir, studentID); err != nil {
		return Badge{}, StudentBadge{}, err
	}
	b, err := e.repo.Get(ctx, badgeID)
	if err != nil {
		return Badge{}, StudentBadge{}, err
	}

	m := StudentBadge{
		StudentID: studentID,
		BadgeID:   b.ID,
		GrantedAt: e.clock.Now(),
		Source:    shared.SourceManual,
		Reason:    reason,
	}
	inserted, err := e.repo.Grant(ctx, m)
	if err != nil {
		return Badge{}, StudentBadge{}, fmt.Errorf("grant badge: %w", err)
	}
	if !inserted {
		return Badge{}, StudentBadge{}, shared.ErrAlreadyGranted
	}

	e.log.Info("badge granted manually", logger.StudentID(studentID), logger.BadgeID(b.ID), logger.String("reason", reason))
	return b, m, nil
}

// Revoke removes a badge from a student. The badge stays eligible for
// automatic grant; the next evaluation re-grants it if the criterion holds.
func (e *Engine) Revoke(ctx context.Context, studentID, badgeID, reason string) (Badge, error) {
	reason, err := shared.RequireText("badge", "Revoke", "reason", reason)
	if err != nil {
		return Badge{}, err
	}
	b, err := e.repo.Get(ctx, badgeID)
	if err != nil {
		return Badge{}, err
	}

	removed, err := e.repo.Revoke(ctx, studentID, b.ID)
	if err != nil {
		return Badge{}, fmt.Errorf("revoke badge: %w", err)
	}
	if !removed {
		return Badge{}, shared.ErrNotGranted
	}

	e.log.Info("badge revoked", logger.StudentID(studentID), logger.BadgeID(b.ID), logger.String("reason", reason))
	return b, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECALCULATION
// ══════════════════════════════════════════════════════════════════════════════

// RecalculateForCriterionChange stores a new criterion and re-evaluates every
// student against it: holders who now fail lose the badge, students who now
// qualify gain it. Holders who still qualify are never removed, not even
// transiently.
func (e *Engine) RecalculateForCriterionChange(ctx context.Context, badgeID string, crit Criterion) (shared.RecalcReport, error) {
	if crit.IsZero() {
		return shared.RecalcReport{}, shared.Invalid(shared.ErrInvalidCriterion, "Recalculate", "criterion is required")
	}
	b, err := e.repo.Get(ctx, badgeID)
	if err != nil {
		return shared.RecalcReport{}, err
	}

	if !b.Criterion.Equal(crit) {
		b.Criterion = crit
		b.UpdatedAt = e.clock.Now()
		if err := e.repo.Update(ctx, b); err != nil {
			return shared.RecalcReport{}, err
		}
	}

	students, err := e.dir.ListStudentIDs(ctx)
	if err != nil {
		return shared.RecalcReport{}, fmt.Errorf("list students: %w", err)
	}
	return e.Reconcile(ctx, b, students, e.clock.Now())
}

// Reconcile re-evaluates one badge against an explicit student set, with
// metrics computed as of now.
func (e *Engine) Reconcile(ctx context.Context, b Badge, studentIDs []string, now time.Time) (shared.RecalcReport, error) {
	holders, err := e.repo.Holders(ctx, b.ID)
	if err != nil {
		return shared.RecalcReport{}, fmt.Errorf("list holders: %w", err)
	}

	eligible := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		eligible[id] = struct{}{}
	}
	held := make(map[string]struct{}, len(holders))
	for _, id := range holders {
		held[id] = struct{}{}
	}

	log := e.log.With(logger.BadgeID(b.ID), logger.Operation("criterion_recalculation"))
	ids := shared.UnionIDs(holders, studentIDs)

	report := shared.Recalculate(ctx, ids, e.config.RecalcBatchSize, e.locker.WithStudentLock,
		func(ctx context.Context, id string) (shared.MembershipChange, error) {
			_, isStudent := eligible[id]
			_, holds := held[id]

			qualifies := false
			if isStudent {
				m, err := e.metrics.MetricsAt(ctx, id, now)
				if err != nil {
					return shared.Unchanged, err
				}
				qualifies = b.Criterion.Evaluate(m)
			}

			switch {
			case holds && !qualifies:
				removed, err := e.repo.Revoke(ctx, id, b.ID)
				if err != nil || !removed {
					return shared.Unchanged, err
				}
				return shared.Revoked, nil
			case !holds && qualifies:
				inserted, err := e.repo.Grant(ctx, StudentBadge{
					StudentID: id,
					BadgeID:   b.ID,
					GrantedAt: now,
					Source:    shared.SourceAuto,
				})
				if err != nil || !inserted {
					return shared.Unchanged, err
				}
				return shared.Granted, nil
			}
			return shared.Unchanged, nil
		},
		func(done, total int) {
			log.Info("recalculation batch done", logger.Int("done", done), logger.Int("total", total))
		},
	)

	if report.Partial() {
		log.Warn("recalculation incomplete", logger.Int("failed", len(report.FailedStudentIDs)))
	}
	return report, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMINISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// CreateParams describes a new badge.
type CreateParams struct {
	Name        string
	Description string
	Criterion   string
}

// Create parses the criterion and stores a new badge.
func (e *Engine) Create(ctx context.Context, p CreateParams) (Badge, error) {
	crit, err := ParseCriterion(p.Criterion)
	if err != nil {
		return Badge{}, err
	}

	now := e.clock.Now()
	b := Badge{
		ID:          e.newID(),
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
		Criterion:   crit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.Validate(); err != nil {
		return Badge{}, err
	}
	if err := e.repo.Create(ctx, b); err != nil {
		return Badge{}, err
	}
	return b, nil
}

// UpdateParams holds optional changes to a badge. Nil fields are kept.
type UpdateParams struct {
	Name        *string
	Description *string
	Criterion   *string
}

// Update edits a badge. A criterion change triggers a full recalculation,
// whose report is returned.
func (e *Engine) Update(ctx context.Context, badgeID string, p UpdateParams) (Badge, *shared.RecalcReport, error) {
	var newCrit Criterion
	if p.Criterion != nil {
		c, err := ParseCriterion(*p.Criterion)
		if err != nil {
			return Badge{}, nil, err
		}
		newCrit = c
	}

	b, err := e.repo.Get(ctx, badgeID)
	if err != nil {
		return Badge{}, nil, err
	}

	if p.Name != nil {
		b.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		b.Description = strings.TrimSpace(*p.Description)
	}
	criterionChanged := !newCrit.IsZero() && !newCrit.Equal(b.Criterion)
	if criterionChanged {
		b.Criterion = newCrit
	}
	if err := b.Validate(); err != nil {
		return Badge{}, nil, err
	}

	b.UpdatedAt = e.clock.Now()
	if err := e.repo.Update(ctx, b); err != nil {
		return Badge{}, nil, err
	}
	if !criterionChanged {
		return b, nil, nil
	}

	report, err := e.RecalculateForCriterionChange(ctx, b.ID, b.Criterion)
	if err != nil {
		return b, nil, err
	}
	return b, &report, nil
}

// Get returns a badge by id.
func (e *Engine) Get(ctx context.Context, id string) (Badge, error) {
	return e.repo.Get(ctx, id)
}

// List returns all badges.
func (e *Engine) List(ctx context.Context) ([]Badge, error) {
	return e.repo.List(ctx)
}
