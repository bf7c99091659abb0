package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolplay/progression/internal/domain/badge"
	"github.com/schoolplay/progression/internal/domain/ledger"
	"github.com/schoolplay/progression/internal/domain/level"
	"github.com/schoolplay/progression/internal/domain/ranking"
	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.AddStudent("ana", "Ana", now)
	s.AddStudent("ben", "Ben", now)
	s.AddStudent("cai", "Cai", now)
	s.AddAccount(student.Profile{ID: "profe", DisplayName: "Profe", Role: student.RoleTeacher})
	return s
}

func addPoints(t *testing.T, s *Store, studentID string, amounts ...int64) {
	t.Helper()
	for i, a := range amounts {
		require.NoError(t, s.Ledger().Append(context.Background(), ledger.PointTransaction{
			ID:         studentID + string(rune('a'+i)),
			StudentID:  studentID,
			Amount:     a,
			Reason:     "test",
			OccurredAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestDirectory(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	ids, err := s.Directory().ListStudentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ana", "ben", "cai"}, ids)

	ok, err := s.Directory().IsStudent(ctx, "profe")
	require.NoError(t, err)
	assert.False(t, ok)

	role, err := s.Directory().RoleOf(ctx, "profe")
	require.NoError(t, err)
	assert.Equal(t, student.RoleTeacher, role)

	_, err = s.Directory().Profile(ctx, "ghost")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestLedger_SumAndNewestFirst(t *testing.T) {
	s := seeded(t)
	addPoints(t, s, "ana", 50, -20, 5)
	ctx := context.Background()

	total, err := s.Ledger().SumFor(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, int64(35), total)

	txs, err := s.Ledger().ListFor(ctx, "ana", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(5), txs[0].Amount)
	assert.Equal(t, int64(-20), txs[1].Amount)
}

func TestRanking_CountAboveUsesLiveTotals(t *testing.T) {
	s := seeded(t)
	addPoints(t, s, "ana", 100)
	addPoints(t, s, "ben", 100)
	addPoints(t, s, "cai", 40)
	ctx := context.Background()

	n, err := s.Ranking().CountAbove(ctx, 40)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Ranking().CountAbove(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)

	addPoints(t, s, "cai", 100)
	n, err = s.Ranking().CountAbove(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "no stored entry needs refreshing first")
}

func TestRanking_LeaderboardTiesAndPaging(t *testing.T) {
	s := seeded(t)
	addPoints(t, s, "ana", 30)
	addPoints(t, s, "ben", 70)
	addPoints(t, s, "cai", 70)
	ctx := context.Background()

	opts := ranking.DefaultQueryOptions().WithPageSize(2, 10, 50)
	rows, total, err := s.Ranking().Leaderboard(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "ben", rows[0].StudentID)
	assert.Equal(t, "cai", rows[1].StudentID)
	assert.Equal(t, ranking.Position(1), rows[0].Position)
	assert.Equal(t, ranking.Position(1), rows[1].Position)

	rows, _, err = s.Ranking().Leaderboard(ctx, opts.WithPage(2))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ana", rows[0].StudentID)
	assert.Equal(t, ranking.Position(3), rows[0].Position)
}

func TestLevels_UniqueThresholdAndAssign(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	repo := s.Levels()

	require.NoError(t, repo.Create(ctx, level.Level{ID: "l1", Name: "Uno", PointsRequired: 100}))
	require.NoError(t, repo.Create(ctx, level.Level{ID: "l2", Name: "Dos", PointsRequired: 200}))
	assert.ErrorIs(t, repo.Create(ctx, level.Level{ID: "l3", Name: "Tres", PointsRequired: 100}), shared.ErrDuplicateThreshold)

	added, err := repo.Assign(ctx, level.StudentLevel{StudentID: "ana", LevelID: "l1", EarnedAt: now, Source: shared.SourceAuto})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.Assign(ctx, level.StudentLevel{StudentID: "ana", LevelID: "l1", EarnedAt: now, Source: shared.SourceAuto})
	require.NoError(t, err)
	assert.False(t, added)

	_, err = repo.Assign(ctx, level.StudentLevel{StudentID: "ana", LevelID: "nope"})
	assert.ErrorIs(t, err, shared.ErrLevelNotFound)

	highest, ok, err := repo.HighestHeld(ctx, "ana")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "l1", highest.ID)

	holders, err := repo.Holders(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ana"}, holders)

	removed, err := repo.Remove(ctx, "ana", "l1")
	require.NoError(t, err)
	assert.True(t, removed)
	_, ok, err = repo.HighestHeld(ctx, "ana")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err = repo.Remove(ctx, "ana", "l1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestBadges_NameUniqueAndGrantRevoke(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	repo := s.Badges()

	require.NoError(t, repo.Create(ctx, badge.Badge{ID: "b1", Name: "Racha"}))
	assert.ErrorIs(t, repo.Create(ctx, badge.Badge{ID: "b2", Name: "racha"}), shared.ErrDuplicateBadgeName)

	granted, err := repo.Grant(ctx, badge.StudentBadge{StudentID: "ana", BadgeID: "b1", GrantedAt: now, Source: shared.SourceManual, Reason: "great week"})
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = repo.Grant(ctx, badge.StudentBadge{StudentID: "ana", BadgeID: "b1", GrantedAt: now})
	require.NoError(t, err)
	assert.False(t, granted)

	held, err := repo.Held(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "great week", held[0].Reason)

	revoked, err := repo.Revoke(ctx, "ana", "b1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = repo.Revoke(ctx, "ana", "b1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestLocker_SerializesPerStudent(t *testing.T) {
	s := seeded(t)
	locker := s.Locker()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locker.WithStudentLock(context.Background(), "ana", func(context.Context) error {
				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocker_HonoursCancellation(t *testing.T) {
	s := seeded(t)
	locker := s.Locker()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithStudentLock(context.Background(), "ana", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := locker.WithStudentLock(ctx, "ana", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)

	require.NoError(t, locker.WithStudentLock(context.Background(), "ben", func(context.Context) error { return nil }))
}
