// Package memory provides an in-process implementation of every progression
// repository. It backs development mode without Postgres and the scenario
// tests of the application layer.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/schoolplay/progression/internal/domain/badge"
	"github.com/schoolplay/progression/internal/domain/ledger"
	"github.com/schoolplay/progression/internal/domain/level"
	"github.com/schoolplay/progression/internal/domain/metrics"
	"github.com/schoolplay/progression/internal/domain/ranking"
	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
)

// Play is one game session of a student.
type Play struct {
	StudentID string
	GameID    string
	Score     float64
	Completed bool
	PlayedAt  time.Time
}

// Usage is one activity usage-log record.
type Usage struct {
	StudentID  string
	ActivityID string
	Minutes    int64
	Completed  bool
	LoggedAt   time.Time
}

// Store holds all data behind a single lock.
type Store struct {
	mu sync.RWMutex

	accounts      map[string]student.Profile
	transactions  map[string][]ledger.PointTransaction
	plays         map[string][]Play
	usage         map[string][]Usage
	levels        map[string]level.Level
	studentLevels map[string]map[string]level.StudentLevel
	badges        map[string]badge.Badge
	studentBadges map[string]map[string]badge.StudentBadge
	entries       map[string]ranking.Entry

	locks *keyedMutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:      make(map[string]student.Profile),
		transactions:  make(map[string][]ledger.PointTransaction),
		plays:         make(map[string][]Play),
		usage:         make(map[string][]Usage),
		levels:        make(map[string]level.Level),
		studentLevels: make(map[string]map[string]level.StudentLevel),
		badges:        make(map[string]badge.Badge),
		studentBadges: make(map[string]map[string]badge.StudentBadge),
		entries:       make(map[string]ranking.Entry),
		locks:         newKeyedMutex(),
	}
}

// Accessors for the repository views.
func (s *Store) Directory() *Directory { return &Directory{s} }
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{s} }
func (s *Store) Activity() *ActivityRepo { return &ActivityRepo{s} }
func (s *Store) Levels() *LevelRepo { return &LevelRepo{s} }
func (s *Store) Badges() *BadgeRepo { return &BadgeRepo{s} }
func (s *Store) Ranking() *RankingRepo { return &RankingRepo{s} }
func (s *Store) Locker() *Locker { return &Locker{s.locks} }

// ═══════════════════════════════════════════════════════════════════════════
// Seeding
// ═══════════════════════════════════════════════════════════════════════════

// AddAccount registers an account.
func (s *Store) AddAccount(p student.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[p.ID] = p
}

// AddStudent registers a student created at createdAt.
func (s *Store) AddStudent(id, displayName string, createdAt time.Time) {
	s.AddAccount(student.Profile{ID: id, DisplayName: displayName, Role: student.RoleStudent, CreatedAt: createdAt})
}

// RecordPlay stores a play record.
func (s *Store) RecordPlay(p Play) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays[p.StudentID] = append(s.plays[p.StudentID], p)
}

// RecordUsage stores a usage-log record.
func (s *Store) RecordUsage(u Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[u.StudentID] = append(s.usage[u.StudentID], u)
}

func (s *Store) totalLocked(studentID string) int64 {
	return ledger.Sum(s.transactions[studentID])
}

func (s *Store) studentIDsLocked() []string {
	ids := make([]string, 0, len(s.accounts))
	for id, p := range s.accounts {
		if p.Role == student.RoleStudent {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ═══════════════════════════════════════════════════════════════════════════
// Directory
// ═══════════════════════════════════════════════════════════════════════════

// Directory implements student.Directory.
type Directory struct{ s *Store }

func (d *Directory) IsStudent(_ context.Context, id string) (bool, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	p, ok := d.s.accounts[id]
	return ok && p.Role == student.RoleStudent, nil
}

func (d *Directory) RoleOf(ctx context.Context, id string) (student.Role, error) {
	p, err := d.Profile(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

func (d *Directory) Profile(_ context.Context, id string) (student.Profile, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	p, ok := d.s.accounts[id]
	if !ok {
		return student.Profile{}, shared.ErrStudentNotFound
	}
	return p, nil
}

func (d *Directory) ListStudentIDs(context.Context) ([]string, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	return d.s.studentIDsLocked(), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger
// ═══════════════════════════════════════════════════════════════════════════

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct{ s *Store }

func (r *LedgerRepo) Append(_ context.Context, tx ledger.PointTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.transactions[tx.StudentID] = append(r.s.transactions[tx.StudentID], tx)
	return nil
}

func (r *LedgerRepo) SumFor(_ context.Context, studentID string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.totalLocked(studentID), nil
}

func (r *LedgerRepo) ListFor(_ context.Context, studentID string, limit int) ([]ledger.PointTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	txs := r.s.transactions[studentID]
	out := make([]ledger.PointTransaction, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		out = append(out, txs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *LedgerRepo) TransactionTimes(_ context.Context, studentID string, since time.Time) ([]time.Time, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []time.Time
	for _, tx := range r.s.transactions[studentID] {
		if !tx.OccurredAt.Before(since) {
			out = append(out, tx.OccurredAt)
		}
	}
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Activity
// ═══════════════════════════════════════════════════════════════════════════

// ActivityRepo implements metrics.ActivityStore.
type ActivityRepo struct{ s *Store }

func (r *ActivityRepo) PlayStats(_ context.Context, studentID string) (metrics.PlayStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var st metrics.PlayStats
	var sum float64
	for i, p := range r.s.plays[studentID] {
		st.Total++
		if p.Completed {
			st.Completed++
		}
		sum += p.Score
		if i == 0 || p.Score > st.BestScore {
			st.BestScore = p.Score
		}
	}
	if st.Total > 0 {
		st.AvgScore = sum / float64(st.Total)
	}
	return st, nil
}

func (r *ActivityRepo) UsageStats(_ context.Context, studentID string) (metrics.UsageStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var st metrics.UsageStats
	for _, u := range r.s.usage[studentID] {
		st.TotalMinutes += u.Minutes
		if u.Completed {
			st.ActivitiesCompleted++
		}
	}
	return st, nil
}

func (r *ActivityRepo) ActivityTimes(_ context.Context, studentID string, since time.Time) ([]time.Time, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []time.Time
	for _, p := range r.s.plays[studentID] {
		if !p.PlayedAt.Before(since) {
			out = append(out, p.PlayedAt)
		}
	}
	for _, u := range r.s.usage[studentID] {
		if !u.LoggedAt.Before(since) {
			out = append(out, u.LoggedAt)
		}
	}
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Levels
// ═══════════════════════════════════════════════════════════════════════════

// LevelRepo implements level.Repository.
type LevelRepo struct{ s *Store }

func (r *LevelRepo) thresholdTakenLocked(l level.Level) bool {
	for _, other := range r.s.levels {
		if other.ID != l.ID && other.PointsRequired == l.PointsRequired {
			return true
		}
	}
	return false
}

func (r *LevelRepo) Create(_ context.Context, l level.Level) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.thresholdTakenLocked(l) {
		return shared.ErrDuplicateThreshold
	}
	r.s.levels[l.ID] = l
	return nil
}

func (r *LevelRepo) Update(_ context.Context, l level.Level) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.levels[l.ID]; !ok {
		return shared.ErrLevelNotFound
	}
	if r.thresholdTakenLocked(l) {
		return shared.ErrDuplicateThreshold
	}
	r.s.levels[l.ID] = l
	return nil
}

func (r *LevelRepo) Get(_ context.Context, id string) (level.Level, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.levels[id]
	if !ok {
		return level.Level{}, shared.ErrLevelNotFound
	}
	return l, nil
}

func (r *LevelRepo) listLocked() []level.Level {
	out := make([]level.Level, 0, len(r.s.levels))
	for _, l := range r.s.levels {
		out = append(out, l)
	}
	level.SortByThreshold(out)
	return out
}

func (r *LevelRepo) List(context.Context) ([]level.Level, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.listLocked(), nil
}

func (r *LevelRepo) highestLocked(studentID string) (level.Level, bool) {
	var (
		best  level.Level
		found bool
	)
	for levelID := range r.s.studentLevels[studentID] {
		l, ok := r.s.levels[levelID]
		if !ok {
			continue
		}
		if !found || l.PointsRequired > best.PointsRequired {
			best, found = l, true
		}
	}
	return best, found
}

func (r *LevelRepo) HighestHeld(_ context.Context, studentID string) (level.Level, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.highestLocked(studentID)
	return l, ok, nil
}

func (r *LevelRepo) Held(_ context.Context, studentID string) ([]level.StudentLevel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]level.StudentLevel, 0, len(r.s.studentLevels[studentID]))
	for _, m := range r.s.studentLevels[studentID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LevelID < out[j].LevelID })
	return out, nil
}

func (r *LevelRepo) Assign(_ context.Context, m level.StudentLevel) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.levels[m.LevelID]; !ok {
		return false, shared.ErrLevelNotFound
	}
	held := r.s.studentLevels[m.StudentID]
	if held == nil {
		held = make(map[string]level.StudentLevel)
		r.s.studentLevels[m.StudentID] = held
	}
	if _, ok := held[m.LevelID]; ok {
		return false, nil
	}
	held[m.LevelID] = m
	return true, nil
}

func (r *LevelRepo) Remove(_ context.Context, studentID, levelID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	held := r.s.studentLevels[studentID]
	if _, ok := held[levelID]; !ok {
		return false, nil
	}
	delete(held, levelID)
	return true, nil
}

func (r *LevelRepo) Holders(_ context.Context, levelID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []string
	for sid, held := range r.s.studentLevels {
		if _, ok := held[levelID]; ok {
			out = append(out, sid)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Badges
// ═══════════════════════════════════════════════════════════════════════════

// BadgeRepo implements badge.Repository.
type BadgeRepo struct{ s *Store }

func (r *BadgeRepo) nameTakenLocked(b badge.Badge) bool {
	for _, other := range r.s.badges {
		if other.ID != b.ID && strings.EqualFold(other.Name, b.Name) {
			return true
		}
	}
	return false
}

func (r *BadgeRepo) Create(_ context.Context, b badge.Badge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.nameTakenLocked(b) {
		return shared.ErrDuplicateBadgeName
	}
	r.s.badges[b.ID] = b
	return nil
}

func (r *BadgeRepo) Update(_ context.Context, b badge.Badge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.badges[b.ID]; !ok {
		return shared.ErrBadgeNotFound
	}
	if r.nameTakenLocked(b) {
		return shared.ErrDuplicateBadgeName
	}
	r.s.badges[b.ID] = b
	return nil
}

func (r *BadgeRepo) Get(_ context.Context, id string) (badge.Badge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.badges[id]
	if !ok {
		return badge.Badge{}, shared.ErrBadgeNotFound
	}
	return b, nil
}

func (r *BadgeRepo) List(context.Context) ([]badge.Badge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]badge.Badge, 0, len(r.s.badges))
	for _, b := range r.s.badges {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *BadgeRepo) Held(_ context.Context, studentID string) ([]badge.StudentBadge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]badge.StudentBadge, 0, len(r.s.studentBadges[studentID]))
	for _, m := range r.s.studentBadges[studentID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })
	return out, nil
}

func (r *BadgeRepo) Grant(_ context.Context, m badge.StudentBadge) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.badges[m.BadgeID]; !ok {
		return false, shared.ErrBadgeNotFound
	}
	held := r.s.studentBadges[m.StudentID]
	if held == nil {
		held = make(map[string]badge.StudentBadge)
		r.s.studentBadges[m.StudentID] = held
	}
	if _, ok := held[m.BadgeID]; ok {
		return false, nil
	}
	held[m.BadgeID] = m
	return true, nil
}

func (r *BadgeRepo) Revoke(_ context.Context, studentID, badgeID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	held := r.s.studentBadges[studentID]
	if _, ok := held[badgeID]; !ok {
		return false, nil
	}
	delete(held, badgeID)
	return true, nil
}

func (r *BadgeRepo) Holders(_ context.Context, badgeID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []string
	for sid, held := range r.s.studentBadges {
		if _, ok := held[badgeID]; ok {
			out = append(out, sid)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Ranking
// ═══════════════════════════════════════════════════════════════════════════

// RankingRepo implements ranking.Repository.
type RankingRepo struct{ s *Store }

func (r *RankingRepo) CountAbove(_ context.Context, total int64) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, id := range r.s.studentIDsLocked() {
		if r.s.totalLocked(id) > total {
			n++
		}
	}
	return n, nil
}

func (r *RankingRepo) Totals(context.Context) (map[string]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]int64)
	for _, id := range r.s.studentIDsLocked() {
		out[id] = r.s.totalLocked(id)
	}
	return out, nil
}

func (r *RankingRepo) Get(_ context.Context, studentID string) (ranking.Entry, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.entries[studentID]
	return e, ok, nil
}

func (r *RankingRepo) Upsert(_ context.Context, entries ...ranking.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range entries {
		r.s.entries[e.StudentID] = e
	}
	return nil
}

func (r *RankingRepo) Leaderboard(_ context.Context, opts ranking.QueryOptions) ([]ranking.Row, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := r.s.studentIDsLocked()
	totals := make(map[string]int64, len(ids))
	for _, id := range ids {
		totals[id] = r.s.totalLocked(id)
	}
	positions := ranking.Positions(totals)
	levels := &LevelRepo{r.s}

	rows := make([]ranking.Row, 0, len(ids))
	for _, id := range ids {
		p := r.s.accounts[id]
		row := ranking.Row{
			Position:    positions[id],
			StudentID:   id,
			DisplayName: p.DisplayName,
			TotalPoints: totals[id],
			BadgeCount:  len(r.s.studentBadges[id]),
		}
		if l, ok := levels.highestLocked(id); ok {
			row.LevelName = l.Name
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalPoints != rows[j].TotalPoints {
			return rows[i].TotalPoints > rows[j].TotalPoints
		}
		if rows[i].DisplayName != rows[j].DisplayName {
			return rows[i].DisplayName < rows[j].DisplayName
		}
		return rows[i].StudentID < rows[j].StudentID
	})

	start := min(opts.Offset(), len(rows))
	end := min(start+opts.Limit(), len(rows))
	return rows[start:end], len(rows), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Locking
// ═══════════════════════════════════════════════════════════════════════════

// Locker implements student.Locker with one mutex per student.
type Locker struct{ m *keyedMutex }

// WithStudentLock runs fn while holding the student's mutex.
func (l *Locker) WithStudentLock(ctx context.Context, studentID string, fn func(ctx context.Context) error) error {
	if err := l.m.lock(ctx, studentID); err != nil {
		return err
	}
	defer l.m.unlock(studentID)
	return fn(ctx)
}

// keyedMutex hands out one channel-based lock per key and frees it when the
// last waiter leaves.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(key, l)
		return ctx.Err()
	}
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	l := k.locks[key]
	k.mu.Unlock()
	<-l.ch
	k.release(key, l)
}

func (k *keyedMutex) release(key string, l *refLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
