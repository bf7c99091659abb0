package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/schoolplay/progression/internal/domain/ranking"
)

// RankingRepository implements ranking.Repository. Standings are computed
// from point_transactions; ranking_entries is only a cache.
type RankingRepository struct {
	conn *Connection
}

// NewRankingRepository creates a new RankingRepository.
func NewRankingRepository(conn *Connection) *RankingRepository {
	return &RankingRepository{conn: conn}
}

// studentTotals lists every student with its ledger total. Students without
// transactions have a total of 0.
const studentTotals = `
	SELECT u.id AS student_id, u.display_name, COALESCE(SUM(t.amount), 0)::BIGINT AS total
	FROM users u
	LEFT JOIN point_transactions t ON t.student_id = u.id
	WHERE u.role = 'student'
	GROUP BY u.id, u.display_name
`

// CountAbove counts students whose total is strictly greater than total.
func (r *RankingRepository) CountAbove(ctx context.Context, total int64) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx,
		`WITH totals AS (`+studentTotals+`) SELECT COUNT(*) FROM totals WHERE total > $1`,
		total,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count students above: %w", err)
	}
	return n, nil
}

// Totals returns the total of every student.
func (r *RankingRepository) Totals(ctx context.Context) (map[string]int64, error) {
	rows, err := r.conn.Query(ctx, `WITH totals AS (`+studentTotals+`) SELECT student_id, total FROM totals`)
	if err != nil {
		return nil, fmt.Errorf("student totals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			id    string
			total int64
		)
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		out[id] = total
	}
	return out, rows.Err()
}

// Get returns the stored entry of a student.
func (r *RankingRepository) Get(ctx context.Context, studentID string) (ranking.Entry, bool, error) {
	var (
		e   ranking.Entry
		pos int
	)
	err := r.conn.QueryRow(ctx, `
		SELECT student_id, position, total_points, computed_at
		FROM ranking_entries
		WHERE student_id = $1
	`, studentID).Scan(&e.StudentID, &pos, &e.TotalPoints, &e.ComputedAt)
	if err != nil {
		if IsNoRows(err) {
			return ranking.Entry{}, false, nil
		}
		return ranking.Entry{}, false, fmt.Errorf("get ranking entry: %w", err)
	}
	e.Position = ranking.Position(pos)
	return e, true, nil
}

const upsertEntry = `
	INSERT INTO ranking_entries (student_id, position, total_points, computed_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (student_id) DO UPDATE
	SET position = EXCLUDED.position,
	    total_points = EXCLUDED.total_points,
	    computed_at = EXCLUDED.computed_at
`

// Upsert stores entries in one transaction.
func (r *RankingRepository) Upsert(ctx context.Context, entries ...ranking.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) == 1 {
		e := entries[0]
		if _, err := r.conn.Exec(ctx, upsertEntry, e.StudentID, int(e.Position), e.TotalPoints, e.ComputedAt); err != nil {
			return fmt.Errorf("upsert ranking entry: %w", err)
		}
		return nil
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(upsertEntry, e.StudentID, int(e.Position), e.TotalPoints, e.ComputedAt)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range entries {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("upsert ranking entry: %w", err)
			}
		}
		return nil
	})
}

// Leaderboard returns a page of rows ordered by total, with tied totals
// sharing a position.
func (r *RankingRepository) Leaderboard(ctx context.Context, opts ranking.QueryOptions) ([]ranking.Row, int, error) {
	var count int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = 'student'`).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	rows, err := r.conn.Query(ctx, `
		WITH totals AS (`+studentTotals+`)
		SELECT
			RANK() OVER (ORDER BY t.total DESC) AS position,
			t.student_id,
			t.display_name,
			t.total,
			COALESCE((
				SELECT l.name
				FROM student_levels sl
				JOIN levels l ON l.id = sl.level_id
				WHERE sl.student_id = t.student_id
				ORDER BY l.points_required DESC
				LIMIT 1
			), '') AS level_name,
			(SELECT COUNT(*) FROM student_badges sb WHERE sb.student_id = t.student_id) AS badge_count
		FROM totals t
		ORDER BY t.total DESC, t.display_name, t.student_id
		OFFSET $1 LIMIT $2
	`, opts.Offset(), opts.Limit())
	if err != nil {
		return nil, 0, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var out []ranking.Row
	for rows.Next() {
		var (
			row ranking.Row
			pos int64
		)
		if err := rows.Scan(&pos, &row.StudentID, &row.DisplayName, &row.TotalPoints, &row.LevelName, &row.BadgeCount); err != nil {
			return nil, 0, fmt.Errorf("scan leaderboard row: %w", err)
		}
		row.Position = ranking.Position(pos)
		out = append(out, row)
	}
	return out, count, rows.Err()
}
