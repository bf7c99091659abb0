package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolplay/progression/internal/domain/metrics"
)

// ActivityRepository implements metrics.ActivityStore over the plays and
// usage_logs tables.
type ActivityRepository struct {
	conn *Connection
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(conn *Connection) *ActivityRepository {
	return &ActivityRepository{conn: conn}
}

// PlayStats aggregates every play of the student.
func (r *ActivityRepository) PlayStats(ctx context.Context, studentID string) (metrics.PlayStats, error) {
	var st metrics.PlayStats
	err := r.conn.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE completed),
			COALESCE(AVG(score), 0),
			COALESCE(MAX(score), 0)
		FROM plays
		WHERE student_id = $1
	`, studentID).Scan(&st.Total, &st.Completed, &st.AvgScore, &st.BestScore)
	if err != nil {
		return metrics.PlayStats{}, fmt.Errorf("play stats: %w", err)
	}
	return st, nil
}

// UsageStats aggregates every usage log of the student.
func (r *ActivityRepository) UsageStats(ctx context.Context, studentID string) (metrics.UsageStats, error) {
	var st metrics.UsageStats
	err := r.conn.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE completed),
			COALESCE(SUM(minutes), 0)
		FROM usage_logs
		WHERE student_id = $1
	`, studentID).Scan(&st.ActivitiesCompleted, &st.TotalMinutes)
	if err != nil {
		return metrics.UsageStats{}, fmt.Errorf("usage stats: %w", err)
	}
	return st, nil
}

// ActivityTimes returns play and usage timestamps at or after since.
func (r *ActivityRepository) ActivityTimes(ctx context.Context, studentID string, since time.Time) ([]time.Time, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT played_at FROM plays WHERE student_id = $1 AND played_at >= $2
		UNION ALL
		SELECT logged_at FROM usage_logs WHERE student_id = $1 AND logged_at >= $2
	`, studentID, since)
	if err != nil {
		return nil, fmt.Errorf("activity times: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan activity time: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
