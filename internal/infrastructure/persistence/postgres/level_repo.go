package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/schoolplay/progression/internal/domain/level"
	"github.com/schoolplay/progression/internal/domain/shared"
)

// LevelRepository implements level.Repository.
type LevelRepository struct {
	conn *Connection
}

// NewLevelRepository creates a new LevelRepository.
func NewLevelRepository(conn *Connection) *LevelRepository {
	return &LevelRepository{conn: conn}
}

const (
	levelColumns = `id, name, description, points_required, difficulty_tag, created_at, updated_at`
	levelSelect  = `id::TEXT, name, description, points_required, difficulty_tag, created_at, updated_at`
)

func scanLevel(row pgx.Row) (level.Level, error) {
	var l level.Level
	err := row.Scan(&l.ID, &l.Name, &l.Description, &l.PointsRequired, &l.DifficultyTag, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func levelWriteError(err error) error {
	if IsUniqueViolation(err) && constraintOf(err) == "levels_points_required_key" {
		return shared.ErrDuplicateThreshold
	}
	return fmt.Errorf("write level: %w", err)
}

// Create inserts a level.
func (r *LevelRepository) Create(ctx context.Context, l level.Level) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO levels (`+levelColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, l.ID, l.Name, l.Description, l.PointsRequired, l.DifficultyTag, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return levelWriteError(err)
	}
	return nil
}

// Update replaces a level's definition.
func (r *LevelRepository) Update(ctx context.Context, l level.Level) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE levels
		SET name = $2, description = $3, points_required = $4, difficulty_tag = $5, updated_at = $6
		WHERE id = $1
	`, l.ID, l.Name, l.Description, l.PointsRequired, l.DifficultyTag, l.UpdatedAt)
	if err != nil {
		return levelWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrLevelNotFound
	}
	return nil
}

// Get returns a level by id.
func (r *LevelRepository) Get(ctx context.Context, id string) (level.Level, error) {
	l, err := scanLevel(r.conn.QueryRow(ctx, `SELECT `+levelSelect+` FROM levels WHERE id::TEXT = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return level.Level{}, shared.ErrLevelNotFound
		}
		return level.Level{}, fmt.Errorf("get level: %w", err)
	}
	return l, nil
}

// List returns all levels by ascending threshold.
func (r *LevelRepository) List(ctx context.Context) ([]level.Level, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+levelSelect+` FROM levels ORDER BY points_required`)
	if err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	defer rows.Close()

	var out []level.Level
	for rows.Next() {
		l, err := scanLevel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// HighestHeld returns the held level with the largest threshold.
func (r *LevelRepository) HighestHeld(ctx context.Context, studentID string) (level.Level, bool, error) {
	l, err := scanLevel(r.conn.QueryRow(ctx, `
		SELECT l.id::TEXT, l.name, l.description, l.points_required, l.difficulty_tag, l.created_at, l.updated_at
		FROM student_levels sl
		JOIN levels l ON l.id = sl.level_id
		WHERE sl.student_id = $1
		ORDER BY l.points_required DESC
		LIMIT 1
	`, studentID))
	if err != nil {
		if IsNoRows(err) {
			return level.Level{}, false, nil
		}
		return level.Level{}, false, fmt.Errorf("highest held level: %w", err)
	}
	return l, true, nil
}

// Held returns every membership of the student.
func (r *LevelRepository) Held(ctx context.Context, studentID string) ([]level.StudentLevel, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT student_id, level_id::TEXT, earned_at, source
		FROM student_levels
		WHERE student_id = $1
		ORDER BY earned_at
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("held levels: %w", err)
	}
	defer rows.Close()

	var out []level.StudentLevel
	for rows.Next() {
		var (
			m      level.StudentLevel
			source string
		)
		if err := rows.Scan(&m.StudentID, &m.LevelID, &m.EarnedAt, &source); err != nil {
			return nil, fmt.Errorf("scan student level: %w", err)
		}
		m.Source = shared.Source(source)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Assign inserts a membership. It reports false when it already existed.
func (r *LevelRepository) Assign(ctx context.Context, m level.StudentLevel) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO student_levels (student_id, level_id, earned_at, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, level_id) DO NOTHING
	`, m.StudentID, m.LevelID, m.EarnedAt, string(m.Source))
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, shared.ErrLevelNotFound
		}
		return false, fmt.Errorf("assign level: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Remove deletes a membership if present.
func (r *LevelRepository) Remove(ctx context.Context, studentID, levelID string) (bool, error) {
	tag, err := r.conn.Exec(ctx,
		`DELETE FROM student_levels WHERE student_id = $1 AND level_id::TEXT = $2`,
		studentID, levelID,
	)
	if err != nil {
		return false, fmt.Errorf("remove level: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Holders returns the ids of students holding the level.
func (r *LevelRepository) Holders(ctx context.Context, levelID string) ([]string, error) {
	return queryIDs(ctx, r.conn,
		`SELECT student_id FROM student_levels WHERE level_id::TEXT = $1 ORDER BY student_id`, levelID)
}

func queryIDs(ctx context.Context, q Querier, sql string, args ...any) ([]string, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
