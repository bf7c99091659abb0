package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/schoolplay/progression/internal/domain/badge"
	"github.com/schoolplay/progression/internal/domain/shared"
)

// BadgeRepository implements badge.Repository. Criteria are stored in their
// serialized form and parsed on read.
type BadgeRepository struct {
	conn *Connection
}

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

const badgeSelect = `id::TEXT, name, description, criterion, created_at, updated_at`

func scanBadge(row pgx.Row) (badge.Badge, error) {
	var (
		b   badge.Badge
		raw string
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &raw, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return badge.Badge{}, err
	}
	crit, err := badge.ParseCriterion(raw)
	if err != nil {
		return badge.Badge{}, fmt.Errorf("badge %s has stored criterion %q: %w", b.ID, raw, err)
	}
	b.Criterion = crit
	return b, nil
}

func badgeWriteError(err error) error {
	if IsUniqueViolation(err) && constraintOf(err) == "badges_name_key" {
		return shared.ErrDuplicateBadgeName
	}
	return fmt.Errorf("write badge: %w", err)
}

// Create inserts a badge.
func (r *BadgeRepository) Create(ctx context.Context, b badge.Badge) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO badges (id, name, description, criterion, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.Name, b.Description, b.Criterion.String(), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return badgeWriteError(err)
	}
	return nil
}

// Update replaces a badge's definition.
func (r *BadgeRepository) Update(ctx context.Context, b badge.Badge) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE badges
		SET name = $2, description = $3, criterion = $4, updated_at = $5
		WHERE id = $1
	`, b.ID, b.Name, b.Description, b.Criterion.String(), b.UpdatedAt)
	if err != nil {
		return badgeWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrBadgeNotFound
	}
	return nil
}

// Get returns a badge by id.
func (r *BadgeRepository) Get(ctx context.Context, id string) (badge.Badge, error) {
	b, err := scanBadge(r.conn.QueryRow(ctx, `SELECT `+badgeSelect+` FROM badges WHERE id::TEXT = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return badge.Badge{}, shared.ErrBadgeNotFound
		}
		return badge.Badge{}, fmt.Errorf("get badge: %w", err)
	}
	return b, nil
}

// List returns all badges by name.
func (r *BadgeRepository) List(ctx context.Context) ([]badge.Badge, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+badgeSelect+` FROM badges ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var out []badge.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Held returns every badge membership of the student.
func (r *BadgeRepository) Held(ctx context.Context, studentID string) ([]badge.StudentBadge, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT student_id, badge_id::TEXT, granted_at, source, reason
		FROM student_badges
		WHERE student_id = $1
		ORDER BY granted_at
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("held badges: %w", err)
	}
	defer rows.Close()

	var out []badge.StudentBadge
	for rows.Next() {
		var (
			m      badge.StudentBadge
			source string
		)
		if err := rows.Scan(&m.StudentID, &m.BadgeID, &m.GrantedAt, &source, &m.Reason); err != nil {
			return nil, fmt.Errorf("scan student badge: %w", err)
		}
		m.Source = shared.Source(source)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Grant inserts a membership. It reports false when it already existed.
func (r *BadgeRepository) Grant(ctx context.Context, m badge.StudentBadge) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO student_badges (student_id, badge_id, granted_at, source, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, badge_id) DO NOTHING
	`, m.StudentID, m.BadgeID, m.GrantedAt, string(m.Source), m.Reason)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, shared.ErrBadgeNotFound
		}
		return false, fmt.Errorf("grant badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Revoke deletes a membership. It reports false when none existed.
func (r *BadgeRepository) Revoke(ctx context.Context, studentID, badgeID string) (bool, error) {
	tag, err := r.conn.Exec(ctx,
		`DELETE FROM student_badges WHERE student_id = $1 AND badge_id::TEXT = $2`,
		studentID, badgeID,
	)
	if err != nil {
		return false, fmt.Errorf("revoke badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Holders returns the ids of students holding the badge.
func (r *BadgeRepository) Holders(ctx context.Context, badgeID string) ([]string, error) {
	return queryIDs(ctx, r.conn,
		`SELECT student_id FROM student_badges WHERE badge_id::TEXT = $1 ORDER BY student_id`, badgeID)
}
