package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
)

// DirectoryRepository implements student.Directory over the users table.
type DirectoryRepository struct {
	conn *Connection
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(conn *Connection) *DirectoryRepository {
	return &DirectoryRepository{conn: conn}
}

// IsStudent reports whether the account exists with the student role.
func (r *DirectoryRepository) IsStudent(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND role = 'student')`, id,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check student: %w", err)
	}
	return ok, nil
}

// RoleOf returns the role of an account.
func (r *DirectoryRepository) RoleOf(ctx context.Context, id string) (student.Role, error) {
	p, err := r.Profile(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

// Profile returns the account's profile.
func (r *DirectoryRepository) Profile(ctx context.Context, id string) (student.Profile, error) {
	var (
		p    student.Profile
		role string
	)
	err := r.conn.QueryRow(ctx,
		`SELECT id, display_name, role, created_at FROM users WHERE id = $1`, id,
	).Scan(&p.ID, &p.DisplayName, &role, &p.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return student.Profile{}, shared.ErrStudentNotFound
		}
		return student.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	p.Role = student.Role(role)
	return p, nil
}

// ListStudentIDs returns the ids of every student account.
func (r *DirectoryRepository) ListStudentIDs(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT id FROM users WHERE role = 'student' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Upsert creates or updates an account. The directory is owned by the
// identity system; this is used when mirroring accounts into the engine.
func (r *DirectoryRepository) Upsert(ctx context.Context, p student.Profile) error {
	if !p.Role.IsValid() {
		return shared.Invalid(shared.ErrMissingField, "UpsertAccount", "role is invalid")
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO users (id, display_name, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, role = EXCLUDED.role
	`, p.ID, p.DisplayName, string(p.Role), createdAt)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}
