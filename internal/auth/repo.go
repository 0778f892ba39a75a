package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Repository loads user accounts.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	ListIDsByRole(ctx context.Context, role shared.Role) ([]int64, error)
}

// PGRepository is the pgx-backed Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, name, department, role, password_hash, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Department, &role, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	u.Role = shared.Role(role)
	return &u, nil
}

// FindByEmail loads a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

// FindByID loads a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

// ListIDsByRole returns the ids of active users holding the role. Used for
// notification fan-out to a counterpart role.
func (r *PGRepository) ListIDsByRole(ctx context.Context, role shared.Role) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE role=$1 AND is_active`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
