package users

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// RepositoryPort describes account persistence used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, u User) (User, error)
	Update(ctx context.Context, u User) error
	Get(ctx context.Context, id int64) (User, error)
	List(ctx context.Context, filter ListFilter) ([]User, error)
}

// Repository is the pgx-backed account store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, email, name, department, role, password_hash, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Department, &role, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	u.Role = shared.Role(role)
	return u, nil
}

// Insert stores a new account. A duplicate email surfaces as a state
// conflict so the handler answers 409 instead of leaking the constraint.
func (r *Repository) Insert(ctx context.Context, u User) (User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, department, role, password_hash, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+accountColumns,
		u.Email, u.Name, u.Department, string(u.Role), u.PasswordHash, u.IsActive)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, shared.StateConflictf("email %s is already registered", u.Email)
		}
		return User{}, err
	}
	return created, nil
}

// Update rewrites the mutable columns of an account.
func (r *Repository) Update(ctx context.Context, u User) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users
SET email=$2, name=$3, department=$4, role=$5, password_hash=$6, is_active=$7, updated_at=now()
WHERE id=$1`,
		u.ID, u.Email, u.Name, u.Department, string(u.Role), u.PasswordHash, u.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.StateConflictf("email %s is already registered", u.Email)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Get loads one account by id.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id=$1`, id))
}

// List returns accounts matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]User, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE 1=1`
	args := []any{}
	argCount := 0

	if filter.Search != "" {
		argCount++
		query += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR email ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filter.Search+"%")
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			roles = append(roles, string(role))
		}
		argCount++
		query += ` AND role = ANY($` + strconv.Itoa(argCount) + `)`
		args = append(args, roles)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
