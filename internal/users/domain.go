package users

import (
	"time"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// User is one managed account. PasswordHash never leaves the package.
type User struct {
	ID           int64
	Email        string
	Name         string
	Department   string
	Role         shared.Role
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateInput is the admin creation payload.
type CreateInput struct {
	Email      string
	Name       string
	Department string
	Role       shared.Role
	Password   string
}

// UpdateInput carries the admin-editable fields. Nil pointers leave the
// stored value untouched; a non-nil Password is rehashed.
type UpdateInput struct {
	Email      *string
	Name       *string
	Department *string
	Role       *shared.Role
	IsActive   *bool
	Password   *string
}

// ProfileInput carries the self-service profile fields. Role and password
// are deliberately absent; password changes go through ChangePassword.
type ProfileInput struct {
	Email      *string
	Name       *string
	Department *string
}

// ListFilter narrows the account listing.
type ListFilter struct {
	Search string
	Roles  []shared.Role
}
