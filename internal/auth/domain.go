package auth

import (
	"time"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// User represents an authenticated user account.
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
