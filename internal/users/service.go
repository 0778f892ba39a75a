package users

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Service owns account management. Creation, role changes and deactivation
// are admin operations; every authenticated user manages their own profile.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the account service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

const minPasswordLength = 8

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", shared.Validationf("password", "password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, principal shared.Principal, input CreateInput) (User, error) {
	if principal.Role != shared.RoleAdmin {
		return User{}, fmt.Errorf("create user: %w", shared.ErrForbidden)
	}
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return User{}, shared.Validationf("email", "a valid email address is required")
	}
	if input.Name == "" {
		return User{}, shared.Validationf("name", "name is required")
	}
	if !input.Role.Valid() {
		return User{}, shared.Validationf("role", "unknown role %q", string(input.Role))
	}
	hash, err := hashPassword(input.Password)
	if err != nil {
		return User{}, err
	}
	return s.repo.Insert(ctx, User{
		Email:        strings.ToLower(input.Email),
		Name:         input.Name,
		Department:   input.Department,
		Role:         input.Role,
		PasswordHash: hash,
		IsActive:     true,
	})
}

// List returns accounts matching the filter. Observer and storekeeper need
// the listing to attribute documents; requesters do not see it.
func (s *Service) List(ctx context.Context, principal shared.Principal, filter ListFilter) ([]User, error) {
	if !principal.HasRole(shared.RoleAdmin, shared.RoleObserver, shared.RoleStorekeeper) {
		return nil, fmt.Errorf("list users: %w", shared.ErrForbidden)
	}
	valid := filter.Roles[:0]
	for _, role := range filter.Roles {
		if role.Valid() {
			valid = append(valid, role)
		}
	}
	filter.Roles = valid
	return s.repo.List(ctx, filter)
}

// RequestCreators returns the active department heads, sorted by name.
// Approvers use it to filter the request queue by requester.
func (s *Service) RequestCreators(ctx context.Context, principal shared.Principal) ([]User, error) {
	if !principal.HasRole(shared.RoleAdmin, shared.RoleApprover, shared.RoleObserver, shared.RoleStorekeeper) {
		return nil, fmt.Errorf("list request creators: %w", shared.ErrForbidden)
	}
	heads, err := s.repo.List(ctx, ListFilter{Roles: []shared.Role{shared.RoleRequester}})
	if err != nil {
		return nil, err
	}
	active := heads[:0]
	for _, u := range heads {
		if u.IsActive {
			active = append(active, u)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Name < active[j].Name })
	return active, nil
}

// Get loads one account for the admin console.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (User, error) {
	if principal.Role != shared.RoleAdmin {
		return User{}, fmt.Errorf("get user: %w", shared.ErrForbidden)
	}
	return s.repo.Get(ctx, id)
}

// Update applies an admin edit. Unset fields keep their stored value.
func (s *Service) Update(ctx context.Context, principal shared.Principal, id int64, input UpdateInput) (User, error) {
	if principal.Role != shared.RoleAdmin {
		return User{}, fmt.Errorf("update user: %w", shared.ErrForbidden)
	}
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if input.Email != nil {
		if *input.Email == "" || !strings.Contains(*input.Email, "@") {
			return User{}, shared.Validationf("email", "a valid email address is required")
		}
		u.Email = strings.ToLower(*input.Email)
	}
	if input.Name != nil {
		if *input.Name == "" {
			return User{}, shared.Validationf("name", "name is required")
		}
		u.Name = *input.Name
	}
	if input.Department != nil {
		u.Department = *input.Department
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return User{}, shared.Validationf("role", "unknown role %q", string(*input.Role))
		}
		u.Role = *input.Role
	}
	if input.IsActive != nil {
		u.IsActive = *input.IsActive
	}
	if input.Password != nil {
		hash, err := hashPassword(*input.Password)
		if err != nil {
			return User{}, err
		}
		u.PasswordHash = hash
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Deactivate retires an account. Accounts are referenced by the documents
// they authored, so removal is a deactivation rather than a row delete.
func (s *Service) Deactivate(ctx context.Context, principal shared.Principal, id int64) error {
	if principal.Role != shared.RoleAdmin {
		return fmt.Errorf("deactivate user: %w", shared.ErrForbidden)
	}
	if id == principal.UserID {
		return shared.StateConflictf("an administrator cannot deactivate their own account")
	}
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !u.IsActive {
		return shared.StateConflictf("user %s is already deactivated", u.Email)
	}
	u.IsActive = false
	return s.repo.Update(ctx, u)
}

// Profile returns the caller's own account.
func (s *Service) Profile(ctx context.Context, principal shared.Principal) (User, error) {
	return s.repo.Get(ctx, principal.UserID)
}

// UpdateProfile applies a self-service edit. Role and password cannot be
// changed here; ChangePassword verifies the current password first.
func (s *Service) UpdateProfile(ctx context.Context, principal shared.Principal, input ProfileInput) (User, error) {
	u, err := s.repo.Get(ctx, principal.UserID)
	if err != nil {
		return User{}, err
	}
	if input.Email != nil {
		if *input.Email == "" || !strings.Contains(*input.Email, "@") {
			return User{}, shared.Validationf("email", "a valid email address is required")
		}
		u.Email = strings.ToLower(*input.Email)
	}
	if input.Name != nil {
		if *input.Name == "" {
			return User{}, shared.Validationf("name", "name is required")
		}
		u.Name = *input.Name
	}
	if input.Department != nil {
		u.Department = *input.Department
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// ChangePassword rotates the caller's password after checking the current
// one.
func (s *Service) ChangePassword(ctx context.Context, principal shared.Principal, current, next string) error {
	u, err := s.repo.Get(ctx, principal.UserID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return fmt.Errorf("change password: %w", shared.ErrInvalidCredentials)
	}
	hash, err := hashPassword(next)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return s.repo.Update(ctx, u)
}
