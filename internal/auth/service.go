package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenService
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenService) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Authenticate validates email/password credentials and issues a token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, string, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, "", shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", shared.ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}
