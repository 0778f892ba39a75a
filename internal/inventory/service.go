package inventory

import (
	"context"
	"fmt"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Service serves read access to the stock ledger. Writes go through Ledger
// inside the owning lifecycle's transaction.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Movements(ctx context.Context, principal shared.Principal, filter MovementFilter) ([]Movement, error) {
	if !principal.Role.Valid() {
		return nil, fmt.Errorf("movements: %w", shared.ErrForbidden)
	}
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) LowStock(ctx context.Context, principal shared.Principal) ([]LowStockProduct, error) {
	if !principal.Role.Valid() {
		return nil, fmt.Errorf("low stock: %w", shared.ErrForbidden)
	}
	return s.repo.ListLowStock(ctx)
}
