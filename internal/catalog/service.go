package catalog

import (
	"context"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, error) {
	return s.repo.ListProducts(ctx, filters)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrNotFound
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, principal shared.Principal, product Product) (Product, error) {
	if !principal.HasRole(shared.RoleAdmin, shared.RoleStorekeeper) {
		return Product{}, shared.ErrForbidden
	}
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}
	return s.repo.CreateProduct(ctx, product)
}

func (s *Service) UpdateProduct(ctx context.Context, principal shared.Principal, id int64, product Product) error {
	if !principal.HasRole(shared.RoleAdmin, shared.RoleStorekeeper) {
		return shared.ErrForbidden
	}
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := validateProduct(product); err != nil {
		return err
	}
	return s.repo.UpdateProduct(ctx, id, product)
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, principal shared.Principal, category Category) (Category, error) {
	if !principal.HasRole(shared.RoleAdmin, shared.RoleStorekeeper) {
		return Category{}, shared.ErrForbidden
	}
	if category.Name == "" {
		return Category{}, shared.Validationf("name", "category name is required")
	}
	return s.repo.CreateCategory(ctx, category)
}

func validateProduct(product Product) error {
	if product.Name == "" {
		return shared.Validationf("name", "product name is required")
	}
	if product.Reference == "" {
		return shared.Validationf("reference", "product reference is required")
	}
	if product.UnitPrice.IsNegative() {
		return shared.Validationf("unitPrice", "unit price must be >= 0")
	}
	if product.Quantity < 0 {
		return shared.Validationf("quantity", "quantity must be >= 0")
	}
	return nil
}
