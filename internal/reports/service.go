package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// RepositoryPort describes report queries used by Service.
type RepositoryPort interface {
	ValuationByCategory(ctx context.Context) ([]CategoryValuation, error)
	OutboundByProduct(ctx context.Context, from, to time.Time) ([]turnoverRow, error)
	DashboardCounts(ctx context.Context) (DashboardStats, error)
}

// Service assembles read-only stock reports. Reports are visible to every
// authenticated role except department heads, who only see their own
// requests.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the report service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func (s *Service) authorize(principal shared.Principal, op string) error {
	if !principal.HasRole(shared.RoleAdmin, shared.RoleApprover, shared.RoleStorekeeper, shared.RoleObserver) {
		return fmt.Errorf("%s: %w", op, shared.ErrForbidden)
	}
	return nil
}

// Valuation computes the stock value per category and the grand total.
func (s *Service) Valuation(ctx context.Context, principal shared.Principal) (Valuation, error) {
	if err := s.authorize(principal, "stock valuation"); err != nil {
		return Valuation{}, err
	}

	categories, err := s.repo.ValuationByCategory(ctx)
	if err != nil {
		return Valuation{}, err
	}
	total := decimal.Zero
	for _, c := range categories {
		total = total.Add(c.TotalValue)
	}
	return Valuation{
		GeneratedAt: time.Now().UTC(),
		Categories:  categories,
		TotalValue:  total,
	}, nil
}

// Turnover computes the rotation rate of each product over the window:
// outbound request quantity divided by current stock. Products with no
// stock on hand report a zero rate.
func (s *Service) Turnover(ctx context.Context, principal shared.Principal, from, to time.Time) (Turnover, error) {
	if err := s.authorize(principal, "stock turnover"); err != nil {
		return Turnover{}, err
	}
	if to.Before(from) {
		return Turnover{}, shared.Validationf("to", "end date precedes start date")
	}

	rows, err := s.repo.OutboundByProduct(ctx, from, to)
	if err != nil {
		return Turnover{}, err
	}
	report := Turnover{GeneratedAt: time.Now().UTC(), From: from, To: to}
	for _, row := range rows {
		item := TurnoverItem{
			ProductID:    row.ProductID,
			ProductName:  row.ProductName,
			Reference:    row.Reference,
			CurrentStock: row.CurrentStock,
			QuantityOut:  row.QuantityOut,
		}
		if row.CurrentStock > 0 {
			item.TurnoverRate = float64(row.QuantityOut) / float64(row.CurrentStock)
		}
		report.Items = append(report.Items, item)
	}
	return report, nil
}

// Dashboard returns the landing-page counters. Unlike the full reports,
// every authenticated role sees them, department heads included.
func (s *Service) Dashboard(ctx context.Context) (DashboardStats, error) {
	return s.repo.DashboardCounts(ctx)
}
