package reports

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

type fakeRepo struct {
	categories []CategoryValuation
	turnover   []turnoverRow
	stats      DashboardStats
}

func (r *fakeRepo) ValuationByCategory(context.Context) ([]CategoryValuation, error) {
	return r.categories, nil
}

func (r *fakeRepo) OutboundByProduct(context.Context, time.Time, time.Time) ([]turnoverRow, error) {
	return r.turnover, nil
}

func (r *fakeRepo) DashboardCounts(context.Context) (DashboardStats, error) {
	return r.stats, nil
}

var (
	observer  = shared.Principal{UserID: 40, Name: "Olivia Observe", Role: shared.RoleObserver}
	requester = shared.Principal{UserID: 10, Name: "Rachid Chef", Role: shared.RoleRequester}
)

func TestValuationSumsCategories(t *testing.T) {
	svc := NewService(&fakeRepo{categories: []CategoryValuation{
		{CategoryID: 1, CategoryName: "Informatique", ProductCount: 3, TotalValue: decimal.NewFromInt(2500)},
		{CategoryID: 2, CategoryName: "Fournitures", ProductCount: 5, TotalValue: decimal.RequireFromString("749.50")},
	}})

	report, err := svc.Valuation(context.Background(), observer)
	require.NoError(t, err)
	require.Len(t, report.Categories, 2)
	require.Equal(t, "3249.50", report.TotalValue.StringFixed(2))
}

func TestValuationRoleGate(t *testing.T) {
	svc := NewService(&fakeRepo{})
	_, err := svc.Valuation(context.Background(), requester)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestTurnoverRate(t *testing.T) {
	svc := NewService(&fakeRepo{turnover: []turnoverRow{
		{ProductID: 1, ProductName: "Clavier", Reference: "CLA-01", CurrentStock: 10, QuantityOut: 5},
		{ProductID: 2, ProductName: "Souris", Reference: "SOU-01", CurrentStock: 0, QuantityOut: 4},
	}})

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	report, err := svc.Turnover(context.Background(), observer, from, to)
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	require.InDelta(t, 0.5, report.Items[0].TurnoverRate, 0.001)
	require.Zero(t, report.Items[1].TurnoverRate, "empty stock reports a zero rate")
}

func TestTurnoverWindowValidation(t *testing.T) {
	svc := NewService(&fakeRepo{})
	now := time.Now()
	_, err := svc.Turnover(context.Background(), observer, now, now.Add(-time.Hour))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestValuationCSVLayout(t *testing.T) {
	report := Valuation{
		GeneratedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Categories: []CategoryValuation{
			{CategoryName: "Informatique", ProductCount: 3, TotalValue: decimal.NewFromInt(2500)},
		},
		TotalValue: decimal.NewFromInt(2500),
	}

	var sb strings.Builder
	require.NoError(t, WriteValuationCSV(&sb, report))
	out := sb.String()

	require.True(t, strings.HasPrefix(out, "# Report: Stock Valuation"))
	require.Contains(t, out, "Category,Products,Total Value")
	require.Contains(t, out, "Informatique,3,2500.00")
	require.Contains(t, out, "Total,,2500.00")
}

func TestDashboardOpenToEveryRole(t *testing.T) {
	svc := NewService(&fakeRepo{stats: DashboardStats{LowStock: 2, PendingApprovals: 4, TotalItems: 310}})

	stats, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.LowStock)
	require.EqualValues(t, 4, stats.PendingApprovals)
	require.EqualValues(t, 310, stats.TotalItems)
}
