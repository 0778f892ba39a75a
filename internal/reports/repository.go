package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the report queries. Reports are read-only aggregates, so
// everything goes straight to the pool without a transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ValuationByCategory sums quantity * unit_price per category over active
// products with stock on hand.
func (r *Repository) ValuationByCategory(ctx context.Context) ([]CategoryValuation, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, COUNT(p.id), COALESCE(SUM(p.quantity * p.unit_price), 0)
FROM categories c
JOIN products p ON p.category_id = c.id
WHERE p.is_active AND p.quantity > 0
GROUP BY c.id, c.name
ORDER BY SUM(p.quantity * p.unit_price) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryValuation
	for rows.Next() {
		var v CategoryValuation
		if err := rows.Scan(&v.CategoryID, &v.CategoryName, &v.ProductCount, &v.TotalValue); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type turnoverRow struct {
	ProductID    int64
	ProductName  string
	Reference    string
	CurrentStock int64
	QuantityOut  int64
}

// OutboundByProduct returns, for every active product, the quantity that
// left the stock through fulfilled requests inside the window.
func (r *Repository) OutboundByProduct(ctx context.Context, from, to time.Time) ([]turnoverRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.reference, p.quantity,
COALESCE(SUM(m.quantity) FILTER (WHERE m.id IS NOT NULL), 0)
FROM products p
LEFT JOIN stock_movements m ON m.product_id = p.id
	AND m.type = 'SORTIE' AND m.source = 'REQUEST'
	AND m.created_at >= $1 AND m.created_at <= $2
WHERE p.is_active
GROUP BY p.id, p.name, p.reference, p.quantity
ORDER BY p.name`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []turnoverRow
	for rows.Next() {
		var row turnoverRow
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.Reference, &row.CurrentStock, &row.QuantityOut); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DashboardCounts gathers the landing-page aggregates in one round trip.
func (r *Repository) DashboardCounts(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats
	err := r.pool.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM products WHERE is_active AND quantity < alert_threshold),
  (SELECT COUNT(*) FROM requests WHERE status = 'TRANSMISE'),
  (SELECT COALESCE(SUM(quantity), 0) FROM products WHERE is_active)`).
		Scan(&stats.LowStock, &stats.PendingApprovals, &stats.TotalItems)
	return stats, err
}
