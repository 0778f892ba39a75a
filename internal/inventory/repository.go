package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the movement ledger and stock alerts.
type Repository interface {
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListLowStock(ctx context.Context) ([]LowStockProduct, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ProductID != nil {
		args = append(args, *filter.ProductID)
		conds = append(conds, "product_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, "type = $"+strconv.Itoa(len(args)))
	}
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		conds = append(conds, "source = $"+strconv.Itoa(len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, "created_at >= $"+strconv.Itoa(len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, "created_at <= $"+strconv.Itoa(len(args)))
	}

	query := "SELECT id, product_id, type, source, source_ref, quantity, actor_id, note, created_at FROM stock_movements"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	args = append(args, limit)
	query += " ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list movements: %w", err)
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Source, &m.SourceRef, &m.Quantity, &m.ActorID, &m.Note, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("inventory: scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *PGRepository) ListLowStock(ctx context.Context) ([]LowStockProduct, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, reference, quantity, alert_threshold
		FROM products
		WHERE is_active AND quantity <= alert_threshold
		ORDER BY quantity ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("inventory: list low stock: %w", err)
	}
	defer rows.Close()

	var out []LowStockProduct
	for rows.Next() {
		var p LowStockProduct
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Reference, &p.Quantity, &p.AlertThreshold); err != nil {
			return nil, fmt.Errorf("inventory: scan low stock: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
