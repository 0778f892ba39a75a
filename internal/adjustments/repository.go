package adjustments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockflow-erp/stockflow/internal/inventory"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Repository provides PostgreSQL backed persistence for stock adjustments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	Tx() pgx.Tx
	Insert(ctx context.Context, adj Adjustment) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Adjustment, error)
	Decide(ctx context.Context, id int64, status Status, deciderID int64, at time.Time) error
	ProductQuantity(ctx context.Context, productID int64) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) Tx() pgx.Tx { return r.tx }

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const adjustmentColumns = `a.id, a.product_id, p.name, a.type, a.quantity, a.reason, a.status,
a.audit_id, a.requested_by, a.decided_by, a.decided_at, a.created_at`

func scanAdjustment(row pgx.Row) (Adjustment, error) {
	var adj Adjustment
	var mvType, status string
	err := row.Scan(&adj.ID, &adj.ProductID, &adj.ProductName, &mvType, &adj.Quantity, &adj.Reason, &status,
		&adj.AuditID, &adj.RequestedBy, &adj.DecidedBy, &adj.DecidedAt, &adj.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, fmt.Errorf("adjustment: %w", shared.ErrNotFound)
		}
		return Adjustment{}, err
	}
	adj.Type = inventory.MovementType(mvType)
	adj.Status = Status(status)
	return adj, nil
}

type rowQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAdjustment(ctx context.Context, q rowQueryer, adj Adjustment) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO stock_adjustments
(product_id, type, quantity, reason, status, audit_id, requested_by, decided_by, decided_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()) RETURNING id`,
		adj.ProductID, string(adj.Type), adj.Quantity, adj.Reason, string(adj.Status),
		adj.AuditID, adj.RequestedBy, adj.DecidedBy, adj.DecidedAt).Scan(&id)
	return id, err
}

// Get returns one adjustment.
func (r *Repository) Get(ctx context.Context, id int64) (Adjustment, error) {
	return scanAdjustment(r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+`
FROM stock_adjustments a JOIN products p ON p.id = a.product_id WHERE a.id = $1`, id))
}

// List returns adjustments matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Adjustment, int64, error) {
	var (
		conds []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		conds = append(conds, "a.status = ANY($"+strconv.Itoa(len(args))+")")
	}
	if filter.AuditID != nil {
		args = append(args, *filter.AuditID)
		conds = append(conds, "a.audit_id = $"+strconv.Itoa(len(args)))
	}
	if filter.RequestedBy != 0 {
		args = append(args, filter.RequestedBy)
		conds = append(conds, "a.requested_by = $"+strconv.Itoa(len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM stock_adjustments a"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("adjustments: count: %w", err)
	}

	args = append(args, filter.Pagination.PerPage, filter.Pagination.Offset())
	query := "SELECT " + adjustmentColumns + " FROM stock_adjustments a JOIN products p ON p.id = a.product_id" + where +
		" ORDER BY a.created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("adjustments: list: %w", err)
	}
	defer rows.Close()

	var out []Adjustment
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, adj)
	}
	return out, total, rows.Err()
}

// OpenCount returns the number of adjustments still awaiting a decision
// for the given audit.
func (r *Repository) OpenCount(ctx context.Context, auditID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_adjustments
WHERE audit_id = $1 AND status = $2`, auditID, string(StatusPending)).Scan(&count)
	return count, err
}

func (r *txRepo) Insert(ctx context.Context, adj Adjustment) (int64, error) {
	return insertAdjustment(ctx, r.tx, adj)
}

func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (Adjustment, error) {
	return scanAdjustment(r.tx.QueryRow(ctx, `SELECT `+adjustmentColumns+`
FROM stock_adjustments a JOIN products p ON p.id = a.product_id WHERE a.id = $1 FOR UPDATE OF a`, id))
}

func (r *txRepo) Decide(ctx context.Context, id int64, status Status, deciderID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_adjustments SET status = $2, decided_by = $3, decided_at = $4
WHERE id = $1`, id, string(status), deciderID, at)
	return err
}

// ProductQuantity locks the product row and returns its on-hand quantity.
func (r *txRepo) ProductQuantity(ctx context.Context, productID int64) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `SELECT quantity FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("product %d: %w", productID, shared.ErrNotFound)
	}
	return qty, err
}
