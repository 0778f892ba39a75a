package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Repository provides PostgreSQL backed persistence for purchase orders.
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
	InsertOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertItem(ctx context.Context, item PurchaseOrderItem) error
	DeleteItems(ctx context.Context, orderID int64) error
	GetForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	UpdateHeader(ctx context.Context, id int64, supplierName string, total decimal.Decimal) error
	SetApproval(ctx context.Context, id int64, approverID int64, at time.Time) error
	SetRevisionComment(ctx context.Context, id int64, comment string) error
	SetOrdered(ctx context.Context, id int64, at time.Time) error
	SetClosed(ctx context.Context, id int64, at time.Time) error
	DeleteOrder(ctx context.Context, id int64) error
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

const orderColumns = `id, number, status, supplier_name, creator_id, creator_name, approver_id,
revision_comment, total_amount, created_at, updated_at, approved_at, ordered_at, closed_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.Number, &status, &po.SupplierName, &po.CreatorID, &po.CreatorName,
		&po.ApproverID, &po.RevisionComment, &po.TotalAmount, &po.CreatedAt, &po.UpdatedAt,
		&po.ApprovedAt, &po.OrderedAt, &po.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, fmt.Errorf("purchase order: %w", shared.ErrNotFound)
		}
		return PurchaseOrder{}, err
	}
	po.Status = Status(status)
	return po, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listOrderItems(ctx context.Context, q queryer, orderID int64) ([]PurchaseOrderItem, error) {
	rows, err := q.Query(ctx, `SELECT poi.id, poi.order_id, poi.product_id, p.name, poi.quantity, poi.unit_price, poi.total_price
FROM purchase_order_items poi JOIN products p ON p.id = poi.product_id
WHERE poi.order_id = $1 ORDER BY poi.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PurchaseOrderItem
	for rows.Next() {
		var item PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get returns the order with its items.
func (r *Repository) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items, err = listOrderItems(ctx, r.pool, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// List returns orders matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int64, error) {
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
		conds = append(conds, "status = ANY($"+strconv.Itoa(len(args))+")")
	}
	if filter.CreatorID != nil {
		args = append(args, *filter.CreatorID)
		conds = append(conds, "creator_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, "(number ILIKE $"+n+" OR supplier_name ILIKE $"+n+")")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM purchase_orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("purchasing: count: %w", err)
	}

	args = append(args, filter.Pagination.PerPage, filter.Pagination.Offset())
	query := "SELECT " + orderColumns + " FROM purchase_orders" + where +
		" ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("purchasing: list: %w", err)
	}
	defer rows.Close()

	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, po)
	}
	return out, total, rows.Err()
}

func (r *txRepo) InsertOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(number, status, supplier_name, creator_id, creator_name, revision_comment, total_amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, '', $6, NOW(), NOW()) RETURNING id`,
		po.Number, string(po.Status), po.SupplierName, po.CreatorID, po.CreatorName, po.TotalAmount).Scan(&id)
	return id, err
}

func (r *txRepo) InsertItem(ctx context.Context, item PurchaseOrderItem) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_order_items (order_id, product_id, quantity, unit_price, total_price)
VALUES ($1, $2, $3, $4, $5)`,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice)
	return err
}

func (r *txRepo) DeleteItems(ctx context.Context, orderID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE order_id = $1`, orderID)
	return err
}

func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items, err = listOrderItems(ctx, r.tx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (r *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	return err
}

func (r *txRepo) UpdateHeader(ctx context.Context, id int64, supplierName string, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET supplier_name = $2, total_amount = $3, updated_at = NOW() WHERE id = $1`,
		id, supplierName, total)
	return err
}

func (r *txRepo) SetApproval(ctx context.Context, id int64, approverID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET approver_id = $2, approved_at = $3, updated_at = NOW() WHERE id = $1`, id, approverID, at)
	return err
}

func (r *txRepo) SetRevisionComment(ctx context.Context, id int64, comment string) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET revision_comment = $2, updated_at = NOW() WHERE id = $1`, id, comment)
	return err
}

func (r *txRepo) SetOrdered(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET ordered_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}

func (r *txRepo) SetClosed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET closed_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}

func (r *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	if err := r.DeleteItems(ctx, id); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
	return err
}
