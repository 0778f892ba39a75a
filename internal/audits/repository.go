package audits

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Repository provides PostgreSQL backed persistence for inventory audits.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ProductSnapshot captures a product's on-hand quantity at audit creation.
type ProductSnapshot struct {
	ProductID int64
	Name      string
	Quantity  int64
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	Tx() pgx.Tx
	ActiveProducts(ctx context.Context) ([]ProductSnapshot, error)
	InsertAudit(ctx context.Context, audit Audit) (int64, error)
	InsertItem(ctx context.Context, item AuditItem) error
	GetForUpdate(ctx context.Context, id int64) (Audit, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	SetCompleted(ctx context.Context, id int64, at time.Time) error
	RecordCount(ctx context.Context, auditID, productID, counted int64) (bool, error)
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

const auditColumns = `id, number, status, creator_id, creator_name, created_at, updated_at, completed_at`

func scanAudit(row pgx.Row) (Audit, error) {
	var audit Audit
	var status string
	err := row.Scan(&audit.ID, &audit.Number, &status, &audit.CreatorID, &audit.CreatorName,
		&audit.CreatedAt, &audit.UpdatedAt, &audit.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Audit{}, fmt.Errorf("audit: %w", shared.ErrNotFound)
		}
		return Audit{}, err
	}
	audit.Status = Status(status)
	return audit, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listAuditItems(ctx context.Context, q queryer, auditID int64) ([]AuditItem, error) {
	rows, err := q.Query(ctx, `SELECT ai.id, ai.audit_id, ai.product_id, p.name, ai.system_qty, ai.counted_qty
FROM inventory_audit_items ai JOIN products p ON p.id = ai.product_id
WHERE ai.audit_id = $1 ORDER BY p.name`, auditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AuditItem
	for rows.Next() {
		var item AuditItem
		if err := rows.Scan(&item.ID, &item.AuditID, &item.ProductID, &item.ProductName, &item.SystemQty, &item.CountedQty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get returns the audit with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Audit, error) {
	audit, err := scanAudit(r.pool.QueryRow(ctx, `SELECT `+auditColumns+` FROM inventory_audits WHERE id = $1`, id))
	if err != nil {
		return Audit{}, err
	}
	audit.Items, err = listAuditItems(ctx, r.pool, id)
	if err != nil {
		return Audit{}, err
	}
	return audit, nil
}

// List returns audits matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Audit, int64, error) {
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
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM inventory_audits"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audits: count: %w", err)
	}

	args = append(args, filter.Pagination.PerPage, filter.Pagination.Offset())
	query := "SELECT " + auditColumns + " FROM inventory_audits" + where +
		" ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("audits: list: %w", err)
	}
	defer rows.Close()

	var out []Audit
	for rows.Next() {
		audit, err := scanAudit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, audit)
	}
	return out, total, rows.Err()
}

// ListOpenForClose returns ids of audits awaiting the close scan.
func (r *Repository) ListOpenForClose(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM inventory_audits WHERE status = $1`, string(StatusReconciliationPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *txRepo) ActiveProducts(ctx context.Context) ([]ProductSnapshot, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name, quantity FROM products WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductSnapshot
	for rows.Next() {
		var p ProductSnapshot
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Quantity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *txRepo) InsertAudit(ctx context.Context, audit Audit) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_audits (number, status, creator_id, creator_name, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING id`,
		audit.Number, string(audit.Status), audit.CreatorID, audit.CreatorName).Scan(&id)
	return id, err
}

func (r *txRepo) InsertItem(ctx context.Context, item AuditItem) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_audit_items (audit_id, product_id, system_qty)
VALUES ($1, $2, $3)`, item.AuditID, item.ProductID, item.SystemQty)
	return err
}

func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (Audit, error) {
	audit, err := scanAudit(r.tx.QueryRow(ctx, `SELECT `+auditColumns+` FROM inventory_audits WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Audit{}, err
	}
	audit.Items, err = listAuditItems(ctx, r.tx, id)
	if err != nil {
		return Audit{}, err
	}
	return audit, nil
}

func (r *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_audits SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	return err
}

func (r *txRepo) SetCompleted(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_audits SET completed_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}

// RecordCount upserts the counted quantity for one product line. Returns
// false when the product has no line on this audit.
func (r *txRepo) RecordCount(ctx context.Context, auditID, productID, counted int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_audit_items SET counted_qty = $3
WHERE audit_id = $1 AND product_id = $2`, auditID, productID, counted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
