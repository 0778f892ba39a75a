package requests

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

// Repository provides PostgreSQL backed persistence for stock requests.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by Service. Tx leaks
// the underlying transaction so cross-cutting helpers (number allocation,
// stock ledger) join the same unit of work.
type TxRepository interface {
	Tx() pgx.Tx
	InsertRequest(ctx context.Context, req Request) (int64, error)
	InsertItem(ctx context.Context, item RequestItem) error
	GetForUpdate(ctx context.Context, id int64) (Request, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	SetApproval(ctx context.Context, id int64, approverID int64, at time.Time) error
	SetDelivery(ctx context.Context, id int64, delivererID int64, at time.Time) error
	SetReception(ctx context.Context, id int64, at time.Time) error
	SetItemApproval(ctx context.Context, itemID int64, approvedQty int64) error
	SetItemDispute(ctx context.Context, itemID int64, status ItemDisputeStatus, reason *DisputeReason, comment string) error
	ResolveReportedItems(ctx context.Context, requestID int64, resolution ItemDisputeStatus) error
	ProductQuantities(ctx context.Context, productIDs []int64) (map[int64]int64, error)
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

const requestColumns = `id, number, status, requester_id, requester_name, observation,
approver_id, deliverer_id, created_at, updated_at, approved_at, delivered_at, received_at`

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	var status string
	err := row.Scan(&req.ID, &req.Number, &status, &req.RequesterID, &req.RequesterName, &req.Observation,
		&req.ApproverID, &req.DelivererID, &req.CreatedAt, &req.UpdatedAt, &req.ApprovedAt, &req.DeliveredAt, &req.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, fmt.Errorf("request: %w", shared.ErrNotFound)
		}
		return Request{}, err
	}
	req.Status = Status(status)
	return req, nil
}

// Get returns the request with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Request, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id))
	if err != nil {
		return Request{}, err
	}
	req.Items, err = listItems(ctx, r.pool, id)
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const itemColumns = `ri.id, ri.request_id, ri.product_id, p.name, ri.requested_qty, ri.proposed_qty,
ri.approved_qty, ri.dispute_status, ri.dispute_reason, ri.dispute_comment`

func listItems(ctx context.Context, q queryer, requestID int64) ([]RequestItem, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+`
FROM request_items ri JOIN products p ON p.id = ri.product_id
WHERE ri.request_id = $1 ORDER BY ri.id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RequestItem
	for rows.Next() {
		var item RequestItem
		var disputeStatus string
		var reason *string
		if err := rows.Scan(&item.ID, &item.RequestID, &item.ProductID, &item.ProductName, &item.RequestedQty,
			&item.ProposedQty, &item.ApprovedQty, &disputeStatus, &reason, &item.DisputeComment); err != nil {
			return nil, err
		}
		item.DisputeStatus = ItemDisputeStatus(disputeStatus)
		if reason != nil {
			r := DisputeReason(*reason)
			item.DisputeReason = &r
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// List returns requests matching the filter, newest first, with the total
// row count for pagination.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Request, int64, error) {
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
	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		conds = append(conds, "requester_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, "number ILIKE $"+strconv.Itoa(len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM requests"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("requests: count: %w", err)
	}

	args = append(args, filter.Pagination.PerPage, filter.Pagination.Offset())
	query := "SELECT " + requestColumns + " FROM requests" + where +
		" ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("requests: list: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

func (r *txRepo) InsertRequest(ctx context.Context, req Request) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO requests (number, status, requester_id, requester_name, observation, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id`,
		req.Number, string(req.Status), req.RequesterID, req.RequesterName, req.Observation).Scan(&id)
	return id, err
}

func (r *txRepo) InsertItem(ctx context.Context, item RequestItem) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO request_items (request_id, product_id, requested_qty, dispute_status, dispute_comment)
VALUES ($1, $2, $3, $4, '')`,
		item.RequestID, item.ProductID, item.RequestedQty, string(DisputeNone))
	return err
}

// GetForUpdate locks the request row so the transition check and the write
// happen under the same lock.
func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (Request, error) {
	req, err := scanRequest(r.tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Request{}, err
	}
	req.Items, err = listItems(ctx, r.tx, id)
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

func (r *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE requests SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	return err
}

func (r *txRepo) SetApproval(ctx context.Context, id int64, approverID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE requests SET approver_id = $2, approved_at = $3, updated_at = NOW() WHERE id = $1`, id, approverID, at)
	return err
}

func (r *txRepo) SetDelivery(ctx context.Context, id int64, delivererID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE requests SET deliverer_id = $2, delivered_at = $3, updated_at = NOW() WHERE id = $1`, id, delivererID, at)
	return err
}

func (r *txRepo) SetReception(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE requests SET received_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}

func (r *txRepo) SetItemApproval(ctx context.Context, itemID int64, approvedQty int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE request_items SET approved_qty = $2 WHERE id = $1`, itemID, approvedQty)
	return err
}

func (r *txRepo) SetItemDispute(ctx context.Context, itemID int64, status ItemDisputeStatus, reason *DisputeReason, comment string) error {
	var reasonStr *string
	if reason != nil {
		s := string(*reason)
		reasonStr = &s
	}
	_, err := r.tx.Exec(ctx, `UPDATE request_items SET dispute_status = $2, dispute_reason = $3, dispute_comment = $4 WHERE id = $1`,
		itemID, string(status), reasonStr, comment)
	return err
}

func (r *txRepo) ResolveReportedItems(ctx context.Context, requestID int64, resolution ItemDisputeStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE request_items SET dispute_status = $2
WHERE request_id = $1 AND dispute_status = $3`,
		requestID, string(resolution), string(DisputeReported))
	return err
}

func (r *txRepo) ProductQuantities(ctx context.Context, productIDs []int64) (map[int64]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, quantity FROM products WHERE id = ANY($1) AND is_active`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quantities := make(map[int64]int64, len(productIDs))
	for rows.Next() {
		var id, qty int64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		quantities[id] = qty
	}
	return quantities, rows.Err()
}
