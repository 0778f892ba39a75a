package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockflow-erp/stockflow/internal/adjustments"
	"github.com/stockflow-erp/stockflow/internal/purchasing"
	"github.com/stockflow-erp/stockflow/internal/requests"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Repository persists notifications and computes pending-action counts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const notificationColumns = `id, user_id, kind, message, ref_module, ref_id, read_at, created_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Kind, &n.Message, &n.RefModule, &n.RefID, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, fmt.Errorf("notification: %w", shared.ErrNotFound)
		}
		return Notification{}, err
	}
	return n, nil
}

// Insert stores one notification and returns its id.
func (r *Repository) Insert(ctx context.Context, n Notification) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO notifications (user_id, kind, message, ref_module, ref_id, created_at)
VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id`,
		n.UserID, n.Kind, n.Message, n.RefModule, n.RefID).Scan(&id)
	return id, err
}

// Get returns one notification.
func (r *Repository) Get(ctx context.Context, id int64) (Notification, error) {
	return scanNotification(r.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
}

// ListForUser returns a user's notifications, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags one of the user's notifications as read.
func (r *Repository) MarkRead(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = NOW()
WHERE id = $1 AND user_id = $2 AND read_at IS NULL`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// MarkAllRead flags every unread notification of the user as read.
func (r *Repository) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = NOW()
WHERE user_id = $1 AND read_at IS NULL`, userID)
	return err
}

// UnreadCount returns the user's unread notification count.
func (r *Repository) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID).Scan(&count)
	return count, err
}

// PendingCounts computes the role-dependent work queues.
func (r *Repository) PendingCounts(ctx context.Context, principal shared.Principal) (Counts, error) {
	var counts Counts
	var err error
	switch principal.Role {
	case shared.RoleApprover:
		if counts.PendingRequests, err = r.countRows(ctx,
			`SELECT COUNT(*) FROM requests WHERE status = $1`, string(requests.StatusForwarded)); err != nil {
			return Counts{}, err
		}
		if counts.PendingPurchaseOrders, err = r.countRows(ctx,
			`SELECT COUNT(*) FROM purchase_orders WHERE status = $1`, string(purchasing.StatusPendingApproval)); err != nil {
			return Counts{}, err
		}
		if counts.PendingAdjustments, err = r.countRows(ctx,
			`SELECT COUNT(*) FROM stock_adjustments WHERE status = $1`, string(adjustments.StatusPending)); err != nil {
			return Counts{}, err
		}
	case shared.RoleStorekeeper:
		if counts.RequestsToDeliver, err = r.countRows(ctx,
			`SELECT COUNT(*) FROM requests WHERE status = $1`, string(requests.StatusApproved)); err != nil {
			return Counts{}, err
		}
	case shared.RoleRequester:
		if counts.RequestsToConfirm, err = r.countRows(ctx,
			`SELECT COUNT(*) FROM requests WHERE status = $1 AND requester_id = $2`,
			string(requests.StatusDelivered), principal.UserID); err != nil {
			return Counts{}, err
		}
	}
	return counts, nil
}

func (r *Repository) countRows(ctx context.Context, query string, args ...any) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}
