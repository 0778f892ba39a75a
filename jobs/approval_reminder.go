package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockflow-erp/stockflow/internal/adjustments"
	jobmetrics "github.com/stockflow-erp/stockflow/internal/jobs"
	"github.com/stockflow-erp/stockflow/internal/notify"
	"github.com/stockflow-erp/stockflow/internal/purchasing"
	"github.com/stockflow-erp/stockflow/internal/requests"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// reminderAge is how long a document sits untouched before it counts as
// stale. Documents younger than this already produced a notification at
// transition time.
const reminderAge = 24 * time.Hour

// ApprovalReminderJob reminds approvers about documents waiting on them.
type ApprovalReminderJob struct {
	Pool     *pgxpool.Pool
	Notifier *notify.Service
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewApprovalReminderJob initialises the reminder handler.
func NewApprovalReminderJob(pool *pgxpool.Pool, notifier *notify.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ApprovalReminderJob {
	return &ApprovalReminderJob{Pool: pool, Notifier: notifier, Logger: logger, Metrics: metrics}
}

// Handle counts stale pending documents and broadcasts one reminder per
// module to the approver role.
func (j *ApprovalReminderJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Pool == nil || j.Notifier == nil {
		return errors.New("approval reminder: handler not configured")
	}

	tracker := j.Metrics.Track(TaskApprovalReminder)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := time.Now().UTC().Add(-reminderAge)

	checks := []struct {
		module  string
		query   string
		status  string
		message string
	}{
		{
			module:  requests.ModuleName,
			query:   `SELECT COUNT(*) FROM requests WHERE status = $1 AND updated_at < $2`,
			status:  string(requests.StatusForwarded),
			message: "%d demande(s) de fourniture en attente de votre approbation.",
		},
		{
			module:  purchasing.ModuleName,
			query:   `SELECT COUNT(*) FROM purchase_orders WHERE status = $1 AND updated_at < $2`,
			status:  string(purchasing.StatusPendingApproval),
			message: "%d bon(s) de commande en attente de votre approbation.",
		},
		{
			module:  adjustments.ModuleName,
			query:   `SELECT COUNT(*) FROM stock_adjustments WHERE status = $1 AND created_at < $2`,
			status:  string(adjustments.StatusPending),
			message: "%d ajustement(s) de stock en attente de votre approbation.",
		},
	}

	for _, check := range checks {
		var count int
		if err := j.Pool.QueryRow(ctx, check.query, check.status, cutoff).Scan(&count); err != nil {
			j.Logger.Error("reminder count failed", slog.String("module", check.module), slog.Any("error", err))
			resultErr = err
			continue
		}
		if count == 0 {
			continue
		}
		j.Notifier.Broadcast(ctx, "APPROVAL_REMINDER", check.module, fmt.Sprintf(check.message, count), shared.RoleApprover)
		j.Logger.Info("approval reminder sent", slog.String("module", check.module), slog.Int("pending", count))
	}
	return resultErr
}
