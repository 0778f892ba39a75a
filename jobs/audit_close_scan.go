package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockflow-erp/stockflow/internal/audits"
	jobmetrics "github.com/stockflow-erp/stockflow/internal/jobs"
)

// AuditCloseScanJob sweeps audits stuck in reconciliation. An audit closes
// when its last pending adjustment is decided; the decision path already
// checks this, the sweep catches runs where that check failed.
type AuditCloseScanJob struct {
	Audits  *audits.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditCloseScanJob initialises the sweep handler.
func NewAuditCloseScanJob(service *audits.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditCloseScanJob {
	return &AuditCloseScanJob{Audits: service, Logger: logger, Metrics: metrics}
}

// Handle runs one sweep over reconciliation-pending audits.
func (j *AuditCloseScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Audits == nil {
		return errors.New("audit close scan: handler not configured")
	}

	tracker := j.Metrics.Track(TaskAuditCloseScan)
	closed, err := j.Audits.CloseScan(ctx)
	if err != nil {
		j.Logger.Error("audit close scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	if closed > 0 {
		j.Logger.Info("audit close scan finished", slog.Int("closed", closed))
	}
	return tracker.End(nil)
}
