package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stockflow-erp/stockflow/internal/jobs"
	"github.com/stockflow-erp/stockflow/internal/notify"
)

// NotifyDispatchJob publishes stored notifications to their user channels.
type NotifyDispatchJob struct {
	Service *notify.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewNotifyDispatchJob initialises the dispatch handler.
func NewNotifyDispatchJob(service *notify.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyDispatchJob {
	return &NotifyDispatchJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle delivers one queued notification.
func (j *NotifyDispatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("notify dispatch: handler not configured")
	}
	var payload notify.DispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(notify.TaskDispatch)
	err := j.Service.Dispatch(ctx, payload.NotificationID)
	if err != nil {
		j.Logger.Error("notification dispatch failed",
			slog.Int64("notification_id", payload.NotificationID),
			slog.Any("error", err),
		)
	}
	return tracker.End(err)
}
