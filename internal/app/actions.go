package app

import (
	"context"

	"github.com/stockflow-erp/stockflow/internal/observability"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// ActionRecorder is the write side of the action log.
type ActionRecorder interface {
	Record(ctx context.Context, log shared.ActionLog) error
}

type instrumentedActions struct {
	next    ActionRecorder
	metrics *observability.Metrics
}

// InstrumentActions decorates an action recorder so every recorded lifecycle
// mutation also increments the transition counter.
func InstrumentActions(next ActionRecorder, metrics *observability.Metrics) ActionRecorder {
	if metrics == nil {
		return next
	}
	return &instrumentedActions{next: next, metrics: metrics}
}

func (a *instrumentedActions) Record(ctx context.Context, log shared.ActionLog) error {
	a.metrics.IncTransition(log.Entity, log.Action)
	return a.next.Record(ctx, log)
}
