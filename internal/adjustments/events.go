package adjustments

import (
	"context"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// EventKind tags an adjustment notification.
type EventKind string

const (
	EventPendingApproval EventKind = "ADJUSTMENT_PENDING"
	EventDecided         EventKind = "ADJUSTMENT_DECISION"
	EventStockAdjusted   EventKind = "STOCK_ADJUSTED"
)

// Event carries one adjustment state change to the notification layer.
// Exactly one of RecipientID and RecipientRole is set.
type Event struct {
	Kind          EventKind
	AdjustmentID  int64
	ProductID     int64
	Message       string
	RecipientID   int64
	RecipientRole shared.Role
}

// EventSink receives adjustment events. Delivery is best-effort; a sink
// failure never rolls back the change that produced the event.
type EventSink interface {
	AdjustmentEvent(ctx context.Context, evt Event)
}

// CachePort is the versioned read-model cache serving adjustment lists and
// dropping them after every successful change.
type CachePort interface {
	BuildKey(ctx context.Context, scope string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Invalidate(ctx context.Context, scopes ...string) error
}

// CacheScope is the read-model scope covering adjustment lists.
const CacheScope = "adjustments"
