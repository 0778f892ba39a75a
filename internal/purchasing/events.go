package purchasing

import (
	"context"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// EventKind tags a purchase order transition notification.
type EventKind string

const (
	EventSubmitted         EventKind = "PO_APPROVAL_REQUEST"
	EventDecisionMade      EventKind = "PO_DECISION"
	EventRevisionRequested EventKind = "PO_REVISION"
	EventOrdered           EventKind = "PO_ORDERED"
	EventClosed            EventKind = "PO_CLOSED"
	EventCancelled         EventKind = "PO_CANCELLED"
)

// Event carries one transition to the notification layer.
type Event struct {
	Kind          EventKind
	OrderID       int64
	Number        string
	Message       string
	RecipientID   int64
	RecipientRole shared.Role
}

// EventSink receives transition events, best-effort.
type EventSink interface {
	OrderEvent(ctx context.Context, evt Event)
}

// CachePort is the versioned read-model cache serving order lists and
// dropping them after every successful transition.
type CachePort interface {
	BuildKey(ctx context.Context, scope string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Invalidate(ctx context.Context, scopes ...string) error
}

// CacheScope is the read-model scope covering order lists and details.
const CacheScope = "purchase-orders"
