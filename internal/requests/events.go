package requests

import (
	"context"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// EventKind tags a transition notification for the client's toast display.
type EventKind string

const (
	EventApprovalRequested EventKind = "APPROVAL_REQUEST"
	EventDecisionMade      EventKind = "DECISION"
	EventDelivered         EventKind = "DELIVERY"
	EventReceptionDone     EventKind = "RECEPTION"
	EventDisputeReported   EventKind = "DISPUTE"
	EventDisputeResolved   EventKind = "DISPUTE_RESOLVED"
	EventCancelled         EventKind = "CANCELLED"
)

// Event carries one state transition to the notification layer. Exactly one
// of RecipientID and RecipientRole is set: a role recipient fans out to
// every active user holding that role.
type Event struct {
	Kind          EventKind
	RequestID     int64
	Number        string
	Message       string
	RecipientID   int64
	RecipientRole shared.Role
}

// EventSink receives transition events. Delivery is best-effort; a sink
// failure never rolls back the transition that produced the event.
type EventSink interface {
	RequestEvent(ctx context.Context, evt Event)
}

// CachePort is the versioned read-model cache. Lists are served through
// BuildKey and FetchJSON; Invalidate bumps the scope version after every
// successful transition so stale pages fall out of use.
type CachePort interface {
	BuildKey(ctx context.Context, scope string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Invalidate(ctx context.Context, scopes ...string) error
}

// CacheScope is the read-model scope covering request lists and details.
const CacheScope = "requests"
