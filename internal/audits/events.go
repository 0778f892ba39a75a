package audits

import (
	"context"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// EventKind tags an audit notification.
type EventKind string

const (
	EventReconciliationRequested EventKind = "RECONCILIATION_REQUEST"
	EventClosed                  EventKind = "AUDIT_CLOSED"
)

// Event carries one audit state change to the notification layer. Exactly
// one of RecipientID and RecipientRole is set.
type Event struct {
	Kind          EventKind
	AuditID       int64
	Number        string
	Message       string
	RecipientID   int64
	RecipientRole shared.Role
}

// EventSink receives audit events. Delivery is best-effort; a sink failure
// never rolls back the transition that produced the event.
type EventSink interface {
	AuditEvent(ctx context.Context, evt Event)
}
