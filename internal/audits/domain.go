package audits

import (
	"time"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Status enumerates the audit lifecycle states, forward-only.
type Status string

const (
	StatusInProgress            Status = "IN_PROGRESS"
	StatusCompleted             Status = "COMPLETED"
	StatusReconciliationPending Status = "RECONCILIATION_PENDING"
	StatusClosed                Status = "CLOSED"
)

// Audit is one stock-count session.
type Audit struct {
	ID          int64
	Number      string
	Status      Status
	CreatorID   int64
	CreatorName string
	Items       []AuditItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// AuditItem is one product line. SystemQty is the snapshot taken at audit
// creation and never changes; CountedQty stays nil until entered.
type AuditItem struct {
	ID          int64
	AuditID     int64
	ProductID   int64
	ProductName string
	SystemQty   int64
	CountedQty  *int64
}

// Discrepancy is countedQuantity minus systemQuantity: positive means
// overage, negative means shortage. Only defined once counted.
func (i AuditItem) Discrepancy() (int64, bool) {
	if i.CountedQty == nil {
		return 0, false
	}
	return *i.CountedQty - i.SystemQty, true
}

// Counted reports whether every item has a counted quantity.
func (a Audit) Counted() bool {
	for _, item := range a.Items {
		if item.CountedQty == nil {
			return false
		}
	}
	return true
}

// ListFilter narrows audit listings.
type ListFilter struct {
	Statuses   []Status
	Pagination shared.Pagination
}
