package purchasing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Status enumerates the purchase order lifecycle states.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusNeedsRevision   Status = "A_REVOIR"
	StatusOrdered         Status = "ORDERED"
	StatusClosed          Status = "CLOTUREE"
	StatusCancelled       Status = "ANNULEE"
)

// Terminal reports whether no further transition leaves the status.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// Editable reports whether the creator may still change items or delete the
// order. Once submitted the order is read-only until returned for revision.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusNeedsRevision
}

// PurchaseOrder is a supplier order.
type PurchaseOrder struct {
	ID              int64
	Number          string
	Status          Status
	SupplierName    string
	CreatorID       int64
	CreatorName     string
	ApproverID      *int64
	RevisionComment string
	Items           []PurchaseOrderItem
	TotalAmount     decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ApprovedAt      *time.Time
	OrderedAt       *time.Time
	ClosedAt        *time.Time
}

// PurchaseOrderItem is one product line. TotalPrice is always
// quantity x unitPrice, recomputed whenever the line changes.
type PurchaseOrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int64
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// ComputeTotal derives the order total from its items. Re-deriving from the
// same items always yields the same value.
func ComputeTotal(items []PurchaseOrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}
	return total
}

// ListFilter narrows order listings.
type ListFilter struct {
	Statuses   []Status
	CreatorID  *int64
	Search     string
	Pagination shared.Pagination
}
