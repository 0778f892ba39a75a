package adjustments

import (
	"time"

	"github.com/stockflow-erp/stockflow/internal/inventory"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Status enumerates adjustment states. An adjustment is decided exactly
// once: PENDING moves to APPROVED or REJECTED and stays there.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Adjustment is one stock correction. Quantity is always positive; Type
// carries the direction. AuditID links reconciliation adjustments back to
// the audit that produced them and is nil for manual ones.
type Adjustment struct {
	ID          int64
	ProductID   int64
	ProductName string
	Type        inventory.MovementType
	Quantity    int64
	Reason      string
	Status      Status
	AuditID     *int64
	RequestedBy int64
	DecidedBy   *int64
	DecidedAt   *time.Time
	CreatedAt   time.Time
}

// ListFilter narrows adjustment listings.
type ListFilter struct {
	Statuses    []Status
	AuditID     *int64
	RequestedBy int64
	Pagination  shared.Pagination
}
