package requests

import (
	"time"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Status enumerates the stock request lifecycle states. The wire values are
// the French labels the rest of the organisation already uses.
type Status string

const (
	StatusDraft             Status = "BROUILLON"
	StatusSubmitted         Status = "SOUMISE"
	StatusForwarded         Status = "TRANSMISE"
	StatusApproved          Status = "APPROUVEE"
	StatusRejected          Status = "REJETEE"
	StatusDelivered         Status = "LIVREE_PAR_MAGASINIER"
	StatusReceptionConfirmed Status = "RECEPTION_CONFIRMEE"
	StatusDisputed          Status = "LITIGE_RECEPTION"
	StatusCancelled         Status = "ANNULEE"
)

// Terminal reports whether no further transition leaves the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusReceptionConfirmed, StatusCancelled:
		return true
	}
	return false
}

// DisputeReason qualifies a receipt dispute on one item.
type DisputeReason string

const (
	ReasonWrongQuantity DisputeReason = "QUANTITE_INCORRECTE"
	ReasonDamaged       DisputeReason = "ARTICLE_ENDOMMAGE"
	ReasonWrongItem     DisputeReason = "MAUVAIS_ARTICLE"
	ReasonOther         DisputeReason = "AUTRE"
)

// Valid reports whether the reason is one of the accepted values.
func (r DisputeReason) Valid() bool {
	switch r {
	case ReasonWrongQuantity, ReasonDamaged, ReasonWrongItem, ReasonOther:
		return true
	}
	return false
}

// ItemDisputeStatus tracks the dispute state of one request item.
type ItemDisputeStatus string

const (
	DisputeNone             ItemDisputeStatus = "NO_DISPUTE"
	DisputeReported         ItemDisputeStatus = "REPORTED"
	DisputeResolvedApproved ItemDisputeStatus = "RESOLVED_APPROVED"
	DisputeResolvedRejected ItemDisputeStatus = "RESOLVED_REJECTED"
)

// Request is a department stock request.
type Request struct {
	ID            int64
	Number        string
	Status        Status
	RequesterID   int64
	RequesterName string
	Observation   string
	ApproverID    *int64
	DelivererID   *int64
	Items         []RequestItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ApprovedAt    *time.Time
	DeliveredAt   *time.Time
	ReceivedAt    *time.Time
}

// HasReportedDispute reports whether any item still carries an unresolved
// dispute.
func (r Request) HasReportedDispute() bool {
	for _, item := range r.Items {
		if item.DisputeStatus == DisputeReported {
			return true
		}
	}
	return false
}

// RequestItem is one product line on a request. ApprovedQty stays nil until
// the approver decides; when set it satisfies 0 < ApprovedQty <= RequestedQty.
type RequestItem struct {
	ID             int64
	RequestID      int64
	ProductID      int64
	ProductName    string
	RequestedQty   int64
	ProposedQty    *int64
	ApprovedQty    *int64
	DisputeStatus  ItemDisputeStatus
	DisputeReason  *DisputeReason
	DisputeComment string
}

// ResolveDecision selects a dispute resolution branch.
type ResolveDecision string

const (
	ResolveApprove ResolveDecision = "RESOLVE_APPROVE"
	ResolveReject  ResolveDecision = "RESOLVE_REJECT"
)

// ListFilter narrows request listings.
type ListFilter struct {
	Statuses    []Status
	RequesterID *int64
	Search      string
	Pagination  shared.Pagination
}

// DeliveryNoteLine is one delivered line on the note projection.
type DeliveryNoteLine struct {
	ProductID    int64
	ProductName  string
	DeliveredQty int64
}

// DeliveryNote is the read-only delivery document derived from a delivered
// request. It carries no state of its own.
type DeliveryNote struct {
	RequestNumber string
	RequesterName string
	DelivererID   int64
	DeliveredAt   time.Time
	Lines         []DeliveryNoteLine
}
