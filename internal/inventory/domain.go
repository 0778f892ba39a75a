package inventory

import "time"

// MovementType classifies a stock movement direction.
type MovementType string

const (
	MovementIn  MovementType = "ENTREE"
	MovementOut MovementType = "SORTIE"
)

// MovementSource identifies which lifecycle posted the movement.
type MovementSource string

const (
	SourceRequest    MovementSource = "REQUEST"
	SourceReceipt    MovementSource = "RECEIPT"
	SourceAdjustment MovementSource = "ADJUSTMENT"
)

// Movement is one line in the append-only stock ledger. Quantity is always
// positive; Type carries the direction.
type Movement struct {
	ID        int64
	ProductID int64
	Type      MovementType
	Source    MovementSource
	SourceRef string
	Quantity  int64
	ActorID   int64
	Note      string
	CreatedAt time.Time
}

// MovementFilter narrows ledger listings.
type MovementFilter struct {
	ProductID *int64
	Type      MovementType
	Source    MovementSource
	From      time.Time
	To        time.Time
	Limit     int
}

// LowStockProduct is a product whose on-hand quantity fell to or below its
// alert threshold.
type LowStockProduct struct {
	ProductID      int64
	Name           string
	Reference      string
	Quantity       int64
	AlertThreshold int64
}
