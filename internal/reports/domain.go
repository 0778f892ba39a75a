package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryValuation is the stock value held in one product category.
type CategoryValuation struct {
	CategoryID   int64
	CategoryName string
	ProductCount int64
	TotalValue   decimal.Decimal
}

// Valuation is the full stock valuation report: one line per category plus
// the grand total, computed as quantity times unit price at report time.
type Valuation struct {
	GeneratedAt time.Time
	Categories  []CategoryValuation
	TotalValue  decimal.Decimal
}

// TurnoverItem measures how fast one product moves: outbound request
// quantity over the window divided by the current stock level.
type TurnoverItem struct {
	ProductID    int64
	ProductName  string
	Reference    string
	CurrentStock int64
	QuantityOut  int64
	TurnoverRate float64
}

// Turnover is the stock rotation report over a date window.
type Turnover struct {
	GeneratedAt time.Time
	From        time.Time
	To          time.Time
	Items       []TurnoverItem
}

// DashboardStats are the landing-page counters: products under their alert
// threshold, requests waiting on the approver, and total units in stock.
type DashboardStats struct {
	LowStock         int64
	PendingApprovals int64
	TotalItems       int64
}
