package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Product struct {
	ID             int64
	Name           string
	Reference      string
	CategoryID     int64
	Quantity       int64
	UnitPrice      decimal.Decimal
	AlertThreshold int64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ListFilters struct {
	CategoryID *int64
	Search     string
	ActiveOnly bool
}
