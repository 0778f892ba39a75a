package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Document number prefixes.
const (
	NumberPrefixRequest       = "COM"
	NumberPrefixPurchaseOrder = "BC"
	NumberPrefixAudit         = "AUDIT"
)

// TxNumberAllocator hands out sequential human-readable document numbers in
// the form PREFIX-YEAR-NNNNN; the sequence resets every year. Allocation
// runs inside an existing transaction so the counter increment commits or
// rolls back with the document itself.
type TxNumberAllocator struct{}

// Next increments the counter row for (prefix, year) and formats the number.
func (TxNumberAllocator) Next(ctx context.Context, tx pgx.Tx, prefix string) (string, error) {
	if prefix == "" {
		return "", errors.New("number prefix required")
	}
	year := time.Now().Year()
	var last int64
	err := tx.QueryRow(ctx, `INSERT INTO counters (type, year, last_number) VALUES ($1, $2, 1)
ON CONFLICT (type, year) DO UPDATE SET last_number = counters.last_number + 1
RETURNING last_number`, prefix, year).Scan(&last)
	if err != nil {
		return "", fmt.Errorf("allocate number %s: %w", prefix, err)
	}
	return FormatDocumentNumber(prefix, year, last), nil
}

// FormatDocumentNumber renders PREFIX-YEAR-NNNNN with a five digit sequence.
func FormatDocumentNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, seq)
}
