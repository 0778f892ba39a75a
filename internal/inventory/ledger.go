package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Ledger posts stock movements inside a caller-owned transaction. Every
// quantity change on a product goes through Apply so the movement history
// stays complete.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Apply records the movement and mutates the product quantity atomically.
// Outbound movements that would drive the quantity negative fail with
// ErrStateConflict and leave the row untouched.
func (l *Ledger) Apply(ctx context.Context, tx pgx.Tx, m Movement) error {
	if m.Quantity <= 0 {
		return shared.Validationf("quantity", "movement quantity must be positive")
	}

	delta := m.Quantity
	if m.Type == MovementOut {
		delta = -m.Quantity
	}

	var newQty int64
	err := tx.QueryRow(ctx, `
		UPDATE products
		SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING quantity
	`, m.ProductID, delta).Scan(&newQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return l.classifyFailure(ctx, tx, m)
		}
		return fmt.Errorf("inventory: apply movement: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO stock_movements (product_id, type, source, source_ref, quantity, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, m.ProductID, string(m.Type), string(m.Source), m.SourceRef, m.Quantity, m.ActorID, m.Note)
	if err != nil {
		return fmt.Errorf("inventory: insert movement: %w", err)
	}
	return nil
}

// classifyFailure tells a missing product apart from an insufficient balance.
func (l *Ledger) classifyFailure(ctx context.Context, tx pgx.Tx, m Movement) error {
	var current int64
	err := tx.QueryRow(ctx, `SELECT quantity FROM products WHERE id = $1`, m.ProductID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("product %d: %w", m.ProductID, shared.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("inventory: check product: %w", err)
	}
	return shared.StateConflictf("insufficient stock for product %d: have %d, need %d", m.ProductID, current, m.Quantity)
}
