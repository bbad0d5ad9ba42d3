// Package stock is the ledger of per-product available quantity. All
// mutations run inside a caller-owned transaction so that a checkout or
// reconciliation rolls back stock together with everything else.
package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrInsufficientStock = errors.New("stock: insufficient stock")

// InsufficientStockError reports which product could not cover the requested
// quantity. It matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Line struct {
	ProductID string
	Quantity  int
}

// Ledger mutates product stock. It carries no state of its own; every method
// operates on the transaction passed in.
type Ledger struct{}

func NewLedger() *Ledger { return &Ledger{} }

// ReserveTx locks the product row, checks availability and decrements stock.
// A missing product counts as zero available.
func (l *Ledger) ReserveTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	var available int
	err := tx.QueryRow(ctx, `
		SELECT stock
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &InsufficientStockError{ProductID: productID, Requested: qty, Available: 0}
		}
		return fmt.Errorf("lock product %s: %w", productID, err)
	}

	if available < qty {
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
	}

	_, err = tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock for %s: %w", productID, err)
	}

	return nil
}

// ReleaseForOrderTx credits reserved quantities back to the products of a
// cancelled or payment-failed order. The insert into stock_releases is the
// idempotency guard: a second call for the same order is a no-op, so stock is
// never double-credited.
func (l *Ledger) ReleaseForOrderTx(ctx context.Context, tx pgx.Tx, orderID string, lines []Line) error {
	ct, err := tx.Exec(ctx, `
		INSERT INTO stock_releases (order_id) VALUES ($1)
		ON CONFLICT (order_id) DO NOTHING
	`, orderID)
	if err != nil {
		return fmt.Errorf("record stock release for order %s: %w", orderID, err)
	}
	if ct.RowsAffected() == 0 {
		// already released
		return nil
	}

	for _, line := range lines {
		_, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1
		`, line.ProductID, line.Quantity)
		if err != nil {
			return fmt.Errorf("restore stock for %s: %w", line.ProductID, err)
		}
	}

	return nil
}
