package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Validation failures are surfaced to the caller verbatim, so the messages
// are written for end users.
var (
	ErrNotFound         = errors.New("voucher not found or inactive")
	ErrNotStarted       = errors.New("voucher is not valid yet")
	ErrExpired          = errors.New("voucher has expired")
	ErrExhausted        = errors.New("voucher has been fully redeemed")
	ErrMinOrderNotMet   = errors.New("order total is below the voucher minimum")
	ErrUserLimitReached = errors.New("voucher usage limit reached for this user")
)

// querier matches the query methods shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Engine validates, prices, commits and reverses voucher redemptions.
// Validate and Preview are read-only and safe to call repeatedly; CommitTx
// and ReverseTx must run inside the transaction of the order they belong to.
type Engine struct {
	pool querier
	now  func() time.Time
}

func NewEngine(pool querier) *Engine {
	return &Engine{pool: pool, now: time.Now}
}

func (e *Engine) Validate(ctx context.Context, code string, subtotal int64, userID string) (*Voucher, error) {
	return e.validate(ctx, e.pool, code, subtotal, userID)
}

// ValidateTx runs the same checks inside the caller's transaction, so a
// checkout sees voucher state consistent with the rest of its reads.
func (e *Engine) ValidateTx(ctx context.Context, tx pgx.Tx, code string, subtotal int64, userID string) (*Voucher, error) {
	return e.validate(ctx, tx, code, subtotal, userID)
}

func (e *Engine) validate(ctx context.Context, q querier, code string, subtotal int64, userID string) (*Voucher, error) {
	v, err := getByCode(ctx, q, code)
	if err != nil {
		return nil, err
	}

	now := e.now()
	switch {
	case !v.Active:
		return nil, ErrNotFound
	case now.Before(v.StartsAt):
		return nil, ErrNotStarted
	case !now.Before(v.EndsAt):
		return nil, ErrExpired
	case v.UsedQuantity >= v.TotalQuantity:
		return nil, ErrExhausted
	case v.MinOrderValue != nil && subtotal < *v.MinOrderValue:
		return nil, ErrMinOrderNotMet
	}

	if v.LimitPerUser != nil {
		var used int
		err := q.QueryRow(ctx, `
			SELECT COUNT(*) FROM voucher_usages WHERE voucher_id = $1 AND user_id = $2
		`, v.ID, userID).Scan(&used)
		if err != nil {
			return nil, fmt.Errorf("count voucher usages: %w", err)
		}
		if used >= *v.LimitPerUser {
			return nil, ErrUserLimitReached
		}
	}

	return v, nil
}

// Preview is the standalone read-only query behind live UI feedback: validate
// plus price, without committing anything.
func (e *Engine) Preview(ctx context.Context, code string, subtotal int64, userID string) (*Quote, error) {
	v, err := e.Validate(ctx, code, subtotal, userID)
	if err != nil {
		return nil, err
	}

	discount := v.Discount(subtotal)
	final := subtotal - discount
	if final < 0 {
		final = 0
	}
	return &Quote{Code: v.Code, Type: v.Type, Discount: discount, FinalTotal: final}, nil
}

// CommitTx increments used_quantity and records the usage row. The
// conditional update is what makes N concurrent redemptions against a voucher
// with capacity 1 admit exactly one: the loser sees zero rows affected.
// It also takes the row lock that serializes commits for this voucher, so the
// per-user recount in the insert below runs against committed usage rows.
func (e *Engine) CommitTx(ctx context.Context, tx pgx.Tx, voucherID, userID, orderID string) error {
	ct, err := tx.Exec(ctx, `
		UPDATE vouchers SET used_quantity = used_quantity + 1
		WHERE id = $1 AND used_quantity < total_quantity
	`, voucherID)
	if err != nil {
		return fmt.Errorf("increment voucher usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrExhausted
	}

	ct, err = tx.Exec(ctx, `
		INSERT INTO voucher_usages (id, voucher_id, user_id, order_id)
		SELECT $1, $2, $3, $4
		FROM vouchers v
		WHERE v.id = $2
		  AND (v.limit_per_user IS NULL OR v.limit_per_user >
			(SELECT COUNT(*) FROM voucher_usages u WHERE u.voucher_id = $2 AND u.user_id = $3))
	`, uuid.NewString(), voucherID, userID, orderID)
	if err != nil {
		return fmt.Errorf("insert voucher usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrUserLimitReached
	}

	return nil
}

// ReverseTx undoes the redemption recorded for an order. Deleting the usage
// row first makes the reversal idempotent: if no row matches, a previous call
// already reversed it and nothing is decremented.
func (e *Engine) ReverseTx(ctx context.Context, tx pgx.Tx, code, orderID string) error {
	v, err := getByCode(ctx, tx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	ct, err := tx.Exec(ctx, `
		DELETE FROM voucher_usages WHERE voucher_id = $1 AND order_id = $2
	`, v.ID, orderID)
	if err != nil {
		return fmt.Errorf("delete voucher usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE vouchers SET used_quantity = GREATEST(used_quantity - 1, 0) WHERE id = $1
	`, v.ID)
	if err != nil {
		return fmt.Errorf("decrement voucher usage: %w", err)
	}

	return nil
}

func getByCode(ctx context.Context, q querier, code string) (*Voucher, error) {
	var v Voucher
	err := q.QueryRow(ctx, `
		SELECT id, code, discount_type, discount_value, max_discount, min_order_value,
			total_quantity, used_quantity, limit_per_user, starts_at, ends_at, active
		FROM vouchers WHERE code = $1
	`, code).Scan(&v.ID, &v.Code, &v.Type, &v.Value, &v.MaxDiscount, &v.MinOrderValue,
		&v.TotalQuantity, &v.UsedQuantity, &v.LimitPerUser, &v.StartsAt, &v.EndsAt, &v.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select voucher: %w", err)
	}
	return &v, nil
}
