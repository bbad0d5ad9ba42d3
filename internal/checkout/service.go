// Package checkout turns a cart into a durable order. Voucher validation,
// stock reservation, the order insert, the voucher commit and the cart clear
// all run inside one database transaction, so a failure at any step leaves
// nothing behind.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/useristn/Toy-Store-Web-sub000/internal/cart"
	"github.com/useristn/Toy-Store-Web-sub000/internal/order"
	"github.com/useristn/Toy-Store-Web-sub000/internal/stock"
	"github.com/useristn/Toy-Store-Web-sub000/internal/voucher"
)

var (
	ErrEmptyCart            = errors.New("checkout: cart is empty, nothing to checkout")
	ErrUnknownPaymentMethod = errors.New("checkout: unknown payment method")
	ErrNotOwner             = errors.New("checkout: order does not belong to this user")
	ErrNotCancellable       = errors.New("checkout: order cannot be cancelled in its current state")
	ErrInvalidTransition    = errors.New("checkout: illegal order status transition")
)

// Pool matches the transaction entry point of *pgxpool.Pool.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type StockLedger interface {
	ReserveTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error
	ReleaseForOrderTx(ctx context.Context, tx pgx.Tx, orderID string, lines []stock.Line) error
}

type VoucherEngine interface {
	ValidateTx(ctx context.Context, tx pgx.Tx, code string, subtotal int64, userID string) (*voucher.Voucher, error)
	CommitTx(ctx context.Context, tx pgx.Tx, voucherID, userID, orderID string) error
}

// EventPublisher announces committed outcomes. Publishing happens after the
// transaction commits and is best-effort; failures are logged, never rolled
// back into the order flow.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, o *order.Order) error
	PublishOrderCancelled(ctx context.Context, orderID, userID string) error
}

type Service struct {
	pool     Pool
	orders   order.Repository
	carts    cart.Repository
	ledger   StockLedger
	vouchers VoucherEngine
	events   EventPublisher
	logger   *zap.Logger
}

func NewService(pool Pool, orders order.Repository, carts cart.Repository,
	ledger StockLedger, vouchers VoucherEngine, events EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		pool:     pool,
		orders:   orders,
		carts:    carts,
		ledger:   ledger,
		vouchers: vouchers,
		events:   events,
		logger:   logger,
	}
}

// Request is the validated checkout input: the authenticated user, their
// contact snapshot and how they intend to pay.
type Request struct {
	UserID        string
	Customer      order.Customer
	PaymentMethod order.PaymentMethod
	VoucherCode   string
	Notes         string
}

func (s *Service) Checkout(ctx context.Context, req Request) (*order.Order, error) {
	if req.PaymentMethod != order.PaymentMethodCOD && req.PaymentMethod != order.PaymentMethodVNPay {
		return nil, ErrUnknownPaymentMethod
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := s.carts.GetByUserTx(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	subtotal := c.Subtotal()

	var (
		discount int64
		applied  *voucher.Voucher
	)
	if req.VoucherCode != "" {
		applied, err = s.vouchers.ValidateTx(ctx, tx, req.VoucherCode, subtotal, req.UserID)
		if err != nil {
			return nil, err
		}
		discount = applied.Discount(subtotal)
	}

	total := subtotal - discount
	if total < 0 {
		total = 0
	}

	for _, it := range c.Items {
		if err := s.ledger.ReserveTx(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}

	o := &order.Order{
		ID:            uuid.NewString(),
		Reference:     newReference(),
		UserID:        req.UserID,
		Customer:      req.Customer,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: order.PaymentPending,
		Status:        order.InitialStatus(req.PaymentMethod),
		TotalAmount:   total,
		Notes:         req.Notes,
		CreatedAt:     time.Now().UTC(),
	}
	if applied != nil {
		o.VoucherCode = applied.Code
		o.VoucherDiscount = discount
		o.VoucherType = string(applied.Type)
	}
	for _, it := range c.Items {
		o.Items = append(o.Items, order.Item{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductImage: it.ProductImage,
			Price:        it.Price,
			Quantity:     it.Quantity,
		})
	}

	if err := s.orders.CreateTx(ctx, tx, o); err != nil {
		return nil, err
	}

	if applied != nil {
		if err := s.vouchers.CommitTx(ctx, tx, applied.ID, req.UserID, o.ID); err != nil {
			return nil, err
		}
	}

	if err := s.carts.ClearTx(ctx, tx, req.UserID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit checkout: %w", err)
	}

	s.publishCreated(ctx, o)

	return o, nil
}

// Cancel is the user-initiated PENDING -> CANCELLED transition. It is only
// open to cash-on-delivery orders still waiting for staff pickup; gateway
// orders are settled by reconciliation instead.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) (*order.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := s.orders.GetByIDForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotOwner
	}
	if !order.Cancellable(o.PaymentMethod, o.Status) {
		return nil, ErrNotCancellable
	}

	if err := s.orders.UpdateStatusTx(ctx, tx, o.ID, order.StatusCancelled, o.PaymentStatus); err != nil {
		return nil, err
	}
	if err := s.ledger.ReleaseForOrderTx(ctx, tx, o.ID, releaseLines(o)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	o.Status = order.StatusCancelled
	s.publishCancelled(ctx, o)

	return o, nil
}

// staffTransitions are the fulfilment steps staff and couriers may drive.
// Cancellation deliberately has its own entry point with its own rules.
var staffTransitions = map[order.Status]bool{
	order.StatusConfirmed:  true,
	order.StatusProcessing: true,
	order.StatusShipping:   true,
	order.StatusDelivered:  true,
	order.StatusFailed:     true,
}

// Advance moves an order one step along the fulfilment chain.
func (s *Service) Advance(ctx context.Context, orderID string, next order.Status) (*order.Order, error) {
	if !staffTransitions[next] {
		return nil, ErrInvalidTransition
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := s.orders.GetByIDForUpdateTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanTransition(o.Status, next) {
		return nil, ErrInvalidTransition
	}

	if err := s.orders.UpdateStatusTx(ctx, tx, o.ID, next, o.PaymentStatus); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	o.Status = next
	return o, nil
}

func (s *Service) publishCreated(ctx context.Context, o *order.Order) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderCreated(ctx, o); err != nil {
		s.logger.Warn("publish OrderCreated", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) publishCancelled(ctx context.Context, o *order.Order) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderCancelled(ctx, o.ID, o.UserID); err != nil {
		s.logger.Warn("publish OrderCancelled", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func releaseLines(o *order.Order) []stock.Line {
	lines := make([]stock.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, stock.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

// newReference mints the opaque gateway transaction reference. Dashes are
// stripped to stay within the gateway's reference charset.
func newReference() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
