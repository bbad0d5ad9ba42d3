// Package reconcile applies the payment gateway's verdict to an order.
// Only the server-to-server notification channel may mutate state; the
// browser return channel is handled by ReturnFormatter, which can do nothing
// but format.
package reconcile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/useristn/Toy-Store-Web-sub000/internal/order"
	"github.com/useristn/Toy-Store-Web-sub000/internal/stock"
	"github.com/useristn/Toy-Store-Web-sub000/internal/vnpay"
)

// Ack codes of the gateway's notification protocol. Anything other than
// AckConfirmed makes the gateway retry, so the duplicate guard below is
// load-bearing, not cosmetic.
const (
	AckConfirmed        = "00"
	AckOrderNotFound    = "01"
	AckAlreadyProcessed = "02"
	AckAmountMismatch   = "04"
	AckInvalidSignature = "97"
	AckUnknownError     = "99"
)

// Ack is the response body the gateway expects on its notification call.
type Ack struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Verifier interface {
	Verify(params map[string]string) bool
}

type StockLedger interface {
	ReleaseForOrderTx(ctx context.Context, tx pgx.Tx, orderID string, lines []stock.Line) error
}

type VoucherReverser interface {
	ReverseTx(ctx context.Context, tx pgx.Tx, code, orderID string) error
}

type EventPublisher interface {
	PublishOrderPaid(ctx context.Context, o *order.Order) error
	PublishOrderPaymentFailed(ctx context.Context, orderID, userID, respCode string) error
}

type Handler struct {
	pool     Pool
	orders   order.Repository
	ledger   StockLedger
	vouchers VoucherReverser
	verifier Verifier
	events   EventPublisher
	logger   *zap.Logger
}

func NewHandler(pool Pool, orders order.Repository, ledger StockLedger,
	vouchers VoucherReverser, verifier Verifier, events EventPublisher, logger *zap.Logger) *Handler {
	return &Handler{
		pool:     pool,
		orders:   orders,
		ledger:   ledger,
		vouchers: vouchers,
		verifier: verifier,
		events:   events,
		logger:   logger,
	}
}

// HandleNotification processes one gateway notification end-to-end in a
// single transaction. The FOR UPDATE read of the order serializes concurrent
// notifications for the same reference; the payment-status check behind that
// lock makes retries a no-op.
func (h *Handler) HandleNotification(ctx context.Context, params map[string]string) Ack {
	if !h.verifier.Verify(params) {
		h.logger.Warn("gateway notification with invalid signature",
			zap.String("txn_ref", params[vnpay.ParamTxnRef]))
		return Ack{RspCode: AckInvalidSignature, Message: "Invalid signature"}
	}

	reference := params[vnpay.ParamTxnRef]
	amount, err := vnpay.FromMinorUnits(params[vnpay.ParamAmount])
	if err != nil {
		h.logger.Warn("gateway notification with malformed amount",
			zap.String("txn_ref", reference), zap.Error(err))
		return Ack{RspCode: AckAmountMismatch, Message: "Invalid amount"}
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		h.logger.Error("begin reconciliation tx", zap.Error(err))
		return Ack{RspCode: AckUnknownError, Message: "Unknown error"}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := h.orders.GetByReferenceForUpdateTx(ctx, tx, reference)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			h.logger.Warn("gateway notification for unknown order", zap.String("txn_ref", reference))
			return Ack{RspCode: AckOrderNotFound, Message: "Order not found"}
		}
		h.logger.Error("load order for reconciliation", zap.String("txn_ref", reference), zap.Error(err))
		return Ack{RspCode: AckUnknownError, Message: "Unknown error"}
	}

	if amount != o.TotalAmount {
		h.logger.Warn("gateway notification amount mismatch",
			zap.String("order_id", o.ID),
			zap.Int64("notified", amount),
			zap.Int64("expected", o.TotalAmount))
		return Ack{RspCode: AckAmountMismatch, Message: "Invalid amount"}
	}

	// Idempotency guard: once any reconciliation outcome has been applied the
	// order is no longer PENDING_PAYMENT, and a retried notification must not
	// touch stock or voucher counters again.
	if o.Status != order.StatusPendingPayment || o.PaymentStatus != order.PaymentPending {
		return Ack{RspCode: AckAlreadyProcessed, Message: "Order already confirmed"}
	}

	respCode := params[vnpay.ParamResponseCode]
	paid := respCode == vnpay.ResponseCodeSuccess

	if paid {
		err = h.orders.UpdateStatusTx(ctx, tx, o.ID, order.StatusPending, order.PaymentPaid)
	} else {
		err = h.applyFailure(ctx, tx, o)
	}
	if err != nil {
		h.logger.Error("apply reconciliation outcome", zap.String("order_id", o.ID), zap.Error(err))
		return Ack{RspCode: AckUnknownError, Message: "Unknown error"}
	}

	err = h.orders.SetGatewayResultTx(ctx, tx, o.ID,
		params[vnpay.ParamTransactionNo], params[vnpay.ParamBankCode], respCode)
	if err != nil {
		h.logger.Error("record gateway result", zap.String("order_id", o.ID), zap.Error(err))
		return Ack{RspCode: AckUnknownError, Message: "Unknown error"}
	}

	if err := tx.Commit(ctx); err != nil {
		h.logger.Error("commit reconciliation", zap.String("order_id", o.ID), zap.Error(err))
		return Ack{RspCode: AckUnknownError, Message: "Unknown error"}
	}

	h.publishOutcome(ctx, o, paid, respCode)

	return Ack{RspCode: AckConfirmed, Message: "Confirm success"}
}

func (h *Handler) applyFailure(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	if err := h.orders.UpdateStatusTx(ctx, tx, o.ID, order.StatusCancelled, order.PaymentFailed); err != nil {
		return err
	}

	lines := make([]stock.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, stock.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if err := h.ledger.ReleaseForOrderTx(ctx, tx, o.ID, lines); err != nil {
		return err
	}

	if o.VoucherCode != "" {
		if err := h.vouchers.ReverseTx(ctx, tx, o.VoucherCode, o.ID); err != nil {
			return err
		}
	}

	return nil
}

func (h *Handler) publishOutcome(ctx context.Context, o *order.Order, paid bool, respCode string) {
	if h.events == nil {
		return
	}

	var err error
	if paid {
		paidOrder := *o
		paidOrder.Status = order.StatusPending
		paidOrder.PaymentStatus = order.PaymentPaid
		err = h.events.PublishOrderPaid(ctx, &paidOrder)
	} else {
		err = h.events.PublishOrderPaymentFailed(ctx, o.ID, o.UserID, respCode)
	}
	if err != nil {
		h.logger.Warn("publish reconciliation outcome", zap.String("order_id", o.ID), zap.Error(err))
	}
}
