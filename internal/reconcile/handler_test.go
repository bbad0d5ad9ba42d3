package reconcile

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/useristn/Toy-Store-Web-sub000/internal/order"
	"github.com/useristn/Toy-Store-Web-sub000/internal/stock"
	"github.com/useristn/Toy-Store-Web-sub000/internal/vnpay"
)

type fakeOrders struct {
	order.Repository

	byReference map[string]*order.Order
	updates     []statusUpdate
	gateway     []gatewayResult
}

type statusUpdate struct {
	orderID string
	status  order.Status
	payment order.PaymentStatus
}

type gatewayResult struct {
	orderID, txnNo, bankCode, respCode string
}

func (f *fakeOrders) GetByReferenceForUpdateTx(ctx context.Context, tx pgx.Tx, reference string) (*order.Order, error) {
	o, ok := f.byReference[reference]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) UpdateStatusTx(ctx context.Context, tx pgx.Tx, orderID string, status order.Status, payment order.PaymentStatus) error {
	f.updates = append(f.updates, statusUpdate{orderID, status, payment})
	return nil
}

func (f *fakeOrders) SetGatewayResultTx(ctx context.Context, tx pgx.Tx, orderID, txnNo, bankCode, respCode string) error {
	f.gateway = append(f.gateway, gatewayResult{orderID, txnNo, bankCode, respCode})
	return nil
}

type fakeLedger struct {
	released [][]stock.Line
}

func (f *fakeLedger) ReleaseForOrderTx(ctx context.Context, tx pgx.Tx, orderID string, lines []stock.Line) error {
	f.released = append(f.released, lines)
	return nil
}

type fakeReverser struct {
	reversed []string
}

func (f *fakeReverser) ReverseTx(ctx context.Context, tx pgx.Tx, code, orderID string) error {
	f.reversed = append(f.reversed, code)
	return nil
}

type fakeVerifier struct{ ok bool }

func (f fakeVerifier) Verify(params map[string]string) bool { return f.ok }

type fakeEvents struct {
	paid   []string
	failed []string
}

func (f *fakeEvents) PublishOrderPaid(ctx context.Context, o *order.Order) error {
	f.paid = append(f.paid, o.ID)
	return nil
}

func (f *fakeEvents) PublishOrderPaymentFailed(ctx context.Context, orderID, userID, respCode string) error {
	f.failed = append(f.failed, respCode)
	return nil
}

type deps struct {
	pool     pgxmock.PgxPoolIface
	orders   *fakeOrders
	ledger   *fakeLedger
	vouchers *fakeReverser
	events   *fakeEvents
}

func awaitingOrder() *order.Order {
	return &order.Order{
		ID:            "o1",
		Reference:     "ref123",
		UserID:        "u1",
		PaymentMethod: order.PaymentMethodVNPay,
		PaymentStatus: order.PaymentPending,
		Status:        order.StatusPendingPayment,
		TotalAmount:   460_000,
		VoucherCode:   "SUMMER10",
		Items:         []order.Item{{ProductID: "p1", Quantity: 2}},
	}
}

func newTestHandler(t *testing.T, verified bool) (*Handler, *deps) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	d := &deps{
		pool:     mock,
		orders:   &fakeOrders{byReference: map[string]*order.Order{"ref123": awaitingOrder()}},
		ledger:   &fakeLedger{},
		vouchers: &fakeReverser{},
		events:   &fakeEvents{},
	}
	h := NewHandler(mock, d.orders, d.ledger, d.vouchers, fakeVerifier{ok: verified}, d.events, zap.NewNop())
	return h, d
}

func notification(respCode string) map[string]string {
	return map[string]string{
		vnpay.ParamTxnRef:        "ref123",
		vnpay.ParamAmount:        "46000000",
		vnpay.ParamResponseCode:  respCode,
		vnpay.ParamTransactionNo: "14400996",
		vnpay.ParamBankCode:      "NCB",
		vnpay.ParamSecureHash:    "deadbeef",
	}
}

func TestHandleNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("successful payment confirms the order", func(t *testing.T) {
		h, d := newTestHandler(t, true)
		d.pool.ExpectBegin()
		d.pool.ExpectCommit()

		ack := h.HandleNotification(ctx, notification("00"))
		require.Equal(t, AckConfirmed, ack.RspCode)

		require.Equal(t, []statusUpdate{{"o1", order.StatusPending, order.PaymentPaid}}, d.orders.updates)
		require.Equal(t, []gatewayResult{{"o1", "14400996", "NCB", "00"}}, d.orders.gateway)
		require.Empty(t, d.ledger.released)
		require.Empty(t, d.vouchers.reversed)
		require.Equal(t, []string{"o1"}, d.events.paid)
		require.NoError(t, d.pool.ExpectationsWereMet())
	})

	t.Run("declined payment cancels, releases stock and reverses the voucher", func(t *testing.T) {
		h, d := newTestHandler(t, true)
		d.pool.ExpectBegin()
		d.pool.ExpectCommit()

		ack := h.HandleNotification(ctx, notification("24"))
		require.Equal(t, AckConfirmed, ack.RspCode)

		require.Equal(t, []statusUpdate{{"o1", order.StatusCancelled, order.PaymentFailed}}, d.orders.updates)
		require.Equal(t, [][]stock.Line{{{ProductID: "p1", Quantity: 2}}}, d.ledger.released)
		require.Equal(t, []string{"SUMMER10"}, d.vouchers.reversed)
		require.Equal(t, []string{"24"}, d.events.failed)
	})

	t.Run("declined payment without a voucher skips the reversal", func(t *testing.T) {
		h, d := newTestHandler(t, true)
		d.orders.byReference["ref123"].VoucherCode = ""
		d.pool.ExpectBegin()
		d.pool.ExpectCommit()

		ack := h.HandleNotification(ctx, notification("24"))
		require.Equal(t, AckConfirmed, ack.RspCode)
		require.Empty(t, d.vouchers.reversed)
	})

	t.Run("invalid signature is rejected before touching storage", func(t *testing.T) {
		h, d := newTestHandler(t, false)

		ack := h.HandleNotification(ctx, notification("00"))
		require.Equal(t, AckInvalidSignature, ack.RspCode)
		require.Empty(t, d.orders.updates)
		require.NoError(t, d.pool.ExpectationsWereMet())
	})

	t.Run("unknown reference", func(t *testing.T) {
		h, d := newTestHandler(t, true)
		d.pool.ExpectBegin()
		d.pool.ExpectRollback()

		params := notification("00")
		params[vnpay.ParamTxnRef] = "nope"

		ack := h.HandleNotification(ctx, params)
		require.Equal(t, AckOrderNotFound, ack.RspCode)
		require.Empty(t, d.orders.updates)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		h, d := newTestHandler(t, true)
		d.pool.ExpectBegin()
		d.pool.ExpectRollback()

		params := notification("00")
		params[vnpay.ParamAmount] = "100"

		ack := h.HandleNotification(ctx, params)
		require.Equal(t, AckAmountMismatch, ack.RspCode)
		require.Empty(t, d.orders.updates)
	})

	t.Run("malformed amount", func(t *testing.T) {
		h, d := newTestHandler(t, true)

		params := notification("00")
		params[vnpay.ParamAmount] = "46000050"

		ack := h.HandleNotification(ctx, params)
		require.Equal(t, AckAmountMismatch, ack.RspCode)
		require.Empty(t, d.orders.updates)
	})

	t.Run("retried notification is acknowledged without side effects", func(t *testing.T) {
		h, d := newTestHandler(t, true)
		o := d.orders.byReference["ref123"]
		o.Status = order.StatusPending
		o.PaymentStatus = order.PaymentPaid
		d.pool.ExpectBegin()
		d.pool.ExpectRollback()

		ack := h.HandleNotification(ctx, notification("00"))
		require.Equal(t, AckAlreadyProcessed, ack.RspCode)
		require.Empty(t, d.orders.updates)
		require.Empty(t, d.ledger.released)
		require.Empty(t, d.events.paid)
	})

	t.Run("cash order receiving a notification reads as already processed", func(t *testing.T) {
		h, d := newTestHandler(t, true)
		o := d.orders.byReference["ref123"]
		o.PaymentMethod = order.PaymentMethodCOD
		o.Status = order.StatusPending
		d.pool.ExpectBegin()
		d.pool.ExpectRollback()

		ack := h.HandleNotification(ctx, notification("00"))
		require.Equal(t, AckAlreadyProcessed, ack.RspCode)
	})
}
