package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/useristn/Toy-Store-Web-sub000/internal/checkout"
	"github.com/useristn/Toy-Store-Web-sub000/internal/metrics"
	"github.com/useristn/Toy-Store-Web-sub000/internal/order"
	"github.com/useristn/Toy-Store-Web-sub000/internal/reconcile"
	"github.com/useristn/Toy-Store-Web-sub000/internal/redisx"
	"github.com/useristn/Toy-Store-Web-sub000/internal/stock"
	"github.com/useristn/Toy-Store-Web-sub000/internal/vnpay"
	"github.com/useristn/Toy-Store-Web-sub000/internal/voucher"
)

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*order.Order, error)
	Cancel(ctx context.Context, orderID, userID string) (*order.Order, error)
	Advance(ctx context.Context, orderID string, next order.Status) (*order.Order, error)
}

type OrderReader interface {
	GetByID(ctx context.Context, orderID string) (*order.Order, error)
	GetStatus(ctx context.Context, orderID string) (order.Status, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
}

type VoucherPreviewer interface {
	Preview(ctx context.Context, code string, subtotal int64, userID string) (*voucher.Quote, error)
}

// NotificationProcessor is the write-capable gateway channel.
type NotificationProcessor interface {
	HandleNotification(ctx context.Context, params map[string]string) reconcile.Ack
}

// ReturnDisplay is the display-only gateway channel.
type ReturnDisplay interface {
	Format(params map[string]string) (*reconcile.ReturnView, error)
}

type PayURLBuilder interface {
	BuildPayURL(req vnpay.PayRequest) string
}

type Handler struct {
	checkout CheckoutService
	orders   OrderReader
	vouchers VoucherPreviewer
	notify   NotificationProcessor
	returns  ReturnDisplay
	gateway  PayURLBuilder
	cache    *redisx.StatusCache
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewHandler(checkoutSvc CheckoutService, orders OrderReader, vouchers VoucherPreviewer,
	notify NotificationProcessor, returns ReturnDisplay, gateway PayURLBuilder,
	cache *redisx.StatusCache, m *metrics.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		checkout: checkoutSvc,
		orders:   orders,
		vouchers: vouchers,
		notify:   notify,
		returns:  returns,
		gateway:  gateway,
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "checkout"})
}

type checkoutRequest struct {
	UserID        string         `json:"userId"`
	Customer      order.Customer `json:"customer"`
	PaymentMethod string         `json:"paymentMethod"`
	VoucherCode   string         `json:"voucherCode"`
	Notes         string         `json:"notes"`
}

type checkoutResponse struct {
	Order  *order.Order `json:"order"`
	PayURL string       `json:"payUrl,omitempty"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID == "" || req.PaymentMethod == "" {
		writeError(w, http.StatusBadRequest, "missing userId or paymentMethod")
		return
	}
	if req.Customer.Name == "" || req.Customer.Phone == "" || req.Customer.Address == "" {
		writeError(w, http.StatusBadRequest, "missing customer contact details")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.checkout.Checkout(ctx, checkout.Request{
		UserID:        req.UserID,
		Customer:      req.Customer,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		VoucherCode:   req.VoucherCode,
		Notes:         req.Notes,
	})
	if err != nil {
		h.countCheckout("rejected")
		h.writeDomainError(w, err)
		return
	}
	h.countCheckout("ok")

	resp := checkoutResponse{Order: o}
	if o.PaymentMethod == order.PaymentMethodVNPay {
		resp.PayURL = h.gateway.BuildPayURL(vnpay.PayRequest{
			Reference: o.Reference,
			Amount:    o.TotalAmount,
			OrderInfo: "Thanh toan don hang " + o.Reference,
			ClientIP:  clientIP(r),
		})
	}

	h.cache.Set(r.Context(), o.ID, string(o.Status))
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	if status, ok := h.cache.Get(r.Context(), orderID); ok {
		writeJSON(w, http.StatusOK, map[string]string{"orderId": orderID, "status": status})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, err := h.orders.GetStatus(ctx, orderID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.cache.Set(r.Context(), orderID, string(status))
	writeJSON(w, http.StatusOK, map[string]string{"orderId": orderID, "status": string(status)})
}

func (h *Handler) ListOrdersByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orders, err := h.orders.ListByUser(ctx, userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

type cancelRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.checkout.Cancel(ctx, orderID, req.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.cache.Set(r.Context(), o.ID, string(o.Status))
	writeJSON(w, http.StatusOK, o)
}

type advanceRequest struct {
	Status string `json:"status"`
}

func (h *Handler) AdvanceOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "missing status")
		return
	}
	next := order.Status(req.Status)
	if !order.IsValid(next) {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.checkout.Advance(ctx, orderID, next)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.cache.Set(r.Context(), o.ID, string(o.Status))
	writeJSON(w, http.StatusOK, o)
}

// PreviewVoucher is the read-only voucher query behind live UI feedback.
func (h *Handler) PreviewVoucher(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	userID := r.URL.Query().Get("userId")
	total, err := strconv.ParseInt(r.URL.Query().Get("total"), 10, 64)
	if err != nil || total < 0 || userID == "" {
		writeError(w, http.StatusBadRequest, "missing or invalid total/userId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	quote, err := h.vouchers.Preview(ctx, code, total, userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// VNPayIPN is the authoritative server-to-server notification endpoint.
// It always answers 200 with the protocol ack; the gateway retries anything
// that is not a confirmed ack.
func (h *Handler) VNPayIPN(w http.ResponseWriter, r *http.Request) {
	ack := h.notify.HandleNotification(r.Context(), flattenQuery(r.URL.Query()))
	if h.metrics != nil {
		h.metrics.ReconcileTotal.WithLabelValues(ack.RspCode).Inc()
	}
	writeJSON(w, http.StatusOK, ack)
}

// VNPayReturn is the browser redirect target. Display only: a forged or
// replayed redirect can never change an order.
func (h *Handler) VNPayReturn(w http.ResponseWriter, r *http.Request) {
	view, err := h.returns.Format(flattenQuery(r.URL.Query()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment return")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) countCheckout(result string) {
	if h.metrics != nil {
		h.metrics.CheckoutTotal.WithLabelValues(result).Inc()
	}
}

// writeDomainError maps domain errors onto HTTP statuses: not-found to 404,
// rule violations to 409/422 with the rule's own message, everything
// unexpected to an opaque 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, checkout.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not your order")
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrUnknownPaymentMethod):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, stock.ErrInsufficientStock),
		errors.Is(err, checkout.ErrNotCancellable),
		errors.Is(err, checkout.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, voucher.ErrNotFound),
		errors.Is(err, voucher.ErrNotStarted),
		errors.Is(err, voucher.ErrExpired),
		errors.Is(err, voucher.ErrExhausted),
		errors.Is(err, voucher.ErrMinOrderNotMet),
		errors.Is(err, voucher.ErrUserLimitReached):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func flattenQuery(values url.Values) map[string]string {
	params := make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	return params
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
