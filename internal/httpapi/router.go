package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/useristn/Toy-Store-Web-sub000/internal/metrics"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(latency(h.metrics))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/checkout", h.Checkout)

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Get("/status", h.GetOrderStatus)
			r.Post("/cancel", h.CancelOrder)
			r.Post("/status", h.AdvanceOrderStatus)
		})
		r.Get("/users/{userId}/orders", h.ListOrdersByUser)

		r.Get("/vouchers/{code}/preview", h.PreviewVoucher)

		r.Route("/payment/vnpay", func(r chi.Router) {
			r.Get("/return", h.VNPayReturn)
			r.Get("/ipn", h.VNPayIPN)
		})
	})

	return r
}

// latency records per-route request duration. The label is the chi route
// pattern, not the raw path, so order ids do not explode the cardinality.
func latency(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			next.ServeHTTP(w, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
		})
	}
}
