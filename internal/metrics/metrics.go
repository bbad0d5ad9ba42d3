package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts checkout and reconciliation outcomes.
type Metrics struct {
	CheckoutTotal  *prometheus.CounterVec
	ReconcileTotal *prometheus.CounterVec
	LatencyMS      *prometheus.HistogramVec
}

func New(service string) *Metrics {
	return NewWithRegisterer(service, prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on the given registerer so tests can use a
// private registry instead of the process-global one.
func NewWithRegisterer(service string, reg prometheus.Registerer) *Metrics {
	checkout := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toystore",
		Subsystem: service,
		Name:      "checkout_total",
		Help:      "Checkout attempts by result.",
	}, []string{"result"})
	reconcile := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toystore",
		Subsystem: service,
		Name:      "reconcile_total",
		Help:      "Gateway notifications by ack code.",
	}, []string{"ack"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "toystore",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(checkout, reconcile, latency)
	return &Metrics{CheckoutTotal: checkout, ReconcileTotal: reconcile, LatencyMS: latency}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
