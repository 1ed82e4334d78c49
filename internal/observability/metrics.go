package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	stockMovements     *prometheus.CounterVec
	insufficientStock  prometheus.Counter
	grnConfirmations   prometheus.Counter
	ledgerDriftCurrent prometheus.Gauge
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lotledger_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lotledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lotledger_stock_movements_total",
		Help: "Committed stock movements by adjustment type.",
	}, []string{"type"})
	insufficient := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotledger_insufficient_stock_total",
		Help: "Consumption requests rejected for insufficient stock.",
	})
	grn := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotledger_grn_confirmations_total",
		Help: "Goods receipt confirmations committed.",
	})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lotledger_ledger_drift_products",
		Help: "Products whose batch sum disagrees with the ledger, from the last integrity check.",
	})
	registry.MustRegister(requests, duration, movements, insufficient, grn, drift)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		stockMovements:     movements,
		insufficientStock:  insufficient,
		grnConfirmations:   grn,
		ledgerDriftCurrent: drift,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for each HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveStockMovement counts a committed movement by adjustment type.
func (m *Metrics) ObserveStockMovement(adjustmentType string) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(adjustmentType).Inc()
}

// ObserveInsufficientStock counts a rejected consumption request.
func (m *Metrics) ObserveInsufficientStock() {
	if m == nil {
		return
	}
	m.insufficientStock.Inc()
}

// ObserveGRNConfirmed counts a committed goods receipt confirmation.
func (m *Metrics) ObserveGRNConfirmed() {
	if m == nil {
		return
	}
	m.grnConfirmations.Inc()
}

// SetLedgerDrift records the product count reported by the integrity check.
func (m *Metrics) SetLedgerDrift(products int) {
	if m == nil {
		return
	}
	m.ledgerDriftCurrent.Set(float64(products))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
