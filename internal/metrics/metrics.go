// Package metrics provides Prometheus instrumentation for the margin engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PositionsOpened counts opened positions, partitioned by direction.
	PositionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sapp_positions_opened_total",
		Help: "Total number of positions opened",
	}, []string{"direction"})

	// PositionsClosed counts voluntarily closed positions.
	PositionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sapp_positions_closed_total",
		Help: "Total number of positions closed by their owner",
	})

	// PositionsLiquidated counts forced liquidations.
	PositionsLiquidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sapp_positions_liquidated_total",
		Help: "Total number of positions force-liquidated",
	})

	// OpenPositions tracks the number of live single-asset positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sapp_open_positions",
		Help: "Number of currently open positions",
	})

	// SpreadsOpened counts opened spread positions.
	SpreadsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sapp_spreads_opened_total",
		Help: "Total number of spread positions opened",
	})

	// SpreadsClosed counts closed spread positions.
	SpreadsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sapp_spreads_closed_total",
		Help: "Total number of spread positions closed",
	})

	// PriceUpdates counts oracle price updates, partitioned by storage tier.
	PriceUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sapp_price_updates_total",
		Help: "Total oracle price updates",
	}, []string{"tier"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sapp_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sapp_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sapp_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Label by route pattern, not raw path, to keep cardinality
		// bounded when paths carry position ids.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
