// Package metrics provides Prometheus instrumentation for the energy
// market engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts placed orders, partitioned by side.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hypenergy_orders_total",
		Help: "Total number of orders placed",
	}, []string{"side"})

	// OrderLimitRejections counts orders rejected by the order limiter.
	OrderLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypenergy_order_limit_rejections_total",
		Help: "Orders rejected by the order limiter",
	})

	// AuctionsCleared counts clearing runs, partitioned by outcome
	// ("matched" or "no_match").
	AuctionsCleared = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hypenergy_auctions_cleared_total",
		Help: "Total number of auctions cleared",
	}, []string{"outcome"})

	// ClearingLatency tracks the duration of clearing runs.
	ClearingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hypenergy_clearing_latency_seconds",
		Help:    "Auction clearing latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SettlementsTotal counts settlement runs.
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypenergy_settlements_total",
		Help: "Total number of auction settlements",
	})

	// SettlementLatency tracks the duration of settlement runs.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hypenergy_settlement_latency_seconds",
		Help:    "Auction settlement latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// MatchedVolume accumulates matched energy per cleared auction.
	MatchedVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypenergy_matched_volume_total",
		Help: "Cumulative matched energy across cleared auctions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hypenergy_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hypenergy_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hypenergy_http_request_duration_seconds",
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

		// Use the raw path for the label; route cardinality is small.
		path := r.URL.Path
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

// Unwrap exposes the underlying writer so http.ResponseController can
// reach Hijack for WebSocket upgrades.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
