// Package metrics provides Prometheus instrumentation for the Tendera
// marketplace.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tendera",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tendera",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RequestsCreatedTotal counts marketplace requests posted.
	RequestsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tendera",
		Name:      "requests_created_total",
		Help:      "Total marketplace requests created.",
	})

	// BidsPlacedTotal counts bids placed.
	BidsPlacedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tendera",
		Name:      "bids_placed_total",
		Help:      "Total bids placed.",
	})

	// BidAcceptancesTotal counts bid acceptance attempts by result
	// (accepted, payment_failed, rejected).
	BidAcceptancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tendera",
			Name:      "bid_acceptances_total",
			Help:      "Total bid acceptance attempts by result.",
		},
		[]string{"result"},
	)

	// PaymentSimulationsTotal counts simulated payment attempts by method
	// and result.
	PaymentSimulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tendera",
			Name:      "payment_simulations_total",
			Help:      "Total simulated payment attempts by method and result.",
		},
		[]string{"method", "result"},
	)

	// EscrowTransitionsTotal counts escrow status transitions by target
	// status.
	EscrowTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tendera",
			Name:      "escrow_transitions_total",
			Help:      "Total escrow status transitions by target status.",
		},
		[]string{"to"},
	)

	// EscrowsExpiredTotal counts pending escrows failed by the expiry sweep.
	EscrowsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tendera",
		Name:      "escrows_expired_total",
		Help:      "Total pending escrows failed by the expiry sweep.",
	})

	// EscrowResolutionDuration observes time from escrow creation to a
	// terminal status.
	EscrowResolutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tendera",
		Name:      "escrow_resolution_duration_seconds",
		Help:      "Time from escrow creation to release or refund in seconds.",
		Buckets:   []float64{60, 600, 3600, 21600, 86400, 259200, 604800, 2592000},
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tendera", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tendera", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tendera", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tendera", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tendera", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tendera", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RequestsCreatedTotal,
		BidsPlacedTotal,
		BidAcceptancesTotal,
		PaymentSimulationsTotal,
		EscrowTransitionsTotal,
		EscrowsExpiredTotal,
		EscrowResolutionDuration,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// RecordPaymentSimulation counts one simulated payment attempt.
func RecordPaymentSimulation(method string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	PaymentSimulationsTotal.WithLabelValues(method, result).Inc()
}

// RecordEscrowTransition counts one escrow status transition.
func RecordEscrowTransition(to string) {
	EscrowTransitionsTotal.WithLabelValues(to).Inc()
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
