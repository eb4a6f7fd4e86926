// Package metrics provides Prometheus metrics shared across packages.
package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wakekeeper"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status_code"},
	)

	// WSConnected reports whether a foreground instance is attached.
	WSConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "foreground_connected",
			Help:      "1 when a foreground WebSocket connection is attached",
		},
	)

	dbPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)
)

// RecordDBPoolMetrics snapshots the pgx pool state into gauges.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	dbPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	dbPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	dbPoolConnections.WithLabelValues("total").Set(float64(stats.TotalConns()))
	dbPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
}
