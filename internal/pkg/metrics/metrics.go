// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric of the service.
const Namespace = "incidentimpact"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks database connection pool state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	dbEmptyAcquires = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_empty_acquires",
			Help:      "Cumulative acquires that had to wait for a connection",
		},
	)

	activeIncidents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "impact",
			Name:      "active_incidents",
			Help:      "Number of active incidents by severity in the last evaluated snapshot",
		},
		[]string{"severity"},
	)

	accruedCost = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "impact",
			Name:      "accrued_cost",
			Help:      "Accrued cost of active incidents in whole currency units",
		},
	)

	costPerMinute = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "impact",
			Name:      "cost_per_minute",
			Help:      "Configured revenue at risk per minute",
		},
	)
)

// RecordImpact updates the impact gauges from an evaluated snapshot.
func RecordImpact(activeBySeverity map[string]int, total, perMinute int64) {
	for severity, n := range activeBySeverity {
		activeIncidents.WithLabelValues(severity).Set(float64(n))
	}
	accruedCost.Set(float64(total))
	costPerMinute.Set(float64(perMinute))
}

// RecordDBPoolMetrics updates the pool gauges from a pool snapshot.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("constructing").Set(float64(stats.ConstructingConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
	dbEmptyAcquires.Set(float64(stats.EmptyAcquireCount()))
}
