package realtime

import (
	"github.com/bissquit/incident-impact/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "subscribers",
			Help:      "Number of active snapshot subscribers",
		},
	)

	snapshotsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "snapshots_published_total",
			Help:      "Snapshot loads by result",
		},
		[]string{"status"},
	)

	snapshotsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "snapshots_dropped_total",
			Help:      "Snapshots replaced by a newer one before a slow subscriber received them",
		},
	)
)

func recordPublish(status string) {
	snapshotsPublished.WithLabelValues(status).Inc()
}
