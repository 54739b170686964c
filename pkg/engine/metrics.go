package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered once on the default registry; every Engine in the
// process shares them.
var metrics = struct {
	snapshots        prometheus.Counter
	geodesicSteps    prometheus.Counter
	geodesicRejected prometheus.Counter
	snapshotSeconds  prometheus.Histogram
	refinementLevels prometheus.Gauge
}{
	snapshots: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blacklight",
		Name:      "snapshots_total",
		Help:      "Snapshots integrated to completion.",
	}),
	geodesicSteps: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blacklight",
		Name:      "geodesic_steps_total",
		Help:      "Accepted geodesic integration steps.",
	}),
	geodesicRejected: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blacklight",
		Name:      "geodesic_rejected_steps_total",
		Help:      "Rejected geodesic step attempts.",
	}),
	snapshotSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "blacklight",
		Name:      "snapshot_seconds",
		Help:      "Wall time per completed snapshot.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}),
	refinementLevels: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blacklight",
		Name:      "refinement_levels",
		Help:      "Refinement levels used by the most recent snapshot.",
	}),
}
