// Package metrics exposes Prometheus collectors for the evaluator and the
// snapshot lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kubereach/kubereach/internal/policy"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kubereach",
			Subsystem: "evaluator",
			Name:      "queries_total",
			Help:      "Total number of reachability queries by verdict",
		},
		[]string{"verdict"},
	)

	queryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kubereach",
			Subsystem: "evaluator",
			Name:      "query_duration_seconds",
			Help:      "Duration of reachability queries in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8), // 10µs to ~160ms
		},
	)

	snapshotObjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kubereach",
			Subsystem: "snapshot",
			Name:      "objects",
			Help:      "Number of objects in the current snapshot by resource",
		},
		[]string{"resource"},
	)

	snapshotRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kubereach",
			Subsystem: "snapshot",
			Name:      "rebuilds_total",
			Help:      "Total number of snapshot rebuilds by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryDuration,
		snapshotObjects,
		snapshotRebuildsTotal,
	)
}

// RecordQuery records one evaluated reachability query.
func RecordQuery(allowed bool, seconds float64) {
	verdict := "deny"
	if allowed {
		verdict = "allow"
	}
	queriesTotal.WithLabelValues(verdict).Inc()
	queryDuration.Observe(seconds)
}

// RecordSnapshot records the object counts of the active snapshot.
func RecordSnapshot(snap *policy.Snapshot) {
	snapshotObjects.WithLabelValues("namespaces").Set(float64(snap.NamespaceCount()))
	snapshotObjects.WithLabelValues("pods").Set(float64(snap.PodCount()))
	snapshotObjects.WithLabelValues("networkpolicies").Set(float64(snap.PolicyCount()))
}

// RecordRebuild records a snapshot rebuild attempt.
func RecordRebuild(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	snapshotRebuildsTotal.WithLabelValues(result).Inc()
}
