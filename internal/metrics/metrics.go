// Package metrics exposes Prometheus counters for the relay pipeline.
// Everything registers at init through promauto; the API server serves
// the registry at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "polynotify"

// CyclesTotal counts completed fetch cycles, whether or not they found
// anything to relay.
var CyclesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "cycles_total",
		Help:      "Total number of fetch cycles started",
	},
)

// CycleFailures counts cycles that aborted at a given stage. The fetch
// stage aborts the cycle; the save stage does not (delivery still runs).
var CycleFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "cycle_failures_total",
		Help:      "Number of cycle stage failures",
	},
	[]string{"stage"}, // fetch, save, retention
)

// FetchedTotal counts notification payloads pulled from the upstream API.
var FetchedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "fetched_total",
		Help:      "Total notifications fetched from the upstream API",
	},
)

// SavedTotal counts documents newly persisted (duplicates excluded).
var SavedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "saved_total",
		Help:      "Total notifications newly persisted",
	},
)

// DuplicatesTotal counts payloads the store rejected as already seen.
var DuplicatesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "duplicates_total",
		Help:      "Total notifications skipped as duplicates",
	},
)

// DeliveriesTotal counts per-sink delivery outcomes.
var DeliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "deliveries_total",
		Help:      "Delivery attempts by sink and outcome",
	},
	[]string{"sink", "outcome"}, // outcome: ok, failed
)

// PurgedTotal counts documents removed by the retention job.
var PurgedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retention",
		Name:      "purged_total",
		Help:      "Total notifications removed by the retention job",
	},
)

// CycleDuration observes wall time of a full fetch-save-deliver cycle.
var CycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a full relay cycle",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
)

// RecordDelivery increments the delivery counter for one sink attempt.
func RecordDelivery(sink string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	DeliveriesTotal.WithLabelValues(sink, outcome).Inc()
}
