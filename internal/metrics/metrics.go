package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesTotal counts pages served by the cross-partition enumerator.
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docfeed_pages_total",
			Help: "Total number of pages served by cross-partition enumerators",
		},
		[]string{"status"},
	)
	// ItemsTotal counts items carried by served pages.
	ItemsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docfeed_items_total",
			Help: "Total number of items carried by served pages",
		},
	)
	// RequestChargeTotal accumulates the request charge of served pages.
	RequestChargeTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docfeed_request_charge_total",
			Help: "Total request charge of served pages",
		},
	)
	// TopologyChangesTotal counts split, merge and cache refresh events.
	TopologyChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docfeed_topology_changes_total",
			Help: "Partition topology changes handled during enumeration",
		},
		[]string{"kind"},
	)
	// WorkingSetSize is the number of partition enumerators left after the last page.
	WorkingSetSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docfeed_working_set_size",
			Help: "Partition enumerators remaining after the last served page",
		},
	)
	// PrefetchInFlight is the number of prefetches currently running.
	PrefetchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docfeed_prefetch_in_flight",
			Help: "Prefetch operations currently running",
		},
	)
	// PrefetchDuration is the latency of a single partition prefetch.
	PrefetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docfeed_prefetch_duration_seconds",
			Help:    "Prefetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	// EmulatorRequestsTotal counts page requests answered by the emulator.
	EmulatorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docfeed_emulator_requests_total",
			Help: "Requests answered by the in-process emulator",
		},
		[]string{"operation", "status"},
	)
)

// Topology change kinds.
const (
	TopologySplit   = "split"
	TopologyMerge   = "merge"
	TopologyRefresh = "refresh"
)

// RecordPage records one page outcome.
func RecordPage(err error, items int, charge float64) {
	if err != nil {
		PagesTotal.WithLabelValues("error").Inc()
		return
	}
	PagesTotal.WithLabelValues("ok").Inc()
	ItemsTotal.Add(float64(items))
	RequestChargeTotal.Add(charge)
}

// RecordPrefetch records one prefetch latency.
func RecordPrefetch(start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	PrefetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
