package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exposed on /metrics alongside the default Go collectors.
var (
	EventsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendledger_events_recorded_total",
		Help: "Attendance events appended to the ledger.",
	})

	ReportsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendledger_reports_served_total",
		Help: "Window reports served, by window type.",
	}, []string{"window"})

	AnalyticsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendledger_analytics_served_total",
		Help: "Analytics snapshots served, by kind.",
	}, []string{"kind"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendledger_analytics_cache_hits_total",
		Help: "Analytics requests answered from the TTL cache.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendledger_analytics_cache_misses_total",
		Help: "Analytics requests that recomputed the snapshot.",
	})

	InvalidRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendledger_invalid_records_total",
		Help: "Stored records excluded from reads or aggregation.",
	})
)
