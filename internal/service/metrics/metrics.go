package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal tracks invocation attempts per region and result
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_attempts_total",
			Help: "Total number of invocation attempts",
		},
		[]string{"region", "result"},
	)

	// AttemptLatency tracks collaborator call latency
	AttemptLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_attempt_latency_seconds",
			Help:    "Invocation attempt latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"region"},
	)

	// OutcomesTotal tracks logical requests by terminal kind
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_outcomes_total",
			Help: "Total number of logical requests by outcome",
		},
		[]string{"kind"},
	)

	// FailoverDepth tracks how many regions failed before a request finished
	FailoverDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "router_failover_depth",
			Help:    "Number of failed regions per logical request",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)

	// RegionCooling is 1 while a region is cooling down
	RegionCooling = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "router_region_cooling",
			Help: "Whether the region is currently cooling down",
		},
		[]string{"region"},
	)

	// JournalDropped counts outcomes dropped by a full journal buffer
	JournalDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "router_journal_dropped_total",
			Help: "Outcomes dropped because the journal buffer was full",
		},
	)

	// DBConnectionPoolUsage tracks the percentage of used connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_db_connection_pool_usage_percent",
			Help: "Percentage of database connection pool in use",
		},
	)
)
