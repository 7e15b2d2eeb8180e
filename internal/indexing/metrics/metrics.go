package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal tracks finished ingestion cycles per pipeline and outcome
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preconf_cycles_total",
			Help: "Total number of ingestion cycles",
		},
		[]string{"pipeline", "outcome"},
	)

	// CycleDuration tracks how long one cycle takes end to end
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preconf_cycle_duration_seconds",
			Help:    "Ingestion cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline"},
	)

	// StageFailures tracks failed cycles by the stage that failed
	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preconf_stage_failures_total",
			Help: "Total number of cycles aborted per stage",
		},
		[]string{"pipeline", "stage"},
	)

	// FetchErrorsTotal tracks failed upstream fetches
	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preconf_fetch_errors_total",
			Help: "Total number of failed upstream fetches",
		},
		[]string{"pipeline", "stream", "kind"},
	)

	// RowsFetched tracks rows returned per upstream stream
	RowsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preconf_rows_fetched_total",
			Help: "Total number of rows fetched from upstream services",
		},
		[]string{"stream"},
	)

	// RowsWritten tracks rows merged per table
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preconf_rows_written_total",
			Help: "Total number of rows merged into the table store",
		},
		[]string{"table"},
	)

	// ProgressBlock tracks the next block each pipeline will fetch from
	ProgressBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preconf_progress_block",
			Help: "First block of the next fetch window",
		},
		[]string{"table"},
	)

	// DecayDegenerate counts commitments with an unusable decay window
	DecayDegenerate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preconf_decay_degenerate_total",
			Help: "Total number of commitments valued with a degenerate decay window",
		},
		[]string{"reason"},
	)

	// LoopState exposes the current state of each pipeline loop
	LoopState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preconf_loop_state",
			Help: "Current loop state (0 idle, 1 fetching, 2 joining, 3 computing, 4 writing, 5 sleeping)",
		},
		[]string{"pipeline"},
	)

	// UpstreamHeight tracks the indexing service's reported block height
	UpstreamHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preconf_upstream_block_height",
			Help: "Latest block height reported by the indexing service",
		},
		[]string{"pipeline"},
	)

	// RPCCallsTotal tracks RPC calls per provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preconf_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preconf_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preconf_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// CacheLookups tracks settlement cache hits and misses
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preconf_settlement_cache_lookups_total",
			Help: "Settlement transaction cache lookups by result",
		},
		[]string{"result"},
	)
)
