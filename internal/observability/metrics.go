package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for FlowLedger.
type Metrics struct {
	// --- Ledger operations ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// --- Domain totals ---
	InterestClaimedTotal prometheus.Counter
	YieldDischargedTotal prometheus.Counter
	TotalSupply          prometheus.Gauge
	TotalAssets          prometheus.Gauge

	// --- Dam rounds ---
	RoundsClosed          prometheus.Counter
	CurrentRound          prometheus.Gauge
	WithdrawalsExecuted   prometheus.Counter
	WithdrawalsSuppressed prometheus.Counter

	// --- Recorder & channels ---
	CoreSequence        prometheus.Gauge
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     prometheus.Counter
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken   prometheus.Counter
	SnapshotLastSeq prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flow_ops_applied_total",
			Help: "Ledger and dam operations applied",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flow_ops_rejected_total",
			Help: "Operations rejected (validation, state, balance)",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flow_op_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		InterestClaimedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flow_interest_claimed_total",
			Help: "Total interest units materialized into principal",
		}),

		YieldDischargedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flow_yield_discharged_total",
			Help: "Total yield units discharged by the distributor",
		}),

		TotalSupply: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flow_total_supply",
			Help: "Sum of all principal balances",
		}),

		TotalAssets: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flow_total_assets",
			Help: "External asset balance held by the ledger",
		}),

		RoundsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flow_rounds_closed_total",
			Help: "Dam rounds closed",
		}),

		CurrentRound: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flow_current_round",
			Help: "ID of the active round (0 when idle)",
		}),

		WithdrawalsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flow_withdrawals_executed_total",
			Help: "Queued withdrawals paid out at round close",
		}),

		WithdrawalsSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flow_withdrawals_suppressed_total",
			Help: "Withdrawal failures suppressed to keep the round advancing",
		}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flow_core_sequence",
			Help: "Current global event sequence",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flow_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flow_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flow_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flow_projection_drops_total",
			Help: "Envelopes dropped due to full projection channel",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flow_publish_drops_total",
			Help: "Envelopes dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flow_persist_backpressure_total",
			Help: "Times the recorder blocked on the persist channel",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flow_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "flow_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "flow_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flow_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flow_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flow_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flow_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flow_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flow_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flow_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
