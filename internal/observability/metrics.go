// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger operation metrics
	OperationsTotal  *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec

	// Reward metrics
	HoldersSettled     prometheus.Counter
	RewardsClaimed     prometheus.Counter
	RewardsFunded      prometheus.Counter
	TrackedHolders     *prometheus.GaugeVec
	RewardPerTokenLast *prometheus.GaugeVec

	// Governance metrics
	ProposalsCreated prometheus.Counter
	VotesCast        *prometheus.CounterVec

	// Event metrics
	EventsEmitted      *prometheus.CounterVec
	EventPublishErrors *prometheus.CounterVec
	StreamSubscribers  prometheus.Gauge

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Scheduler metrics
	SettlementRunsTotal *prometheus.CounterVec
	SettlementDuration  prometheus.Histogram

	// Health metrics
	LastSuccessfulSettlement prometheus.Gauge
	UptimeSeconds            prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "meme_token_ledger"
	}

	return &Metrics{
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by operation and status",
		}, []string{"operation", "status"}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_latency_seconds",
			Help:      "Ledger operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		HoldersSettled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "holders_settled_total",
			Help:      "Total number of holder settlements",
		}),
		RewardsClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "claimed_base_units_total",
			Help:      "Total reward base units paid out by claims",
		}),
		RewardsFunded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "funded_base_units_total",
			Help:      "Total reward base units added to reward pools",
		}),
		TrackedHolders: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "tracked_holders",
			Help:      "Number of holder records in the reward pool by mint",
		}, []string{"mint"}),
		RewardPerTokenLast: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "reward_per_token_stored",
			Help:      "Last observed reward accumulator by mint (scaled by 1e6)",
		}, []string{"mint"}),

		ProposalsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governance",
			Name:      "proposals_created_total",
			Help:      "Total number of proposals created",
		}),
		VotesCast: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governance",
			Name:      "votes_cast_total",
			Help:      "Total number of votes cast by side",
		}, []string{"support"}),

		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Total number of events emitted by type",
		}, []string{"event_type"}),
		EventPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Total number of event sink failures by type",
		}, []string{"event_type"}),
		StreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "stream_subscribers",
			Help:      "Current number of websocket event stream subscribers",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		SettlementRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "settlement_runs_total",
			Help:      "Total number of scheduled settlement runs by status",
		}, []string{"status"}),
		SettlementDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "settlement_duration_seconds",
			Help:      "Scheduled settlement run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),

		LastSuccessfulSettlement: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_settlement_timestamp",
			Help:      "Unix timestamp of last successful scheduled settlement run",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records a ledger operation outcome and latency.
func RecordOperation(operation string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, status).Inc()
	DefaultMetrics.OperationLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordSettlement records one holder settlement and the resulting pool state.
func RecordSettlement(mint string, holders int, rewardPerToken uint64) {
	DefaultMetrics.HoldersSettled.Inc()
	DefaultMetrics.TrackedHolders.WithLabelValues(mint).Set(float64(holders))
	DefaultMetrics.RewardPerTokenLast.WithLabelValues(mint).Set(float64(rewardPerToken))
}

// RecordClaim adds a claimed amount.
func RecordClaim(amount uint64) {
	DefaultMetrics.RewardsClaimed.Add(float64(amount))
}

// RecordFund adds a funded amount.
func RecordFund(amount uint64) {
	DefaultMetrics.RewardsFunded.Add(float64(amount))
}

// RecordProposalCreated increments the proposals created counter.
func RecordProposalCreated() {
	DefaultMetrics.ProposalsCreated.Inc()
}

// RecordVote increments the votes counter for one side.
func RecordVote(support bool) {
	side := "against"
	if support {
		side = "for"
	}
	DefaultMetrics.VotesCast.WithLabelValues(side).Inc()
}

// RecordEvent records an emitted event and whether publishing it failed.
func RecordEvent(eventType string, err error) {
	DefaultMetrics.EventsEmitted.WithLabelValues(eventType).Inc()
	if err != nil {
		DefaultMetrics.EventPublishErrors.WithLabelValues(eventType).Inc()
	}
}

// UpdateStreamSubscribers sets the websocket subscriber gauge.
func UpdateStreamSubscribers(n int) {
	DefaultMetrics.StreamSubscribers.Set(float64(n))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordSettlementRun records a scheduled settlement run.
func RecordSettlementRun(status string, durationSeconds float64, finishedAt int64) {
	DefaultMetrics.SettlementRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.SettlementDuration.Observe(durationSeconds)
	if status == "ok" {
		DefaultMetrics.LastSuccessfulSettlement.Set(float64(finishedAt))
	}
}

// AddUptime adds elapsed seconds to the uptime counter.
func AddUptime(seconds float64) {
	DefaultMetrics.UptimeSeconds.Add(seconds)
}
