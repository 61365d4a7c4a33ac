package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Execution core counters, gauges and histograms. Chain-scoped series carry a
// "chain" label; fee series carry the priority tier.

var (
	// Submission
	TxSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "submission",
		Name:      "submitted_total",
		Help:      "Total transactions accepted by the chain on submit",
	}, []string{"chain", "priority"})

	TxSubmitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "submission",
		Name:      "errors_total",
		Help:      "Total submissions that failed after retries",
	}, []string{"chain", "reason"})

	TxSubmitRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "submission",
		Name:      "retries_total",
		Help:      "Total submit attempts retried after a transient error",
	}, []string{"chain"})

	TxSubmitLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "executor",
		Subsystem: "submission",
		Name:      "submit_duration_seconds",
		Help:      "Duration of the chain submit call including retries",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"chain"})

	TxWaitTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "submission",
		Name:      "wait_timeouts_total",
		Help:      "Total client-side confirmation waits that expired",
	}, []string{"chain"})

	// Ledger
	TxTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "ledger",
		Name:      "transitions_total",
		Help:      "Total status transitions applied to ledger entries",
	}, []string{"chain", "status"})

	LedgerPendingSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "executor",
		Subsystem: "ledger",
		Name:      "pending_entries",
		Help:      "Number of non-terminal ledger entries",
	})

	LedgerHistorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "executor",
		Subsystem: "ledger",
		Name:      "history_entries",
		Help:      "Number of terminal entries kept in history",
	})

	LedgerHistoryLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "executor",
		Subsystem: "ledger",
		Name:      "history_limit",
		Help:      "Current maximum history size",
	})

	LedgerHistoryEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "ledger",
		Name:      "history_evicted_total",
		Help:      "Total history entries evicted by the trimmer",
	})

	LedgerCallbackErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "ledger",
		Name:      "callback_errors_total",
		Help:      "Total status callbacks that returned an error or panicked",
	})

	// Poller
	PollerCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "poller",
		Name:      "cycles_total",
		Help:      "Total confirmation poller cycles",
	})

	PollerCycleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "executor",
		Subsystem: "poller",
		Name:      "cycle_duration_seconds",
		Help:      "Confirmation poller cycle duration",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	PollerCheckErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "poller",
		Name:      "check_errors_total",
		Help:      "Total per-entry status checks that failed and were retried next cycle",
	}, []string{"chain"})

	// Fee estimator
	FeeRefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "fee",
		Name:      "refresh_total",
		Help:      "Total successful fee sample refreshes",
	})

	FeeRefreshErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "fee",
		Name:      "refresh_errors_total",
		Help:      "Total failed fee sample refreshes",
	})

	FeeEstimatePerUnit = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "executor",
		Subsystem: "fee",
		Name:      "estimate_per_unit",
		Help:      "Most recent fee recommendation per unit",
	}, []string{"priority", "component"})

	FeeOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "fee",
		Name:      "outcomes_total",
		Help:      "Total recorded submission outcomes",
	}, []string{"result"})

	// RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total chain RPC calls by method and outcome",
	}, []string{"chain", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total RPC calls delayed by the rate limiter",
	}, []string{"chain"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "executor",
		Subsystem: "rpc",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per chain (0=closed, 1=open, 2=half-open)",
	}, []string{"chain"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts suppressed by cooldown",
	}, []string{"channel", "type"})

	// Sinks and runtime config
	HistoryArchiveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "store",
		Name:      "history_archive_errors_total",
		Help:      "Total evicted history batches that could not be archived",
	})

	StatusPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "store",
		Name:      "status_publish_errors_total",
		Help:      "Total terminal status events that could not be published",
	})

	RuntimeConfigWatcherErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "executor",
		Subsystem: "runtimecfg",
		Name:      "errors_total",
		Help:      "Total runtime config poll failures",
	})
)
