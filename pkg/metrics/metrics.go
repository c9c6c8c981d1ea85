package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "submitter_cycles_total",
		Help: "The total number of scheduler cycles by outcome status",
	}, []string{"outcome"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "submitter_cycle_duration_seconds",
		Help:    "Time taken to run one scheduler cycle",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // Start at 100ms with 10 buckets doubling in size
	})

	GateSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "submitter_gate_skips_total",
		Help: "The total number of gate skips by reason",
	}, []string{"reason"})

	DegradedDecisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "submitter_degraded_decisions_total",
		Help: "Gate decisions that substituted a permissive fallback for unavailable remote data",
	})

	BroadcastAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "submitter_broadcast_attempts_total",
		Help: "The total number of broadcast attempts by result",
	}, []string{"result"})

	PredictedValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "submitter_predicted_value",
		Help: "The most recently submitted predicted value",
	})

	EndpointFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "submitter_endpoint_failures_total",
		Help: "The total number of failed remote calls by endpoint",
	}, []string{"endpoint"})

	EndpointsDisabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "submitter_endpoints_disabled",
		Help: "The number of currently disabled endpoints in the pool",
	})

	PoolResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "submitter_pool_resets_total",
		Help: "Number of times the endpoint pool was fully reset after exhaustion",
	})

	AuditWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "submitter_audit_write_errors_total",
		Help: "Number of audit records that could not be persisted",
	})

	CyclePanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "submitter_cycle_panics_total",
		Help: "Number of scheduler cycles that recovered from a panic",
	})
)
