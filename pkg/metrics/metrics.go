// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks gateway HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Gateway HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total gateway HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total gateway HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// GatewayCallsTotal tracks engine-side remote gateway calls.
	GatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_gateway_calls_total",
			Help: "Remote gateway calls issued by the sync engine",
		},
		[]string{"operation", "result"},
	)

	// ReactionTogglesTotal tracks reaction toggle outcomes.
	ReactionTogglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_reaction_toggles_total",
			Help: "Reaction toggle operations by outcome",
		},
		[]string{"result"},
	)

	// PendingReactions tracks in-flight reaction mutations.
	PendingReactions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_pending_reactions",
			Help: "Reaction mutations currently awaiting confirmation",
		},
	)

	// SendsTotal tracks message send outcomes.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_sends_total",
			Help: "Message send operations by outcome",
		},
		[]string{"result"},
	)

	// TimelineLoadsTotal tracks timeline load outcomes.
	TimelineLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_timeline_loads_total",
			Help: "Timeline load operations by outcome",
		},
		[]string{"result"},
	)

	// SnapshotWritesTotal tracks snapshot store write-throughs.
	SnapshotWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_snapshot_writes_total",
			Help: "Snapshot store write operations",
		},
		[]string{"kind"},
	)

	// FaultInjectionsTotal tracks gateway-side injected reaction failures.
	FaultInjectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_fault_injections_total",
			Help: "Reaction updates failed by the fault-injection hook",
		},
	)
)

// Toggle outcome labels.
const (
	ToggleConfirmed    = "confirmed"
	ToggleRolledBack   = "rolled_back"
	ToggleRejectedBusy = "rejected_pending"
	ResultOK           = "ok"
	ResultError        = "error"
)

// RecordRequest records metrics for a gateway HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordGatewayCall records an engine-side remote call outcome.
func RecordGatewayCall(operation string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	GatewayCallsTotal.WithLabelValues(operation, result).Inc()
}
