package remit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/swiftremit/swiftremit/internal/event"
	"github.com/swiftremit/swiftremit/internal/logging"
)

var (
	// OpsTotal counts orchestrator operations by type.
	OpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swiftremit",
			Name:      "remittance_operations_total",
			Help:      "Total remittance operations by type.",
		},
		[]string{"type"},
	)

	// OpDuration observes operation latency by type.
	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "swiftremit",
			Name:      "remittance_operation_duration_seconds",
			Help:      "Remittance operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"type"},
	)

	// SettlementsTotal counts successful finalizations.
	SettlementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "swiftremit",
			Name:      "settlements_total",
			Help:      "Total remittances settled, including batch legs.",
		},
	)
)

func init() {
	prometheus.MustRegister(OpsTotal, OpDuration, SettlementsTotal)
}

// observeOp increments the operation counter and returns a function to observe duration.
func observeOp(opType string) func() {
	OpsTotal.WithLabelValues(opType).Inc()
	start := time.Now()
	return func() {
		OpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}
}

func observeSettlement() {
	SettlementsTotal.Inc()
}

// flushEvents hands committed events to the sink. A sink failure after
// commit is logged, not surfaced: the state change already happened.
func flushEvents(ctx context.Context, rec *event.Recorder) {
	if err := rec.Flush(ctx); err != nil {
		logging.L(ctx).Error("failed to flush events", "error", err)
	}
}
