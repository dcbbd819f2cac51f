package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	heartbeatWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "punchd",
			Subsystem: "tracker",
			Name:      "heartbeat_writes_total",
			Help:      "Number of heartbeat record writes.",
		},
	)
	forcedWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "punchd",
			Subsystem: "store",
			Name:      "forced_write_failures_total",
			Help:      "Number of synchronous state commits that failed.",
		},
	)
	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "punchd",
			Subsystem: "tracker",
			Name:      "reconcile_runs_total",
			Help:      "Number of reconciliation runs by outcome.",
		}, []string{"outcome"},
	)
	idleEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "punchd",
			Subsystem: "tracker",
			Name:      "idle_events_total",
			Help:      "Number of idle events emitted, by boundary source.",
		}, []string{"source"},
	)
	clockTamperingDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "punchd",
			Subsystem: "tracker",
			Name:      "clock_tampering_total",
			Help:      "Number of reconciled gaps where the wall clock disagreed with the monotonic clock.",
		},
	)
	feedDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "punchd",
			Subsystem: "feed",
			Name:      "dropped_total",
			Help:      "Number of feed envelopes dropped because a subscriber could not keep up.",
		}, []string{"kind"},
	)
	sessionRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "punchd",
			Subsystem: "tracker",
			Name:      "session_running",
			Help:      "Whether a tracked session is currently running (1 or 0).",
		},
	)
	idleGapSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "punchd",
			Subsystem: "tracker",
			Name:      "idle_gap_seconds",
			Help:      "Reconciled gap lengths in seconds.",
			Buckets:   []float64{60, 120, 300, 900, 1800, 3600, 14400, 43200},
		},
	)
)

// Reconcile outcomes used as label values.
const (
	ReconcileNoop    = "noop"
	ReconcileResumed = "resumed"
	ReconcileClosed  = "closed"
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{heartbeatWrites, forcedWriteFailures, reconcileRuns, idleEvents, clockTamperingDetected, feedDrops, sessionRunning, idleGapSeconds}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncHeartbeatWrite() {
	if regOK.Load() {
		heartbeatWrites.Inc()
	}
}

func IncForcedWriteFailure() {
	if regOK.Load() {
		forcedWriteFailures.Inc()
	}
}

func IncReconcile(outcome string) {
	if regOK.Load() {
		reconcileRuns.WithLabelValues(outcome).Inc()
	}
}

func IncIdleEvent(source string) {
	if regOK.Load() {
		idleEvents.WithLabelValues(source).Inc()
	}
}

func IncClockTampering() {
	if regOK.Load() {
		clockTamperingDetected.Inc()
	}
}

func IncFeedDrop(kind string) {
	if regOK.Load() {
		feedDrops.WithLabelValues(kind).Inc()
	}
}

func SetSessionRunning(running bool) {
	if regOK.Load() {
		if running {
			sessionRunning.Set(1)
		} else {
			sessionRunning.Set(0)
		}
	}
}

func ObserveIdleGap(seconds float64) {
	if regOK.Load() {
		idleGapSeconds.Observe(seconds)
	}
}
