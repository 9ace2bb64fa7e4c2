// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Poll loop metrics
	PollTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plcsnmp_poll_ticks_total",
			Help: "Total number of poll ticks by result",
		},
		[]string{"result"},
	)

	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plcsnmp_poll_duration_seconds",
			Help:    "Duration of one fetch-and-write tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "plcsnmp_active_jobs",
			Help: "Number of poll loops in the active session",
		},
	)

	// Supervisor metrics
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "plcsnmp_sessions_started_total",
			Help: "Total number of sessions started",
		},
	)

	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "plcsnmp_reconnects_total",
			Help: "Total number of controller connections discarded for reconnect",
		},
	)

	SupervisorTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plcsnmp_supervisor_transitions_total",
			Help: "Total number of supervisor state transitions by target state",
		},
		[]string{"state"},
	)

	SupervisorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plcsnmp_supervisor_state",
			Help: "Current supervisor state (1 = current, 0 = not current)",
		},
		[]string{"state"},
	)

	// Event hub metrics
	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "plcsnmp_events_dropped_total",
			Help: "Total number of events dropped because no consumer kept up",
		},
	)
)

func init() {
	prometheus.MustRegister(PollTicksTotal)
	prometheus.MustRegister(PollDuration)
	prometheus.MustRegister(ActiveJobs)
	prometheus.MustRegister(SessionsStarted)
	prometheus.MustRegister(ReconnectsTotal)
	prometheus.MustRegister(SupervisorTransitions)
	prometheus.MustRegister(SupervisorState)
	prometheus.MustRegister(EventsDropped)
}

// SetState marks state as the current supervisor state among all known states
func SetState(current string, known []string) {
	for _, s := range known {
		if s == current {
			SupervisorState.WithLabelValues(s).Set(1)
		} else {
			SupervisorState.WithLabelValues(s).Set(0)
		}
	}
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
