// Package metrics provides Prometheus instrumentation for the sync daemon:
// push channel health, reconciliation outcomes and client-side gauges.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionState is 1 for the current connection state label, 0 otherwise.
	ConnectionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chatsync_connection_state",
		Help: "Current push channel state (1 for the active state)",
	}, []string{"state"})

	// Reconnects counts dial attempts after the first one.
	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_reconnects_total",
		Help: "Total number of push channel reconnect attempts",
	})

	// EventsTotal counts inbound push events by type.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_events_total",
		Help: "Total number of push events received",
	}, []string{"type"})

	// MalformedFrames counts inbound frames that failed to decode.
	MalformedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_malformed_frames_total",
		Help: "Total number of push frames dropped as malformed",
	})

	// Reconciliations counts confirmed messages by outcome: "appended",
	// "matched" or "duplicate".
	Reconciliations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_reconciliations_total",
		Help: "Total number of confirmed messages applied, by outcome",
	}, []string{"outcome"})

	// SendFailures counts optimistic sends that timed out.
	SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_send_failures_total",
		Help: "Total number of sends that timed out to failed",
	})

	// ConfirmLatency records the time from send intent to confirmation.
	ConfirmLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatsync_confirm_latency_seconds",
		Help:    "Time from optimistic send to server confirmation",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// OpenWindows tracks the number of open conversation windows.
	OpenWindows = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_open_windows",
		Help: "Current number of open conversation windows",
	})

	// UnreadTotal tracks the sum of unread counters.
	UnreadTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_unread_total",
		Help: "Current total of unread messages across conversations",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionState,
		Reconnects,
		EventsTotal,
		MalformedFrames,
		Reconciliations,
		SendFailures,
		ConfirmLatency,
		OpenWindows,
		UnreadTotal,
	)
}

// SetState marks state as the current connection state.
func SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
