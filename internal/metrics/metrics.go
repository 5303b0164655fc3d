// Package metrics defines the Prometheus metrics this client exposes.
// All metrics use the "dhcp4c_" namespace.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dhcp4c"

var (
	// MessagesSent counts outbound DHCP messages by phase (discover,
	// select, reboot, renew, rebind, inform, decline, release).
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Total DHCP messages sent, by phase.",
	}, []string{"phase"})

	// MessagesReceived counts inbound messages by how dispatch disposed
	// of them: accepted, dropped_identity, or dropped_parse_error.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Total inbound frames/datagrams observed by Dispatch, by outcome.",
	}, []string{"outcome"})

	// StateTransitions counts Connection state transitions.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_transitions_total",
		Help:      "Total connection state transitions, by resulting state.",
	}, []string{"state"})

	// DispatchDuration tracks how long a single Dispatch call takes.
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Duration of a single Dispatch call.",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	// RetransmitAttempts counts retransmission attempts by phase.
	RetransmitAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retransmit_attempts_total",
		Help:      "Total retransmission attempts, by phase.",
	}, []string{"phase"})

	// ConflictProbes counts duplicate-address probes by method and result.
	ConflictProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflict_probes_total",
		Help:      "Total duplicate-address probes performed, by method and result.",
	}, []string{"method", "result"})

	// LeaseState reports the client's own lease lifecycle as a labeled
	// gauge (1 = current), mirroring the Connection's State().
	LeaseState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lease_state",
		Help:      "Current lease acquisition state (1 = current).",
	}, []string{"state"})
)

func init() {
	// Pre-register every messages_received_total outcome so a scrape
	// reports dropped_identity/dropped_parse_error as zero rather than
	// a missing series, even though nothing currently increments them
	// (see DESIGN.md).
	for _, outcome := range []string{"accepted", "dropped_identity", "dropped_parse_error"} {
		MessagesReceived.WithLabelValues(outcome)
	}
}
