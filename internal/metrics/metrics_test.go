package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	MessagesSent.WithLabelValues("discover").Inc()
	MessagesReceived.WithLabelValues("accepted").Inc()
	StateTransitions.WithLabelValues("PACKET").Inc()
	DispatchDuration.Observe(0.0002)
	RetransmitAttempts.WithLabelValues("discover").Inc()
	ConflictProbes.WithLabelValues("arp", "clear").Inc()
	LeaseState.WithLabelValues("UDP").Set(1)

	if got := testutil.ToFloat64(MessagesSent.WithLabelValues("discover")); got != 1 {
		t.Errorf("MessagesSent = %v, want 1", got)
	}
	if got := testutil.ToFloat64(LeaseState.WithLabelValues("UDP")); got != 1 {
		t.Errorf("LeaseState = %v, want 1", got)
	}
}

func TestMetricsNamespace(t *testing.T) {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range mfs {
		name := mf.GetName()
		if strings.HasPrefix(name, "go_") ||
			strings.HasPrefix(name, "process_") ||
			strings.HasPrefix(name, "promhttp_") {
			continue
		}
		if !strings.HasPrefix(name, "dhcp4c_") {
			t.Errorf("metric %q does not have dhcp4c_ prefix", name)
		}
	}
}
