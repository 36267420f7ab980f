package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollectorsAreNoops(t *testing.T) {
	var m *Collectors
	m.RelayStarted()
	m.BytesRelayed("sent", 10)
	m.TaskFinished("completed")
	m.StepExecuted("click", "ok")
}

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RelayStarted()
	m.RelayStarted()
	m.RelayStopped()
	m.BytesRelayed("sent", 42)
	m.BytesRelayed("sent", 0)
	m.TaskStarted()
	m.TaskFinished("failed")

	if got := testutil.ToFloat64(m.activeRelays); got != 1 {
		t.Fatalf("active relays = %v", got)
	}
	if got := testutil.ToFloat64(m.relayBytes.WithLabelValues("sent")); got != 42 {
		t.Fatalf("bytes sent = %v", got)
	}
	if got := testutil.ToFloat64(m.tasks.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed tasks = %v", got)
	}
	if got := testutil.ToFloat64(m.runningTasks); got != 0 {
		t.Fatalf("running tasks = %v", got)
	}
}
