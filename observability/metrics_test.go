package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCallMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCallMetrics(reg)

	m.Observe("insert_flat_string", "ok", 5*time.Millisecond, 3)
	m.Observe("insert_flat_string", "ok", time.Millisecond, 2)
	m.Observe("remove_owned_numeric", "not_found", time.Millisecond, 0)
	m.Observe("", "", time.Millisecond, 0)

	if got := testutil.ToFloat64(m.calls.WithLabelValues("insert_flat_string", "ok")); got != 2 {
		t.Fatalf("expected 2 ok calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.writes.WithLabelValues("insert_flat_string")); got != 5 {
		t.Fatalf("expected 5 writes, got %v", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("remove_owned_numeric", "not_found")); got != 1 {
		t.Fatalf("expected 1 not_found call, got %v", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("unknown", "unknown")); got != 1 {
		t.Fatalf("expected blank labels to be normalised, got %v", got)
	}
	if n := testutil.CollectAndCount(m.latency); n != 3 {
		t.Fatalf("expected 3 latency series, got %d", n)
	}
}

func TestNilCallMetricsIsSafe(t *testing.T) {
	var m *CallMetrics
	m.Observe("x", "ok", time.Millisecond, 1)
}

func TestCallsRegistersWithDefaultRegistry(t *testing.T) {
	m := Calls()
	if m != Calls() {
		t.Fatalf("expected Calls to return a single instance")
	}
	before := testutil.ToFloat64(m.calls.WithLabelValues("list_owners", "ok"))
	m.Observe("list_owners", "ok", time.Millisecond, 0)
	if got := testutil.ToFloat64(m.calls.WithLabelValues("list_owners", "ok")); got != before+1 {
		t.Fatalf("expected default counter to advance, got %v from %v", got, before)
	}

	var already prometheus.AlreadyRegisteredError
	if err := prometheus.DefaultRegisterer.Register(m.calls); !errors.As(err, &already) {
		t.Fatalf("expected calls counter to be registered with the default registry, got %v", err)
	}
}
