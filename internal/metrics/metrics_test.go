package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.Observations.Inc()
	m.DischargeEvents.WithLabelValues("discharge_screen_on").Inc()
	m.LastDischargeRate.WithLabelValues("discharge_screen_on").Set(42)
	m.ReportsDropped.Add(2)

	if got := testutil.ToFloat64(m.Observations); got != 1 {
		t.Errorf("Observations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LastDischargeRate.WithLabelValues("discharge_screen_on")); got != 42 {
		t.Errorf("LastDischargeRate = %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.ReportsDropped); got != 2 {
		t.Errorf("ReportsDropped = %v, want 2", got)
	}

	n, err := testutil.GatherAndCount(registry)
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	// Vectors without children are not gathered.
	if n != 6 {
		t.Errorf("gathered %d series, want 6", n)
	}
}

func TestNewMetrics_DoubleRegisterPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	defer func() {
		if recover() == nil {
			t.Fatal("second NewMetrics on the same registry did not panic")
		}
	}()
	NewMetrics(registry)
}
