package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveGeneration(3, 20*time.Millisecond)
	m.ObserveGeneration(2, 10*time.Millisecond)
	if got := testutil.ToFloat64(m.reportsGenerated); got != 5 {
		t.Errorf("reports_generated_total = %v, want 5", got)
	}

	m.RosterUpload(true)
	m.RosterUpload(false)
	m.RosterUpload(false)
	if got := testutil.ToFloat64(m.rosterUploads.WithLabelValues("rejected")); got != 2 {
		t.Errorf("rejected uploads = %v, want 2", got)
	}

	m.Transition(1, nil)
	m.Transition(1, errors.New("boom"))
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("1", "error")); got != 1 {
		t.Errorf("step 1 errors = %v, want 1", got)
	}

	m.SetSessionsActive(4)
	if got := testutil.ToFloat64(m.sessionsActive); got != 4 {
		t.Errorf("sessions_active = %v, want 4", got)
	}
}

func TestRegistryGathers(t *testing.T) {
	m := New()
	m.GenerationFailed("incomplete")
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "qla_report_generation_errors_total" {
			found = true
		}
	}
	if !found {
		t.Error("generation error counter not registered")
	}
}
