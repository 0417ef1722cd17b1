package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncRequest("quote")
	m.IncRecord(OutcomeOK)
	m.IncError("timeout")
	m.IncJob("Queued")
	m.AddDuplicates(2)
	m.IncBatch()
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncRequest("quote")
	m.IncRequest("quote")
	m.IncError("not_found")
	m.AddDuplicates(3)
	m.AddDuplicates(0)
	m.IncRecord(OutcomeOK)
	m.IncRecord(OutcomePartial)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("quote")); got != 2 {
		t.Fatalf("requests=%v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("not_found")); got != 1 {
		t.Fatalf("errors=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RecordsTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok records=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RecordsTotal.WithLabelValues("partial")); got != 1 {
		t.Fatalf("partial records=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DuplicatesTotal); got != 3 {
		t.Fatalf("duplicates=%v, want 3", got)
	}
}
