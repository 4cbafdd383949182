package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Filter("palette")
	m.Filter("palette")
	m.Verify("inconclusive")
	m.Rebuild(true, 0.01, 2, 10, 40, 3)

	if got := testutil.ToFloat64(m.filter.WithLabelValues("palette")); got != 2 {
		t.Fatalf("filter palette=%v", got)
	}
	if got := testutil.ToFloat64(m.verify.WithLabelValues("inconclusive")); got != 1 {
		t.Fatalf("verify inconclusive=%v", got)
	}
	if got := testutil.ToFloat64(m.indexVersion); got != 3 {
		t.Fatalf("version=%v", got)
	}
	if got := testutil.ToFloat64(m.compileErrors); got != 2 {
		t.Fatalf("compile errors=%v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Trigger("w", "handled")
	m.Match("p")
	m.Rebuild(false, 1, 0, 0, 0, 0)
}
