package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"pciplan/pkg/model"
	"pciplan/pkg/planner"
)

var _ planner.Recorder = (*Collector)(nil)

func TestCollectorRecordsAssignments(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveAssignment(model.LTE, model.ReasonFreePlanning, 120)
	c.ObserveAssignment(model.LTE, model.ReasonFreePlanning, 80)
	c.ObserveAssignment(model.LTE, model.ReasonCellNotFound, 0)
	c.ObserveFallbackStage("3.0km")
	c.ObserveRun(model.LTE, 1500*time.Millisecond)

	if got := testutil.ToFloat64(c.Assignments.WithLabelValues("LTE", string(model.ReasonFreePlanning))); got != 2 {
		t.Fatalf("pciplan_assignments_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.FallbackStages.WithLabelValues("3.0km")); got != 1 {
		t.Fatalf("pciplan_fallback_stages_total = %v, want 1", got)
	}
	// Failed cells are counted but carry no candidate sample.
	if count := histogramSampleCount(t, reg, "pciplan_candidates", map[string]string{"network": "LTE"}); count != 2 {
		t.Fatalf("pciplan_candidates sample_count = %d, want 2", count)
	}
	if count := histogramSampleCount(t, reg, "pciplan_run_duration_seconds", map[string]string{"network": "LTE"}); count != 1 {
		t.Fatalf("pciplan_run_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestNewCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	second.ObserveFallbackStage("placeholder")
	if got := testutil.ToFloat64(first.FallbackStages.WithLabelValues("placeholder")); got != 1 {
		t.Fatalf("collectors not shared, got %v", got)
	}
}

func TestFallbackStagesCountAttempts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	// One exhausted cell: both relaxed stages fail, then the placeholder.
	for _, stage := range []string{"3.0km", "2.0km", "placeholder"} {
		c.ObserveFallbackStage(stage)
	}

	expected := `
# HELP pciplan_fallback_stages_total Fallback stages attempted after ranking at the run reuse distance found no candidate: each relaxed threshold tried, successful or not, and each placeholder assigned.
# TYPE pciplan_fallback_stages_total counter
pciplan_fallback_stages_total{stage="2.0km"} 1
pciplan_fallback_stages_total{stage="3.0km"} 1
pciplan_fallback_stages_total{stage="placeholder"} 1
`
	if err := testutil.CollectAndCompare(c.FallbackStages, strings.NewReader(expected), "pciplan_fallback_stages_total"); err != nil {
		t.Fatal(err)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveAssignment(model.NR, model.ReasonFreePlanning, 1)
	c.ObserveFallbackStage("2.0km")
	c.ObserveRun(model.NR, time.Second)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveAssignment(model.NR, model.ReasonStrictInheritance, 33)

	path := filepath.Join(t.TempDir(), "textfile", "pciplan.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	for _, want := range []string{
		`pciplan_assignments_total{network="NR",reason="strict_modulus_inheritance"} 1`,
		"pciplan_candidates_count",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in textfile:\n%s", want, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
