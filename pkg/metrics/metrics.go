// Package metrics exposes planning measurements as Prometheus metrics and
// writes them to a node-exporter textfile after a run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pciplan/pkg/model"
)

// Collector bundles the planner metrics. It implements planner.Recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	Assignments    *prometheus.CounterVec
	Candidates     *prometheus.HistogramVec
	FallbackStages *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
}

// NewCollector registers the planner metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	assignments, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pciplan_assignments_total",
		Help: "Planned cells, labeled by network type and assignment reason.",
	}, []string{"network", "reason"}), "pciplan_assignments_total")
	if err != nil {
		return nil, err
	}

	candidates, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pciplan_candidates",
		Help:    "Number of ranked PCI candidates per planned cell.",
		Buckets: []float64{0, 1, 3, 10, 30, 100, 300, 504, 1008},
	}, []string{"network"}), "pciplan_candidates")
	if err != nil {
		return nil, err
	}

	stages, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pciplan_fallback_stages_total",
		Help: "Fallback stages attempted after ranking at the run reuse distance found no candidate: each relaxed threshold tried, successful or not, and each placeholder assigned.",
	}, []string{"stage"}), "pciplan_fallback_stages_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pciplan_run_duration_seconds",
		Help:    "Wall time of a planning run, verification included.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"network"}), "pciplan_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		Assignments:    assignments,
		Candidates:     candidates,
		FallbackStages: stages,
		RunDuration:    duration,
	}, nil
}

func (c *Collector) ObserveAssignment(network model.NetworkType, reason model.Reason, candidates int) {
	if c == nil {
		return
	}
	c.Assignments.WithLabelValues(string(network), string(reason)).Inc()
	if reason.Succeeded() {
		c.Candidates.WithLabelValues(string(network)).Observe(float64(candidates))
	}
}

func (c *Collector) ObserveFallbackStage(stage string) {
	if c == nil {
		return
	}
	c.FallbackStages.WithLabelValues(stage).Inc()
}

func (c *Collector) ObserveRun(network model.NetworkType, d time.Duration) {
	if c == nil {
		return
	}
	c.RunDuration.WithLabelValues(string(network)).Observe(d.Seconds())
}

// WriteTextfile writes the gathered metrics in text exposition format.
// The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
