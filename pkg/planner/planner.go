// Package planner drives a planning run: it orders the requested cells, assigns
// them one at a time against the live directory, and verifies the final state.
//
// Decisions are sequential and order dependent. Cell N is planned with every
// commit of cells 1..N-1 visible, which is what lets siblings at one site pick
// distinct modulus values.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"pciplan/pkg/cell"
	"pciplan/pkg/cosite"
	"pciplan/pkg/geo"
	"pciplan/pkg/model"
	"pciplan/pkg/ranker"
	"pciplan/pkg/reuse"
)

// FallbackStagesKm are the relaxed thresholds tried, in order, when nothing
// keeps the run threshold. A stage is skipped unless it is below the run threshold.
var FallbackStagesKm = []float64{3.0, 2.0}

// Recorder receives planning measurements. A nil Recorder is allowed.
type Recorder interface {
	ObserveAssignment(network model.NetworkType, reason model.Reason, candidates int)
	ObserveFallbackStage(stage string)
	ObserveRun(network model.NetworkType, d time.Duration)
}

// Planner assigns PCIs for one network pool.
type Planner struct {
	req       Request
	cells     *cell.Directory
	calc      *geo.Calculator
	validator *reuse.Validator
	sites     *cosite.Checker
	ranker    *ranker.Ranker
	recorder  Recorder
	logger    *slog.Logger
	cached    bool
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = l
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Planner) {
		p.recorder = r
	}
}

// WithCaching toggles the distance and reuse memo tables. Results are identical
// either way.
func WithCaching(enabled bool) Option {
	return func(p *Planner) {
		p.cached = enabled
	}
}

// New wires the engine around a directory. The directory must hold the pool
// of req.Network.
func New(cells *cell.Directory, req Request, opts ...Option) (*Planner, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if cells.Network() != req.Network {
		return nil, fmt.Errorf("%w: directory holds %s, request asks for %s", ErrInvalidNetwork, cells.Network(), req.Network)
	}

	p := &Planner{
		req:    req,
		cells:  cells,
		logger: slog.Default(),
		cached: true,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.calc = geo.NewCalculator(p.cached)
	p.validator = reuse.New(cells, p.calc, p.cached)
	p.sites = cosite.New(cells, req.Network)
	p.ranker = ranker.New(req.Network, p.validator, p.sites, p.logger)

	cells.OnChange(func(ch cell.Change) {
		if n := p.validator.Invalidate(ch); n > 0 {
			p.logger.Debug("Reuse cache evicted", "cell", ch.Key, "entries", n)
		}
	})
	return p, nil
}

// Request returns the run parameters.
func (p *Planner) Request() Request {
	return p.req
}

// Assign plans a single cell and commits the result.
//
// A cell that cannot be planned returns an error wrapping model.ErrCellNotFound
// or model.ErrNoLocation together with an Outcome carrying the matching
// reason; such errors are per-cell results (see IsCellError). Exhausted
// candidates are recovered with the placeholder and return no error. Any other
// error is a failed commit and leaves the directory unusable for the run.
func (p *Planner) Assign(key model.CellKey) (model.Outcome, error) {
	c, err := p.cells.Lookup(key)
	if err != nil {
		p.logger.Debug("Cell not in directory", "cell", key)
		p.observe(model.ReasonCellNotFound, 0)
		return model.Outcome{Reason: model.ReasonCellNotFound}, err
	}

	out := model.Outcome{Frequency: c.Frequency}
	if !c.HasLocation() {
		p.logger.Debug("Cell has no location", "cell", key)
		out.Reason = model.ReasonNoLocation
		p.observe(out.Reason, 0)
		return out, fmt.Errorf("%w: %s", model.ErrNoLocation, key)
	}

	var required *int
	out.Reason = model.ReasonFreePlanning
	if p.req.InheritModulus && c.PCI != nil {
		required = model.ModOf(c.PCI, p.req.Network.Modulus())
		out.Reason = model.ReasonStrictInheritance
	}

	t := ranker.Target{Key: key, Position: *c.Position, Frequency: c.Frequency}
	cands := p.ranker.Rank(t, p.req.ReuseDistanceKm, required)
	if len(cands) == 0 {
		var stage float64
		cands, stage, err = p.fallback(t, required)
		if err == nil {
			out.Reason = model.DowngradeReason(p.req.ReuseDistanceKm, stage)
		}
	}

	var pci int
	switch {
	case err == nil:
		best := cands[0]
		pci = best.PCI
		out.PredictedKm = best.MinDistanceKm
		out.Candidates = len(cands)
	case errors.Is(err, model.ErrNoCompliantCandidate):
		pci = p.placeholder(key)
		out.Reason = model.ReasonFallback
		out.PredictedKm = p.validator.MinDistanceKm(pci, t.Position, t.Frequency, key)
		p.logger.Warn("No compliant PCI, placeholder assigned",
			"cell", key, "pci", pci, "threshold_km", p.req.ReuseDistanceKm, "required_mod", formatMod(required))
		p.observeStage("placeholder")
	default:
		return model.Outcome{}, err
	}

	if err := p.cells.SetPCI(key, pci); err != nil {
		return model.Outcome{}, fmt.Errorf("%w: %s: %v", ErrCommit, key, err)
	}
	out.PCI = model.Int(pci)

	p.logger.Debug("PCI assigned",
		"cell", key, "pci", pci, "reason", out.Reason,
		"predicted_km", out.PredictedKm, "candidates", out.Candidates)
	p.observe(out.Reason, out.Candidates)
	return out, nil
}

// fallback retries ranking at each relaxed stage below the run threshold. The
// run threshold itself is never changed. It returns ErrNoCompliantCandidate
// when every stage comes back empty.
func (p *Planner) fallback(t ranker.Target, required *int) ([]ranker.Candidate, float64, error) {
	for _, stage := range FallbackStagesKm {
		if p.req.ReuseDistanceKm <= stage {
			continue
		}
		cands := p.ranker.Rank(t, stage, required)
		p.observeStage(strconv.FormatFloat(stage, 'f', 1, 64) + "km")
		if len(cands) > 0 {
			p.logger.Warn("Reuse distance relaxed",
				"cell", t.Key, "from_km", p.req.ReuseDistanceKm, "to_km", stage, "candidates", len(cands))
			return cands, stage, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: %s at %.1f km", model.ErrNoCompliantCandidate, t.Key, p.req.ReuseDistanceKm)
}

// IsCellError reports whether err from Assign is a per-cell outcome rather
// than a failure of the run.
func IsCellError(err error) bool {
	return errors.Is(err, model.ErrCellNotFound) || errors.Is(err, model.ErrNoLocation)
}

// placeholder is the deterministic last-resort PCI: network_id modulo the
// size of the PCI range.
func (p *Planner) placeholder(key model.CellKey) int {
	n := int64(p.req.Network.PCICount())
	return int(((key.NetworkID % n) + n) % n)
}

// Plan orders the requested cells, assigns them in that order and verifies the
// final state. Results come back in request order; duplicate requests share one
// assignment. Cancellation is checked between cells and aborts the whole run.
func (p *Planner) Plan(ctx context.Context, keys []model.CellKey) (*Run, error) {
	run := &Run{
		ID:        uuid.New(),
		Request:   p.req,
		StartedAt: time.Now(),
	}

	original := make(map[model.CellKey]*int, len(keys))
	for _, k := range keys {
		if c, err := p.cells.Lookup(k); err == nil && c.PCI != nil {
			original[k] = model.Int(*c.PCI)
		}
	}

	order := Order(p.cells, keys)
	p.logger.Info("Planning run started",
		"run_id", run.ID, "network", p.req.Network, "cells", len(order),
		"reuse_km", p.req.ReuseDistanceKm, "inherit", p.req.InheritModulus)

	outcomes := make(map[model.CellKey]model.Outcome, len(order))
	for _, k := range order {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("planning run %s aborted: %w", run.ID, err)
		}
		out, err := p.Assign(k)
		if err != nil && !IsCellError(err) {
			return nil, err
		}
		outcomes[k] = out
	}

	verifier := reuse.New(p.cells, geo.NewCalculator(false), false)
	run.Results = make([]model.Result, 0, len(keys))
	for _, k := range keys {
		run.Results = append(run.Results, p.result(k, original[k], outcomes[k], verifier))
	}

	run.FinishedAt = time.Now()
	run.Stats = Summarize(run.Results, p.req.ReuseDistanceKm)
	if p.recorder != nil {
		p.recorder.ObserveRun(p.req.Network, run.FinishedAt.Sub(run.StartedAt))
	}

	dist, reused := p.calc.Stats(), p.validator.Stats()
	p.logger.Info("Planning run finished",
		"run_id", run.ID,
		"duration", run.FinishedAt.Sub(run.StartedAt),
		"assigned", run.Stats.Assigned,
		"fallbacks", run.Stats.Fallbacks,
		"placeholders", run.Stats.Placeholders,
		"distance_cache_hits", dist.Hits,
		"reuse_cache_hits", reused.Hits,
		"reuse_cache_evictions", reused.Evictions)
	return run, nil
}

func (p *Planner) result(key model.CellKey, orig *int, out model.Outcome, verifier *reuse.Validator) model.Result {
	mod := p.req.Network.Modulus()
	res := model.Result{
		Key:         key,
		Network:     p.req.Network,
		OriginalPCI: orig,
		AssignedPCI: out.PCI,
		OriginalMod: model.ModOf(orig, mod),
		AssignedMod: model.ModOf(out.PCI, mod),
		Frequency:   out.Frequency,
		Reason:      out.Reason,
		PredictedKm: out.PredictedKm,
	}
	res.ModMatched = model.CompareMod(res.OriginalMod, res.AssignedMod)

	c, err := p.cells.Lookup(key)
	if err != nil {
		res.Name = (&model.Cell{Key: key}).DisplayName()
		res.Verified = model.VerifiedDistance{Status: model.VerifyAssignmentFailed}
		return res
	}
	res.Name = c.DisplayName()
	if c.Position != nil {
		res.Latitude = model.Float(c.Position.Lat)
		res.Longitude = model.Float(c.Position.Lon)
	}
	res.Verified = Verify(c, out.PCI, verifier)
	return res
}

func (p *Planner) observe(reason model.Reason, candidates int) {
	if p.recorder != nil {
		p.recorder.ObserveAssignment(p.req.Network, reason, candidates)
	}
}

func (p *Planner) observeStage(stage string) {
	if p.recorder != nil {
		p.recorder.ObserveFallbackStage(stage)
	}
}

func formatMod(m *int) any {
	if m == nil {
		return "any"
	}
	return *m
}
