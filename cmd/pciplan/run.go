package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pciplan/pkg/cell"
	"pciplan/pkg/config"
	"pciplan/pkg/db"
	"pciplan/pkg/db/maintenance"
	"pciplan/pkg/export"
	"pciplan/pkg/logging"
	"pciplan/pkg/metrics"
	"pciplan/pkg/model"
	"pciplan/pkg/planner"
	"pciplan/pkg/probe"
	"pciplan/pkg/snapshot"
	"pciplan/pkg/store"
	"pciplan/pkg/version"
)

var errNoCells = errors.New("no cells available for the network")

type importOptions struct {
	cells   string
	network string
}

type planOptions struct {
	request    string
	cells      string
	network    string
	reuse      string
	inherit    bool
	inheritSet bool
	outDir     string
	writeBack  bool
}

// apply overrides config values with the flags that were given.
func (o planOptions) apply(cfg *config.Config) error {
	if o.request != "" {
		cfg.Input.Request = o.request
	}
	if o.cells != "" {
		cfg.Input.Cells = o.cells
	}
	if o.network != "" {
		cfg.Planning.Network = o.network
	}
	if o.reuse != "" {
		d, err := config.ParseReuseDistance(o.reuse)
		if err != nil {
			return fmt.Errorf("--reuse: %w", err)
		}
		cfg.Planning.ReuseDistance = d
	}
	if o.inheritSet {
		cfg.Planning.InheritModulus = o.inherit
	}
	if o.outDir != "" {
		cfg.Output.Dir = o.outDir
	}
	return cfg.Validate()
}

// setup loads the config and starts logging. The returned cleanup flushes
// and closes the log files.
func setup(configPath string) (*config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	slog.Info("pciplan started", "version", version.Version, "config", configPath)
	return cfg, cleanupLogs, nil
}

func initDB(cfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func runImport(ctx context.Context, configPath string, opts importOptions, out io.Writer) error {
	cfg, cleanup, err := setup(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.network != "" {
		cfg.Planning.Network = opts.network
	}
	if opts.cells != "" {
		cfg.Input.Cells = opts.cells
	}
	network, err := cfg.Planning.NetworkType()
	if err != nil {
		return err
	}

	_, st, err := initDB(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := maintenance.ImportSnapshot(ctx, st, network, cfg.Input.Cells, true)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s has no rows or does not exist", errNoCells, cfg.Input.Cells)
	}
	fmt.Fprintf(out, "Imported %d %s cells from %s\n", n, network, cfg.Input.Cells)
	return nil
}

func runPlan(ctx context.Context, configPath string, opts planOptions, out io.Writer) error {
	cfg, cleanup, err := setup(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := opts.apply(cfg); err != nil {
		return err
	}
	network, err := cfg.Planning.NetworkType()
	if err != nil {
		return err
	}

	dbConn, st, err := initDB(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := maintenance.Run(ctx, st, dbConn, network, cfg.Input.Cells, time.Duration(cfg.DB.Retention)); err != nil {
		return fmt.Errorf("invalid cell snapshot: %w", err)
	}

	if err := preflight(ctx, cfg, st, network); err != nil {
		return fmt.Errorf("pre-flight checks failed: %w", err)
	}

	records, err := loadCells(ctx, st, network, cfg.Input.Cells)
	if err != nil {
		return err
	}
	dir, err := cell.NewDirectory(network, records,
		cell.WithCaching(cfg.Planning.Cache),
		cell.WithLogger(logging.DecisionLogger))
	if err != nil {
		return fmt.Errorf("invalid cell snapshot: %w", err)
	}

	keys, err := snapshot.ReadRequestFile(cfg.Input.Request)
	if err != nil {
		return err
	}

	plannerOpts := []planner.Option{
		planner.WithLogger(logging.DecisionLogger),
		planner.WithCaching(cfg.Planning.Cache),
	}
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector, err = metrics.NewCollector(prometheus.NewRegistry())
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		plannerOpts = append(plannerOpts, planner.WithRecorder(collector))
	}

	p, err := planner.New(dir, planner.Request{
		Network:         network,
		ReuseDistanceKm: cfg.Planning.ReuseDistance.Km(),
		InheritModulus:  cfg.Planning.InheritModulus,
	}, plannerOpts...)
	if err != nil {
		return err
	}

	if timeout := time.Duration(cfg.Planning.Timeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	run, err := p.Plan(ctx, keys)
	if err != nil {
		return err
	}
	issues := p.AuditCoSite()

	paths, err := writeOutputs(cfg, run)
	if err != nil {
		return err
	}
	if err := persistRun(ctx, st, run, opts.writeBack); err != nil {
		return err
	}
	if collector != nil && cfg.Metrics.Textfile != "" {
		if err := collector.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			slog.Error("Metrics textfile not written", "error", err)
		} else {
			paths = append(paths, cfg.Metrics.Textfile)
		}
	}

	slog.Info("Planning run stored", "run_id", run.ID, "outputs", paths)
	printRun(out, run, issues, paths)
	return nil
}

func preflight(ctx context.Context, cfg *config.Config, st store.CellStore, network model.NetworkType) error {
	probes := []probe.Probe{
		{Name: "Request file", Check: probe.FileReadable(cfg.Input.Request), Critical: true},
		{Name: "Cell pool", Check: probe.CellPool(st, network, cfg.Input.Cells), Critical: true},
		{Name: "Output directory", Check: probe.DirWritable(cfg.Output.Dir), Critical: true},
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Textfile != "" {
		probes = append(probes, probe.Probe{Name: "Metrics textfile", Check: probe.ParentWritable(cfg.Metrics.Textfile)})
	}
	return probe.AnalyzeResults(probe.Run(ctx, probes))
}

// loadCells returns the stored pool, falling back to the snapshot CSV when the
// database holds no cells for the network.
func loadCells(ctx context.Context, st store.CellStore, network model.NetworkType, csvPath string) ([]model.CellRecord, error) {
	records, err := st.LoadCells(ctx, network)
	if err != nil {
		return nil, fmt.Errorf("failed to load cells: %w", err)
	}
	if len(records) > 0 {
		return records, nil
	}
	slog.Warn("No stored cells, reading snapshot directly", "network", network, "path", csvPath)
	records, err = snapshot.ReadCellsFile(csvPath)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", errNoCells, network)
	}
	return records, nil
}

// writeOutputs writes the result CSV and the enabled map layers, and returns
// the written paths.
func writeOutputs(cfg *config.Config, run *planner.Run) ([]string, error) {
	base := filepath.Join(cfg.Output.Dir, fmt.Sprintf("pci_plan_%s_%s",
		strings.ToLower(string(run.Request.Network)), run.StartedAt.Format("20060102_150405")))

	csvPath := base + ".csv"
	if err := snapshot.WriteResultsFile(csvPath, run.Results); err != nil {
		return nil, err
	}
	paths := []string{csvPath}

	if cfg.Output.GeoJSON {
		if _, err := export.WriteGeoJSON(base+".geojson", run.Results); err != nil {
			return paths, err
		}
		paths = append(paths, base+".geojson")
	}
	if cfg.Output.Shapefile {
		if _, err := export.WriteShapefile(base+".shp", run.Results); err != nil {
			return paths, err
		}
		paths = append(paths, base+".shp")
	}
	return paths, nil
}

// persistRun stores the run with its results. With writeBack the assigned PCIs
// also replace the stored pool's PCIs, so later runs start from them until the
// snapshot file changes.
func persistRun(ctx context.Context, st store.Store, run *planner.Run, writeBack bool) error {
	rec := &store.RunRecord{
		ID:              run.ID.String(),
		Network:         run.Request.Network,
		ReuseDistanceKm: run.Request.ReuseDistanceKm,
		InheritModulus:  run.Request.InheritModulus,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		Requested:       run.Stats.Requested,
		Assigned:        run.Stats.Assigned,
		Fallbacks:       run.Stats.Fallbacks,
	}
	if err := st.SaveRun(ctx, rec); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	if err := st.SaveResults(ctx, rec.ID, run.Results); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	if !writeBack {
		return nil
	}

	assigned := make(map[model.CellKey]int)
	for _, r := range run.Results {
		if r.AssignedPCI != nil {
			assigned[r.Key] = *r.AssignedPCI
		}
	}
	if err := st.UpdatePCIs(ctx, run.Request.Network, assigned); err != nil {
		return fmt.Errorf("failed to update cell pcis: %w", err)
	}
	slog.Info("Assigned PCIs written back to the cell pool", "network", run.Request.Network, "cells", len(assigned))
	return nil
}

func runShow(ctx context.Context, configPath, runID string, out io.Writer) error {
	cfg, cleanup, err := setup(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	_, st, err := initDB(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	results, err := st.GetResults(ctx, runID)
	if err != nil {
		return err
	}
	return snapshot.WriteResults(out, results)
}
