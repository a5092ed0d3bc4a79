// Package probe runs pre-flight checks before a planning run touches any
// output: inputs readable, output locations writable, a cell pool available.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"pciplan/pkg/model"
)

// CheckFunc returns nil if the check passes.
type CheckFunc func(ctx context.Context) error

// Probe is a single pre-flight check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // a failure aborts the run
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes the probes in order. Each check gets its own timeout.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	for i, p := range probes {
		start := time.Now()

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.Check(checkCtx)
		cancel()

		results[i] = Result{
			Probe:    p,
			Error:    err,
			Duration: time.Since(start),
		}
	}

	return results
}

// AnalyzeResults logs every result and joins the errors of failed critical probes.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}

		msg := fmt.Sprintf("[%s] %-24s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		switch {
		case r.Error == nil:
			slog.Debug(msg)
		case r.Probe.Critical:
			slog.Error(msg, "error", r.Error)
			criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		default:
			slog.Warn(msg, "error", r.Error)
		}
	}

	if len(criticalErrors) > 0 {
		return errors.Join(criticalErrors...)
	}
	return nil
}

// FileReadable checks that path is an existing regular file.
func FileReadable(path string) CheckFunc {
	return func(context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		return nil
	}
}

// DirWritable checks that files can be created in dir, creating it if needed.
func DirWritable(dir string) CheckFunc {
	return func(context.Context) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return err
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	}
}

// ParentWritable checks the directory that will hold path.
func ParentWritable(path string) CheckFunc {
	return DirWritable(filepath.Dir(path))
}

// Counter reports the number of stored cells of a network.
type Counter interface {
	CountCells(ctx context.Context, network model.NetworkType) (int, error)
}

// CellPool checks that cells are available for network, either stored or in
// the snapshot file at csvPath.
func CellPool(c Counter, network model.NetworkType, csvPath string) CheckFunc {
	return func(ctx context.Context) error {
		n, err := c.CountCells(ctx, network)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := FileReadable(csvPath)(ctx); err != nil {
			return fmt.Errorf("no stored %s cells and no snapshot: %w", network, err)
		}
		return nil
	}
}
