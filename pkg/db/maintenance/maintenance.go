package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"pciplan/pkg/db"
	"pciplan/pkg/model"
	"pciplan/pkg/snapshot"
	"pciplan/pkg/store"
)

// DefaultRetention is how long plan runs are kept when no retention is configured.
const DefaultRetention = 30 * 24 * time.Hour

// snapshotStateKey records the mtime of the last imported snapshot per network.
func snapshotStateKey(network model.NetworkType) string {
	return "cells_csv_mtime_" + string(network)
}

// Run executes all maintenance tasks: Import and Pruning.
// A failed snapshot import is returned: the stored pool no longer matches the
// snapshot, so planning must not proceed on it. Pruning failures are only logged.
// It blocks until completion.
func Run(ctx context.Context, s store.Store, d *db.DB, network model.NetworkType, csvPath string, retention time.Duration) error {
	slog.Info("Starting database maintenance...")

	n, importErr := ImportSnapshot(ctx, s, network, csvPath, false)
	if importErr != nil {
		slog.Error("Snapshot import failed", "network", network, "path", csvPath, "error", importErr)
		importErr = fmt.Errorf("import %s: %w", csvPath, importErr)
	} else {
		slog.Info("Snapshot import check completed", "network", network, "imported", n)
	}

	if retention <= 0 {
		retention = DefaultRetention
	}
	if n, err := d.PruneRuns(retention); err != nil {
		slog.Error("Plan run pruning failed", "error", err)
	} else {
		slog.Info("Plan run pruning completed", "removed", n)
	}

	return importErr
}

// ImportSnapshot replaces the stored pool of network with the cells in
// csvPath. Unless force is set, the import is skipped when the file has not
// changed since the last import. It returns the number of imported cells.
func ImportSnapshot(ctx context.Context, s store.Store, network model.NetworkType, csvPath string, force bool) (int, error) {
	info, err := os.Stat(csvPath)
	if os.IsNotExist(err) {
		return 0, nil // File doesn't exist, nothing to import
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat csv: %w", err)
	}

	fileMTime := info.ModTime().UTC().Format(time.RFC3339Nano)
	key := snapshotStateKey(network)

	if !force {
		storedMTime, found := s.GetState(ctx, key)
		if found && storedMTime == fileMTime {
			return 0, nil // Up to date
		}
	}

	slog.Info("Importing cell snapshot from CSV...", "path", csvPath, "network", network)

	records, err := snapshot.ReadCellsFile(csvPath)
	if err != nil {
		return 0, err
	}
	if err := s.SaveCells(ctx, network, records); err != nil {
		return 0, fmt.Errorf("failed to save cells: %w", err)
	}

	slog.Info("Imported cells", "count", len(records), "network", network)

	if err := s.SetState(ctx, key, fileMTime); err != nil {
		return len(records), fmt.Errorf("failed to update state: %w", err)
	}
	return len(records), nil
}
