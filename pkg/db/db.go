package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// TimeLayout is the text form of every timestamp column. It sorts and
// compares like SQLite's CURRENT_TIMESTAMP.
const TimeLayout = "2006-01-02 15:04:05"

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Enforce single connection to avoid SQLITE_BUSY errors during concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

// PruneRuns removes plan runs, and their results, that started before now
// minus olderThan. It returns the number of runs removed.
func (d *DB) PruneRuns(olderThan time.Duration) (int64, error) {
	deadline := time.Now().Add(-olderThan).UTC().Format(TimeLayout)

	tx, err := d.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM plan_results WHERE run_id IN (SELECT run_id FROM plan_runs WHERE started_at < ?)`, deadline); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM plan_runs WHERE started_at < ?`, deadline)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cells (
			network TEXT NOT NULL,
			network_id INTEGER NOT NULL,
			cell_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			name TEXT,
			lat REAL,
			lon REAL,
			pci INTEGER,
			frequency REAL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (network, network_id, cell_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cells_seq ON cells (network, seq);`,
		`CREATE TABLE IF NOT EXISTS plan_runs (
			run_id TEXT PRIMARY KEY,
			network TEXT NOT NULL,
			reuse_distance_km REAL NOT NULL,
			inherit_modulus BOOLEAN DEFAULT 0,
			started_at DATETIME,
			finished_at DATETIME,
			requested INTEGER,
			assigned INTEGER,
			fallbacks INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS plan_results (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			network_id INTEGER NOT NULL,
			cell_id INTEGER NOT NULL,
			name TEXT,
			lat REAL,
			lon REAL,
			original_pci INTEGER,
			assigned_pci INTEGER,
			modulus_matched TEXT,
			frequency REAL,
			reason TEXT,
			predicted_km REAL,
			verified_km REAL,
			verified_status TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS persistent_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	// Databases created before fallback counting lack the column.
	var colCount int
	err := d.QueryRow("SELECT count(*) FROM pragma_table_info('plan_runs') WHERE name='fallbacks'").Scan(&colCount)
	if err == nil && colCount == 0 {
		if _, err := d.Exec("ALTER TABLE plan_runs ADD COLUMN fallbacks INTEGER"); err != nil {
			return fmt.Errorf("failed to add fallbacks column: %w", err)
		}
	}

	return nil
}
