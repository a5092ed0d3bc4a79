package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"pciplan/pkg/db"
	"pciplan/pkg/model"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("plan run not found")

// Store defines the repository interface.
// It composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	CellStore
	PlanStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Cells ---

func (s *SQLiteStore) LoadCells(ctx context.Context, network model.NetworkType) ([]model.CellRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT network_id, cell_id, name, lat, lon, pci, frequency
		 FROM cells WHERE network = ? ORDER BY seq`, string(network))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CellRecord
	for rows.Next() {
		var r model.CellRecord
		var name sql.NullString
		var lat, lon, freq sql.NullFloat64
		var pci sql.NullInt64
		if err := rows.Scan(&r.NetworkID, &r.CellID, &name, &lat, &lon, &pci, &freq); err != nil {
			return nil, err
		}
		r.Name = name.String
		r.Latitude = floatPtr(lat)
		r.Longitude = floatPtr(lon)
		r.Frequency = floatPtr(freq)
		r.PCI = intPtr(pci)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveCells(ctx context.Context, network model.NetworkType, records []model.CellRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cells WHERE network = ?`, string(network)); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cells (
		network, network_id, cell_id, seq, name, lat, lon, pci, frequency, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(db.TimeLayout)
	for i, r := range records {
		if _, err := stmt.ExecContext(ctx,
			string(network), r.NetworkID, r.CellID, i, r.Name,
			nullFloat(r.Latitude), nullFloat(r.Longitude), nullInt(r.PCI), nullFloat(r.Frequency), now,
		); err != nil {
			return fmt.Errorf("cell %s: %w", r.Key(), err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdatePCIs(ctx context.Context, network model.NetworkType, pcis map[model.CellKey]int) error {
	if len(pcis) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE cells SET pci = ?, updated_at = ? WHERE network = ? AND network_id = ? AND cell_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(db.TimeLayout)
	for k, pci := range pcis {
		if _, err := stmt.ExecContext(ctx, pci, now, string(network), k.NetworkID, k.CellID); err != nil {
			return fmt.Errorf("cell %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) CountCells(ctx context.Context, network model.NetworkType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM cells WHERE network = ?`, string(network)).Scan(&n)
	return n, err
}

// --- Plan runs ---

func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	query := `INSERT OR REPLACE INTO plan_runs (
		run_id, network, reuse_distance_km, inherit_modulus, started_at, finished_at, requested, assigned, fallbacks
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, string(run.Network), run.ReuseDistanceKm, run.InheritModulus,
		run.StartedAt.UTC().Format(db.TimeLayout), run.FinishedAt.UTC().Format(db.TimeLayout),
		run.Requested, run.Assigned, run.Fallbacks,
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, network, reuse_distance_km, inherit_modulus, started_at, finished_at, requested, assigned, fallbacks
		 FROM plan_runs WHERE run_id = ?`, id)

	var r RunRecord
	var network, started, finished string
	var fallbacks sql.NullInt64
	err := row.Scan(&r.ID, &network, &r.ReuseDistanceKm, &r.InheritModulus, &started, &finished, &r.Requested, &r.Assigned, &fallbacks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	r.Network = model.NetworkType(network)
	r.Fallbacks = int(fallbacks.Int64)
	if r.StartedAt, err = time.Parse(db.TimeLayout, started); err != nil {
		return nil, fmt.Errorf("run %s started_at: %w", id, err)
	}
	if r.FinishedAt, err = time.Parse(db.TimeLayout, finished); err != nil {
		return nil, fmt.Errorf("run %s finished_at: %w", id, err)
	}
	return &r, nil
}

func (s *SQLiteStore) SaveResults(ctx context.Context, runID string, results []model.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_results WHERE run_id = ?`, runID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO plan_results (
		run_id, seq, network_id, cell_id, name, lat, lon, original_pci, assigned_pci,
		modulus_matched, frequency, reason, predicted_km, verified_km, verified_status
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range results {
		if _, err := stmt.ExecContext(ctx,
			runID, i, r.Key.NetworkID, r.Key.CellID, r.Name,
			nullFloat(r.Latitude), nullFloat(r.Longitude), nullInt(r.OriginalPCI), nullInt(r.AssignedPCI),
			string(r.ModMatched), nullFloat(r.Frequency), string(r.Reason),
			finite(r.PredictedKm), finite(r.Verified.Km), string(r.Verified.Status),
		); err != nil {
			return fmt.Errorf("result %s: %w", r.Key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetResults(ctx context.Context, runID string) ([]model.Result, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	mod := run.Network.Modulus()

	rows, err := s.db.QueryContext(ctx,
		`SELECT network_id, cell_id, name, lat, lon, original_pci, assigned_pci,
		        modulus_matched, frequency, reason, predicted_km, verified_km, verified_status
		 FROM plan_results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Result
	for rows.Next() {
		var r model.Result
		var name, matched, reason, status sql.NullString
		var lat, lon, freq, predicted, verified sql.NullFloat64
		var orig, assigned sql.NullInt64
		if err := rows.Scan(&r.Key.NetworkID, &r.Key.CellID, &name, &lat, &lon, &orig, &assigned,
			&matched, &freq, &reason, &predicted, &verified, &status); err != nil {
			return nil, err
		}
		r.Network = run.Network
		r.Name = name.String
		r.Latitude = floatPtr(lat)
		r.Longitude = floatPtr(lon)
		r.OriginalPCI = intPtr(orig)
		r.AssignedPCI = intPtr(assigned)
		r.OriginalMod = model.ModOf(r.OriginalPCI, mod)
		r.AssignedMod = model.ModOf(r.AssignedPCI, mod)
		r.ModMatched = model.ModMatch(matched.String)
		r.Frequency = floatPtr(freq)
		r.Reason = model.Reason(reason.String)
		r.Verified.Status = model.VerifyStatus(status.String)

		// Infinite distances are stored as NULL.
		switch {
		case predicted.Valid:
			r.PredictedKm = predicted.Float64
		case r.AssignedPCI != nil:
			r.PredictedKm = math.Inf(1)
		}
		switch {
		case verified.Valid:
			r.Verified.Km = verified.Float64
		case r.Verified.Status == model.VerifyNoReusePCI:
			r.Verified.Km = math.Inf(1)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now().UTC().Format(db.TimeLayout))
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func finite(v float64) sql.NullFloat64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float(v.Float64)
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return model.Int(int(v.Int64))
}
