package store

import (
	"context"
	"time"

	"pciplan/pkg/model"
)

// CellStore persists the cell snapshot of each network pool.
type CellStore interface {
	// LoadCells returns the pool in snapshot order.
	LoadCells(ctx context.Context, network model.NetworkType) ([]model.CellRecord, error)
	// SaveCells replaces the whole pool.
	SaveCells(ctx context.Context, network model.NetworkType, records []model.CellRecord) error
	// UpdatePCIs writes assigned PCIs back to existing cells.
	UpdatePCIs(ctx context.Context, network model.NetworkType, pcis map[model.CellKey]int) error
	CountCells(ctx context.Context, network model.NetworkType) (int, error)
}

// RunRecord is the persisted header of a planning run.
type RunRecord struct {
	ID              string
	Network         model.NetworkType
	ReuseDistanceKm float64
	InheritModulus  bool
	StartedAt       time.Time
	FinishedAt      time.Time
	Requested       int
	Assigned        int
	Fallbacks       int
}

// PlanStore persists planning runs and their per-cell results.
type PlanStore interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	SaveResults(ctx context.Context, runID string, results []model.Result) error
	GetResults(ctx context.Context, runID string) ([]model.Result, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
