package planner

import (
	"errors"
	"fmt"
	"math"

	"pciplan/pkg/model"
)

var (
	ErrInvalidDistance = errors.New("reuse distance must be a positive number of kilometers")
	ErrInvalidNetwork  = errors.New("unknown network type")

	// ErrCommit means a chosen PCI could not be written to the directory.
	ErrCommit = errors.New("pci commit failed")
)

// Request holds the run-level parameters of one planning run.
type Request struct {
	Network         model.NetworkType
	ReuseDistanceKm float64
	InheritModulus  bool
}

// Validate rejects run parameters the engine cannot plan with.
func (r Request) Validate() error {
	if r.Network != model.LTE && r.Network != model.NR {
		return fmt.Errorf("%w: %q", ErrInvalidNetwork, r.Network)
	}
	if math.IsNaN(r.ReuseDistanceKm) || math.IsInf(r.ReuseDistanceKm, 0) || r.ReuseDistanceKm <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDistance, r.ReuseDistanceKm)
	}
	return nil
}
