package model

import (
	"fmt"
	"strings"

	"pciplan/pkg/geo"
)

// NetworkType tags a cell pool. LTE and NR pools never interfere with each other.
type NetworkType string

const (
	LTE NetworkType = "LTE"
	NR  NetworkType = "NR"
)

// ParseNetworkType accepts "lte"/"nr" in any case.
func ParseNetworkType(s string) (NetworkType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LTE":
		return LTE, nil
	case "NR", "5G":
		return NR, nil
	}
	return "", fmt.Errorf("unknown network type %q", s)
}

// PCICount is the size of the legal PCI domain.
func (n NetworkType) PCICount() int {
	if n == NR {
		return 1008
	}
	return 504
}

// MaxPCI is the largest legal PCI value.
func (n NetworkType) MaxPCI() int {
	return n.PCICount() - 1
}

// Modulus is the primary modulus used for inheritance and co-site checks:
// 3 for LTE, 30 for NR.
func (n NetworkType) Modulus() int {
	if n == NR {
		return 30
	}
	return 3
}

// ValidPCI reports whether pci lies in the legal domain.
func (n NetworkType) ValidPCI(pci int) bool {
	return pci >= 0 && pci < n.PCICount()
}

// CellKey identifies a cell inside one network pool.
// It is not unique across LTE and NR.
type CellKey struct {
	NetworkID int64 `json:"network_id"`
	CellID    int64 `json:"cell_local_id"`
}

func (k CellKey) String() string {
	return fmt.Sprintf("%d-%d", k.NetworkID, k.CellID)
}

// Cell is one radio cell of the snapshot.
type Cell struct {
	Key       CellKey
	Name      string
	Network   NetworkType
	Position  *geo.Point // nil when the snapshot has no coordinates
	Frequency *float64   // downlink center frequency (EARFCN/SSB ARFCN)
	PCI       *int       // nil when unassigned
}

// HasLocation reports whether the cell can take part in distance and co-site checks.
func (c *Cell) HasLocation() bool {
	return c.Position != nil
}

// DisplayName returns the cell name, falling back to a synthetic one for
// blank or template names.
func (c *Cell) DisplayName() string {
	name := strings.TrimSpace(c.Name)
	switch name {
	case "", "UserLabel", "非必填", "必填":
		return fmt.Sprintf("cell_%d_%d", c.Key.NetworkID, c.Key.CellID)
	}
	return name
}

// CellRecord is the boundary shape of one snapshot row.
type CellRecord struct {
	NetworkID int64    `json:"network_id"`
	CellID    int64    `json:"cell_local_id"`
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	PCI       *int     `json:"pci,omitempty"`
	Frequency *float64 `json:"frequency,omitempty"`
}

// Key returns the record identity.
func (r CellRecord) Key() CellKey {
	return CellKey{NetworkID: r.NetworkID, CellID: r.CellID}
}

// UnassignedPCI is the sentinel some exports use for a cell without a PCI.
// It is read as absent.
const UnassignedPCI = -1

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
