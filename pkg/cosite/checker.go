// Package cosite detects modulus collisions between a candidate PCI and the
// cells deployed at the same site.
package cosite

import (
	"sort"

	"pciplan/pkg/geo"
	"pciplan/pkg/model"
)

// OrthogonalShifts is the number of distinct mod-3 reference signal shifts.
// A site that already holds all of them cannot take another without a clash.
const OrthogonalShifts = 3

// Locator finds co-located cells.
type Locator interface {
	SameLocation(pos geo.Point, exclude ...model.CellKey) []*model.Cell
}

// SiteMods summarizes the modulus values already in use at a co-location group.
// Cells without a PCI are ignored.
type SiteMods struct {
	Network  model.NetworkType
	Members  int
	Assigned int
	// Primary counts users per primary modulus value (mod 3 for LTE, mod 30 for NR).
	Primary map[int]int
	// Mod3 counts users per mod-3 value, for both network types.
	Mod3 map[int]int
}

// Saturated reports whether every orthogonal mod-3 shift is already taken.
func (s SiteMods) Saturated() bool {
	return len(s.Mod3) >= OrthogonalShifts
}

// UsedMod3 returns the distinct mod-3 values in use, ascending.
func (s SiteMods) UsedMod3() []int {
	return sortedKeys(s.Mod3)
}

// UsedPrimary returns the distinct primary modulus values in use, ascending.
func (s SiteMods) UsedPrimary() []int {
	return sortedKeys(s.Primary)
}

// Conflict evaluates a candidate against the site.
func (s SiteMods) Conflict(pci int) Conflict {
	mod3 := pci % 3
	_, mod3Used := s.Mod3[mod3]
	c := Conflict{
		Mod3:      mod3Used,
		Saturated: s.Saturated() && mod3Used,
	}
	if s.Network == model.NR {
		_, c.Primary = s.Primary[pci%30]
	} else {
		c.Primary = mod3Used
	}
	return c
}

// Conflict is the co-site verdict for one candidate. For NR both facets are
// reported independently.
type Conflict struct {
	Primary   bool // collision on the network's primary modulus
	Mod3      bool // collision on mod 3
	Saturated bool // the site already holds three distinct mod-3 values and the candidate repeats one
}

// Any reports whether the candidate collides on any modulus.
func (c Conflict) Any() bool {
	return c.Primary || c.Mod3 || c.Saturated
}

// Severity orders verdicts for ranking: 0 clean, 1 mod-3 only, 2 primary.
func (c Conflict) Severity() int {
	switch {
	case c.Primary:
		return 2
	case c.Mod3 || c.Saturated:
		return 1
	}
	return 0
}

// Checker evaluates co-site conflicts for one network pool.
type Checker struct {
	cells   Locator
	network model.NetworkType
}

// New creates a checker.
func New(cells Locator, network model.NetworkType) *Checker {
	return &Checker{cells: cells, network: network}
}

// Site collects the modulus values used by the cells co-located with pos.
func (c *Checker) Site(pos geo.Point, exclude ...model.CellKey) SiteMods {
	members := c.cells.SameLocation(pos, exclude...)
	s := SiteMods{
		Network: c.network,
		Members: len(members),
		Primary: make(map[int]int),
		Mod3:    make(map[int]int),
	}
	mod := c.network.Modulus()
	for _, m := range members {
		if m.PCI == nil {
			continue
		}
		s.Assigned++
		s.Primary[*m.PCI%mod]++
		s.Mod3[*m.PCI%3]++
	}
	return s
}

// Check evaluates a single candidate at pos.
func (c *Checker) Check(pci int, pos geo.Point, exclude ...model.CellKey) Conflict {
	return c.Site(pos, exclude...).Conflict(pci)
}

func sortedKeys(m map[int]int) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
