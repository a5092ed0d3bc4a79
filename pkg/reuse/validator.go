// Package reuse enforces the minimum distance between cells sharing both
// downlink frequency and PCI.
package reuse

import (
	"math"

	"pciplan/pkg/cache"
	"pciplan/pkg/cell"
	"pciplan/pkg/geo"
	"pciplan/pkg/model"
)

// DefaultDistanceKm is the default minimum reuse distance.
const DefaultDistanceKm = 3.0

// Locator finds the cells that already use a PCI on a frequency.
type Locator interface {
	SameFrequencySamePCI(pci int, freq float64, exclude ...model.CellKey) []*model.Cell
}

type bucket struct {
	Freq float64
	PCI  int
}

type entry struct {
	Pos     geo.Key
	Exclude model.CellKey
}

// Validator answers whether a candidate PCI keeps the reuse distance at a location.
type Validator struct {
	cells Locator
	calc  *geo.Calculator
	// Minimum distances are cached; the threshold comparison is not, so one
	// entry serves every relaxation stage.
	memo *cache.Table[bucket, entry, float64]
}

// New creates a validator.
func New(cells Locator, calc *geo.Calculator, cached bool) *Validator {
	return &Validator{
		cells: cells,
		calc:  calc,
		memo:  cache.NewTable[bucket, entry, float64]("reuse", cached),
	}
}

// MinDistanceKm returns the distance from pos to the nearest other located cell
// holding pci on freq, or +Inf when there is none. An absent frequency never
// shares anything.
func (v *Validator) MinDistanceKm(pci int, pos geo.Point, freq *float64, exclude model.CellKey) float64 {
	if freq == nil {
		return math.Inf(1)
	}
	b := bucket{Freq: *freq, PCI: pci}
	e := entry{Pos: geo.KeyOf(pos), Exclude: exclude}
	if d, ok := v.memo.Get(b, e); ok {
		return d
	}

	users := v.cells.SameFrequencySamePCI(pci, *freq, exclude)
	pts := make([]geo.Point, 0, len(users))
	for _, c := range users {
		pts = append(pts, *c.Position)
	}
	d, ok := v.calc.MinDistanceKm(pos, pts)
	if !ok {
		d = math.Inf(1)
	}
	v.memo.Put(b, e, d)
	return d
}

// Validate reports whether pci is reusable at pos under thresholdKm, together
// with the minimum same-frequency same-PCI distance (+Inf when unused).
func (v *Validator) Validate(pci int, pos geo.Point, freq *float64, exclude model.CellKey, thresholdKm float64) (bool, float64) {
	d := v.MinDistanceKm(pci, pos, freq, exclude)
	return d >= thresholdKm, d
}

// Invalidate evicts every memoized distance that the change can make stale:
// the buckets of the old and new PCI on the cell's frequency, and distances
// measured from the cell's location.
func (v *Validator) Invalidate(ch cell.Change) int {
	n := 0
	if ch.Frequency != nil {
		if ch.OldPCI != nil {
			n += v.memo.EvictBucket(bucket{Freq: *ch.Frequency, PCI: *ch.OldPCI})
		}
		n += v.memo.EvictBucket(bucket{Freq: *ch.Frequency, PCI: ch.NewPCI})
	}
	if ch.Position != nil {
		n += v.calc.Evict(*ch.Position)
	}
	return n
}

// Stats exposes cache counters.
func (v *Validator) Stats() cache.Stats {
	return v.memo.Stats()
}
