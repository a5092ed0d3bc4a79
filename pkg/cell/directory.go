package cell

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"pciplan/pkg/cache"
	"pciplan/pkg/geo"
	"pciplan/pkg/model"
)

// CoLocationTolerance is the per-axis tolerance in degrees (about 11 m) under
// which two cells count as the same site.
const CoLocationTolerance = 0.0001

// gridStep is the size of the location index buckets. It must exceed
// CoLocationTolerance so a 3x3 neighborhood covers every match.
const gridStep = 0.001

var (
	ErrDuplicateCell   = errors.New("duplicate cell identity")
	ErrInvalidPCI      = errors.New("pci out of range")
	ErrInvalidPosition = errors.New("invalid coordinates")
	ErrInvalidFreq     = errors.New("invalid frequency")
)

// Change describes one committed PCI mutation.
type Change struct {
	Key       model.CellKey
	Position  *geo.Point
	Frequency *float64
	OldPCI    *int
	NewPCI    int
}

// Hook is notified after every PCI mutation, before the next lookup.
type Hook func(Change)

type gridKey struct {
	Lat int64
	Lon int64
}

func gridOf(p geo.Point) gridKey {
	return gridKey{
		Lat: int64(math.Floor(p.Lat / gridStep)),
		Lon: int64(math.Floor(p.Lon / gridStep)),
	}
}

type freqPCI struct {
	Freq float64
	PCI  int
}

// Directory is the in-memory index of every cell of one network type. It is
// both the pool of cells to plan and the interference universe. Commits are
// visible to the very next lookup.
type Directory struct {
	network model.NetworkType
	cells   map[model.CellKey]*model.Cell
	order   []model.CellKey
	rank    map[model.CellKey]int
	grid    map[gridKey][]*model.Cell
	byPCI   map[freqPCI][]*model.Cell

	// Membership only: PCIs are read live from the cell pointers.
	colocated *cache.Table[gridKey, geo.Key, []*model.Cell]

	hooks  []Hook
	logger *slog.Logger
}

// Option configures a Directory.
type Option func(*Directory)

// WithCaching toggles the co-location memo table.
func WithCaching(enabled bool) Option {
	return func(d *Directory) {
		d.colocated = cache.NewTable[gridKey, geo.Key, []*model.Cell]("colocation", enabled)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Directory) {
		d.logger = l
	}
}

// NewDirectory builds a directory from snapshot records. Malformed input is a
// fatal error for the whole run.
func NewDirectory(network model.NetworkType, records []model.CellRecord, opts ...Option) (*Directory, error) {
	d := &Directory{
		network:   network,
		cells:     make(map[model.CellKey]*model.Cell, len(records)),
		order:     make([]model.CellKey, 0, len(records)),
		rank:      make(map[model.CellKey]int, len(records)),
		grid:      make(map[gridKey][]*model.Cell),
		byPCI:     make(map[freqPCI][]*model.Cell),
		colocated: cache.NewTable[gridKey, geo.Key, []*model.Cell]("colocation", true),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	for i, r := range records {
		c, err := d.newCell(r)
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, r.Key(), err)
		}
		if _, dup := d.cells[c.Key]; dup {
			return nil, fmt.Errorf("record %d: %w: %s", i, ErrDuplicateCell, c.Key)
		}
		d.cells[c.Key] = c
		d.rank[c.Key] = len(d.order)
		d.order = append(d.order, c.Key)
		if c.Position != nil {
			g := gridOf(*c.Position)
			d.grid[g] = append(d.grid[g], c)
		}
		d.indexPCI(c)
	}

	d.logger.Debug("Cell directory built", "network", network, "cells", len(d.cells), "located_buckets", len(d.grid))
	return d, nil
}

func (d *Directory) newCell(r model.CellRecord) (*model.Cell, error) {
	c := &model.Cell{
		Key:     r.Key(),
		Name:    r.Name,
		Network: d.network,
	}
	// A position needs both coordinates; one alone counts as absent.
	if r.Latitude != nil && r.Longitude != nil {
		p := geo.Point{Lat: *r.Latitude, Lon: *r.Longitude}
		if !p.Valid() {
			return nil, fmt.Errorf("%w: (%v, %v)", ErrInvalidPosition, p.Lat, p.Lon)
		}
		c.Position = &p
	}
	if r.Frequency != nil {
		f := *r.Frequency
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, ErrInvalidFreq
		}
		c.Frequency = &f
	}
	if r.PCI != nil && *r.PCI != model.UnassignedPCI {
		if !d.network.ValidPCI(*r.PCI) {
			return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidPCI, *r.PCI, d.network.MaxPCI())
		}
		pci := *r.PCI
		c.PCI = &pci
	}
	return c, nil
}

// Network returns the network type of the pool.
func (d *Directory) Network() model.NetworkType {
	return d.network
}

// Len returns the number of cells.
func (d *Directory) Len() int {
	return len(d.cells)
}

// Lookup returns the cell with the given identity.
func (d *Directory) Lookup(key model.CellKey) (*model.Cell, error) {
	c, ok := d.cells[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrCellNotFound, key)
	}
	return c, nil
}

// Cells returns every cell in snapshot order.
func (d *Directory) Cells() []*model.Cell {
	out := make([]*model.Cell, 0, len(d.order))
	for _, k := range d.order {
		out = append(out, d.cells[k])
	}
	return out
}

// Records exports the current state in snapshot order.
func (d *Directory) Records() []model.CellRecord {
	out := make([]model.CellRecord, 0, len(d.order))
	for _, c := range d.Cells() {
		r := model.CellRecord{
			NetworkID: c.Key.NetworkID,
			CellID:    c.Key.CellID,
			Name:      c.Name,
		}
		if c.Position != nil {
			r.Latitude = model.Float(c.Position.Lat)
			r.Longitude = model.Float(c.Position.Lon)
		}
		if c.Frequency != nil {
			r.Frequency = model.Float(*c.Frequency)
		}
		if c.PCI != nil {
			r.PCI = model.Int(*c.PCI)
		}
		out = append(out, r)
	}
	return out
}

// SameLocation returns the cells within CoLocationTolerance of pos, in
// snapshot order, without the excluded identities.
func (d *Directory) SameLocation(pos geo.Point, exclude ...model.CellKey) []*model.Cell {
	g := gridOf(pos)
	k := geo.KeyOf(pos)
	members, ok := d.colocated.Get(g, k)
	if !ok {
		members = d.scanLocation(pos, g)
		d.colocated.Put(g, k, members)
	}
	return filterOut(members, exclude)
}

func (d *Directory) scanLocation(pos geo.Point, g gridKey) []*model.Cell {
	var found []*model.Cell
	for dLat := int64(-1); dLat <= 1; dLat++ {
		for dLon := int64(-1); dLon <= 1; dLon++ {
			for _, c := range d.grid[gridKey{Lat: g.Lat + dLat, Lon: g.Lon + dLon}] {
				if geo.Near(*c.Position, pos, CoLocationTolerance) {
					found = append(found, c)
				}
			}
		}
	}
	d.sortBySnapshot(found)
	return found
}

// SameFrequencySamePCI returns the located cells that hold pci on freq.
func (d *Directory) SameFrequencySamePCI(pci int, freq float64, exclude ...model.CellKey) []*model.Cell {
	var out []*model.Cell
	for _, c := range filterOut(d.byPCI[freqPCI{Freq: freq, PCI: pci}], exclude) {
		if c.Position != nil {
			out = append(out, c)
		}
	}
	return out
}

// SetPCI commits a PCI to a cell and runs the invalidation hooks.
func (d *Directory) SetPCI(key model.CellKey, pci int) error {
	if !d.network.ValidPCI(pci) {
		return fmt.Errorf("%w: %d", ErrInvalidPCI, pci)
	}
	c, err := d.Lookup(key)
	if err != nil {
		return err
	}

	change := Change{
		Key:       key,
		Position:  c.Position,
		Frequency: c.Frequency,
		OldPCI:    c.PCI,
		NewPCI:    pci,
	}

	d.unindexPCI(c)
	c.PCI = model.Int(pci)
	d.indexPCI(c)

	evicted := 0
	if c.Position != nil {
		g := gridOf(*c.Position)
		for dLat := int64(-1); dLat <= 1; dLat++ {
			for dLon := int64(-1); dLon <= 1; dLon++ {
				evicted += d.colocated.EvictBucket(gridKey{Lat: g.Lat + dLat, Lon: g.Lon + dLon})
			}
		}
	}

	for _, h := range d.hooks {
		h(change)
	}

	d.logger.Debug("PCI committed", "cell", key, "old_pci", formatPCI(change.OldPCI), "new_pci", pci, "colocation_evicted", evicted)
	return nil
}

// OnChange registers a hook that runs after every SetPCI.
func (d *Directory) OnChange(h Hook) {
	d.hooks = append(d.hooks, h)
}

// CacheStats exposes co-location cache counters.
func (d *Directory) CacheStats() cache.Stats {
	return d.colocated.Stats()
}

func (d *Directory) indexPCI(c *model.Cell) {
	if c.PCI == nil || c.Frequency == nil {
		return
	}
	k := freqPCI{Freq: *c.Frequency, PCI: *c.PCI}
	d.byPCI[k] = append(d.byPCI[k], c)
}

func (d *Directory) unindexPCI(c *model.Cell) {
	if c.PCI == nil || c.Frequency == nil {
		return
	}
	k := freqPCI{Freq: *c.Frequency, PCI: *c.PCI}
	list := d.byPCI[k]
	for i, other := range list {
		if other == c {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(d.byPCI, k)
		return
	}
	d.byPCI[k] = list
}

func (d *Directory) sortBySnapshot(cells []*model.Cell) {
	sort.Slice(cells, func(i, j int) bool {
		return d.rank[cells[i].Key] < d.rank[cells[j].Key]
	})
}

func filterOut(cells []*model.Cell, exclude []model.CellKey) []*model.Cell {
	if len(exclude) == 0 {
		return append([]*model.Cell(nil), cells...)
	}
	out := make([]*model.Cell, 0, len(cells))
outer:
	for _, c := range cells {
		for _, k := range exclude {
			if c.Key == k {
				continue outer
			}
		}
		out = append(out, c)
	}
	return out
}

func formatPCI(pci *int) any {
	if pci == nil {
		return "none"
	}
	return *pci
}
