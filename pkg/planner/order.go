package planner

import (
	"math"

	"pciplan/pkg/cell"
	"pciplan/pkg/geo"
	"pciplan/pkg/model"
)

// Lookuper resolves cell identities.
type Lookuper interface {
	Lookup(key model.CellKey) (*model.Cell, error)
}

// site is one location group of the processing order. Its anchor is the
// position of the first requested cell that opened it.
type site struct {
	anchor geo.Point
	keys   []model.CellKey
}

type anchorBucket struct {
	Lat int64
	Lon int64
}

func anchorBucketOf(p geo.Point) anchorBucket {
	return anchorBucket{
		Lat: int64(math.Floor(p.Lat / cell.CoLocationTolerance)),
		Lon: int64(math.Floor(p.Lon / cell.CoLocationTolerance)),
	}
}

// Order returns the processing order for a request: cells grouped by site
// (groups in first-seen order, request order inside a group), followed by
// cells that have no location or are unknown. Duplicates are dropped after
// their first occurrence.
//
// A cell joins the earliest group whose anchor lies within
// cell.CoLocationTolerance of it, so co-located siblings are contiguous even
// when their coordinates differ in the last decimals. Siblings must be
// contiguous so that each one sees the PCIs committed to the ones before it.
func Order(cells Lookuper, keys []model.CellKey) []model.CellKey {
	seen := make(map[model.CellKey]bool, len(keys))
	anchors := make(map[anchorBucket][]int)
	var sites []*site
	var tail []model.CellKey

	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true

		c, err := cells.Lookup(k)
		if err != nil || !c.HasLocation() {
			tail = append(tail, k)
			continue
		}
		pos := *c.Position
		b := anchorBucketOf(pos)

		idx := -1
		for dLat := int64(-1); dLat <= 1; dLat++ {
			for dLon := int64(-1); dLon <= 1; dLon++ {
				for _, i := range anchors[anchorBucket{Lat: b.Lat + dLat, Lon: b.Lon + dLon}] {
					if (idx < 0 || i < idx) && geo.Near(sites[i].anchor, pos, cell.CoLocationTolerance) {
						idx = i
					}
				}
			}
		}
		if idx < 0 {
			idx = len(sites)
			sites = append(sites, &site{anchor: pos})
			anchors[b] = append(anchors[b], idx)
		}
		sites[idx].keys = append(sites[idx].keys, k)
	}

	out := make([]model.CellKey, 0, len(seen))
	for _, s := range sites {
		out = append(out, s.keys...)
	}
	return append(out, tail...)
}
