package geo

import "pciplan/pkg/cache"

// Calculator computes great-circle distances from one reference point to many,
// memoizing results by rounded coordinates.
type Calculator struct {
	memo *cache.Table[Key, Key, float64]
}

// NewCalculator creates a calculator. With caching disabled every call recomputes.
func NewCalculator(cached bool) *Calculator {
	return &Calculator{memo: cache.NewTable[Key, Key, float64]("distance", cached)}
}

// DistancesKm returns the distance from ref to each of pts, in the same order.
// Callers must not pass invalid coordinates.
func (c *Calculator) DistancesKm(ref Point, pts []Point) []float64 {
	out := make([]float64, len(pts))
	if len(pts) == 0 {
		return out
	}
	refKey := KeyOf(ref)
	for i, p := range pts {
		k := KeyOf(p)
		if d, ok := c.memo.Get(refKey, k); ok {
			out[i] = d
			continue
		}
		d := DistanceKm(ref, p)
		c.memo.Put(refKey, k, d)
		out[i] = d
	}
	return out
}

// MinDistanceKm returns the smallest distance from ref to pts, or false when pts is empty.
func (c *Calculator) MinDistanceKm(ref Point, pts []Point) (float64, bool) {
	if len(pts) == 0 {
		return 0, false
	}
	ds := c.DistancesKm(ref, pts)
	best := ds[0]
	for _, d := range ds[1:] {
		if d < best {
			best = d
		}
	}
	return best, true
}

// Evict drops memoized distances measured from p.
func (c *Calculator) Evict(p Point) int {
	return c.memo.EvictBucket(KeyOf(p))
}

// Stats exposes cache counters.
func (c *Calculator) Stats() cache.Stats {
	return c.memo.Stats()
}
