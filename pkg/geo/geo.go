package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusKm is the mean Earth radius used by all planning distances.
const EarthRadiusKm = 6371.0

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Valid rejects NaN/Inf and out-of-range coordinates.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Orb converts to an orb point (lon, lat order).
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// DistanceKm calculates the Haversine distance between two points in kilometers.
func DistanceKm(p1, p2 Point) float64 {
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	// Clamp: rounding can push a slightly above 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Asin(math.Sqrt(a))

	return EarthRadiusKm * c
}

// DestinationPoint calculates the destination point from a start point, given distance (in km) and bearing (in degrees).
func DestinationPoint(start Point, distKm, bearing float64) Point {
	lat1 := start.Lat * (math.Pi / 180.0)
	lon1 := start.Lon * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)
	d := distKm / EarthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) +
		math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * (180.0 / math.Pi),
		Lon: lon2 * (180.0 / math.Pi),
	}
}

// Near reports whether two points lie within tol degrees of each other in
// latitude and longitude independently. It is a box test, not a radius.
func Near(a, b Point, tol float64) bool {
	return math.Abs(a.Lat-b.Lat) < tol && math.Abs(a.Lon-b.Lon) < tol
}

// Key is a coordinate rounded to 6 decimals (about 0.1 m), used for cache keys
// and location grouping.
type Key struct {
	Lat int64
	Lon int64
}

// KeyOf rounds p to a Key.
func KeyOf(p Point) Key {
	return Key{
		Lat: int64(math.Round(p.Lat * 1e6)),
		Lon: int64(math.Round(p.Lon * 1e6)),
	}
}
