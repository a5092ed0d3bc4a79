// Package export writes planning results as map layers: a GeoJSON
// FeatureCollection and an ESRI point shapefile. Cells without coordinates
// are not exported.
package export

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"pciplan/pkg/geo"
	"pciplan/pkg/model"
)

// position returns the result location in orb's [lon, lat] order.
func position(r model.Result) (orb.Point, bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return orb.Point{}, false
	}
	return geo.Point{Lat: *r.Latitude, Lon: *r.Longitude}.Orb(), true
}

// FeatureCollection builds one point feature per located result.
func FeatureCollection(results []model.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range results {
		pt, ok := position(r)
		if !ok {
			continue
		}
		f := geojson.NewFeature(pt)
		f.ID = r.Key.String()
		f.Properties["network_id"] = r.Key.NetworkID
		f.Properties["cell_local_id"] = r.Key.CellID
		f.Properties["name"] = r.Name
		f.Properties["network"] = string(r.Network)
		f.Properties["original_pci"] = optInt(r.OriginalPCI)
		f.Properties["assigned_pci"] = optInt(r.AssignedPCI)
		f.Properties["assigned_modulus"] = optInt(r.AssignedMod)
		f.Properties["modulus_matched"] = string(r.ModMatched)
		f.Properties["frequency"] = optFloat(r.Frequency)
		f.Properties["assignment_reason"] = string(r.Reason)
		f.Properties["predicted_distance_km"] = finiteOrNil(r.PredictedKm, r.AssignedPCI != nil)
		f.Properties["verified_min_reuse_distance"] = r.Verified.String()
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON writes the result layer to path and returns the feature count.
func WriteGeoJSON(path string, results []model.Result) (int, error) {
	fc := FeatureCollection(results)

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write output file: %w", err)
	}
	return len(fc.Features), nil
}

func optInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func optFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// finiteOrNil drops values JSON cannot carry. An unreused PCI has no
// predicted distance to report.
func finiteOrNil(v float64, present bool) any {
	if !present || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return math.Round(v*100) / 100
}
