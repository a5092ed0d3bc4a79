package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"

	"pciplan/pkg/model"
)

// wgs84 is the .prj content for plain longitude/latitude coordinates.
const wgs84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// Shapefile attribute columns. DBF names are limited to 10 characters.
const (
	FieldNetworkID = "NET_ID"
	FieldCellID    = "CELL_ID"
	FieldName      = "NAME"
	FieldNetwork   = "NETWORK"
	FieldOrigPCI   = "ORIG_PCI"
	FieldPCI       = "PCI"
	FieldMod       = "PCI_MOD"
	FieldModMatch  = "MOD_MATCH"
	FieldReason    = "REASON"
	FieldPredicted = "PRED_KM"
	FieldVerified  = "VERIFIED"
)

func shapeFields() []shp.Field {
	return []shp.Field{
		shp.NumberField(FieldNetworkID, 18),
		shp.NumberField(FieldCellID, 18),
		shp.StringField(FieldName, 120),
		shp.StringField(FieldNetwork, 4),
		shp.NumberField(FieldOrigPCI, 5),
		shp.NumberField(FieldPCI, 5),
		shp.NumberField(FieldMod, 3),
		shp.StringField(FieldModMatch, 12),
		shp.StringField(FieldReason, 80),
		shp.FloatField(FieldPredicted, 12, 2),
		shp.StringField(FieldVerified, 20),
	}
}

// WriteShapefile writes the result layer as a point shapefile (.shp, .shx,
// .dbf and a WGS84 .prj) and returns the feature count.
func WriteShapefile(path string, results []model.Result) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return 0, fmt.Errorf("failed to create shapefile: %w", err)
	}
	if err := w.SetFields(shapeFields()); err != nil {
		w.Close()
		return 0, fmt.Errorf("failed to set fields: %w", err)
	}

	count := 0
	for _, r := range results {
		pt, ok := position(r)
		if !ok {
			continue
		}
		row := int(w.Write(&shp.Point{X: pt.X(), Y: pt.Y()}))
		if err := writeAttributes(w, row, r); err != nil {
			w.Close()
			return count, fmt.Errorf("cell %s: %w", r.Key, err)
		}
		count++
	}
	w.Close()

	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	if err := os.WriteFile(prj, []byte(wgs84), 0o644); err != nil {
		return count, fmt.Errorf("failed to write projection: %w", err)
	}
	return count, nil
}

func writeAttributes(w *shp.Writer, row int, r model.Result) error {
	attrs := []any{
		int(r.Key.NetworkID),
		int(r.Key.CellID),
		r.Name,
		string(r.Network),
		optInt(r.OriginalPCI),
		optInt(r.AssignedPCI),
		optInt(r.AssignedMod),
		string(r.ModMatched),
		string(r.Reason),
		nil,
		r.Verified.String(),
	}
	if r.AssignedPCI != nil && !math.IsInf(r.PredictedKm, 0) {
		attrs[9] = r.PredictedKm
	}
	for i, v := range attrs {
		// Absent values stay blank in the DBF.
		if v == nil {
			continue
		}
		if err := w.WriteAttribute(row, i, v); err != nil {
			return err
		}
	}
	return nil
}
