package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"pciplan/pkg/model"
)

// ResultColumns is the header of the results file.
var ResultColumns = []string{
	ColNetworkID,
	ColCellID,
	ColName,
	"network",
	"original_pci",
	"assigned_pci",
	"original_modulus",
	"assigned_modulus",
	"modulus_matched",
	ColFrequency,
	"assignment_reason",
	"predicted_distance_km",
	"verified_min_reuse_distance",
}

// WriteResults writes one row per result, in the given order.
func WriteResults(w io.Writer, results []model.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultColumns); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			strconv.FormatInt(r.Key.NetworkID, 10),
			strconv.FormatInt(r.Key.CellID, 10),
			r.Name,
			string(r.Network),
			formatInt(r.OriginalPCI),
			formatInt(r.AssignedPCI),
			formatInt(r.OriginalMod),
			formatInt(r.AssignedMod),
			string(r.ModMatched),
			formatFloat(r.Frequency),
			string(r.Reason),
			formatPredicted(r),
			r.Verified.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResultsFile writes results to path, creating parent directories.
func WriteResultsFile(path string, results []model.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results csv: %w", err)
	}
	if err := WriteResults(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatPredicted(r model.Result) string {
	switch {
	case r.AssignedPCI == nil:
		return ""
	case math.IsInf(r.PredictedKm, 1):
		return string(model.VerifyNoReusePCI)
	}
	return strconv.FormatFloat(math.Round(r.PredictedKm*100)/100, 'f', 2, 64)
}
