package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"pciplan/pkg/model"
	"pciplan/pkg/planner"
)

func printRun(w io.Writer, run *planner.Run, issues []planner.SiteIssue, paths []string) {
	s := run.Stats
	req := run.Request

	fmt.Fprintf(w, "=== %s PCI planning run %s ===\n", req.Network, run.ID)
	fmt.Fprintf(w, "Reuse distance: %.1f km, modulus inheritance: %v\n", req.ReuseDistanceKm, req.InheritModulus)
	fmt.Fprintf(w, "Duration: %s\n\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))

	fmt.Fprintf(w, "Cells requested: %d\n", s.Requested)
	fmt.Fprintf(w, "Assigned:        %d (%s)\n", s.Assigned, percent(s.Assigned, s.Requested))
	fmt.Fprintf(w, "Fallbacks:       %d (%d placeholders)\n", s.Fallbacks, s.Placeholders)

	if len(s.ByReason) > 0 {
		fmt.Fprintln(w, "\nBy reason:")
		reasons := make([]model.Reason, 0, len(s.ByReason))
		for r := range s.ByReason {
			reasons = append(reasons, r)
		}
		sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
		for _, r := range reasons {
			fmt.Fprintf(w, "  %-55s %d\n", r, s.ByReason[r])
		}
	}

	fmt.Fprintf(w, "\nModulus kept: yes %d, no %d, incomparable %d\n",
		s.ModMatch[model.ModMatchYes], s.ModMatch[model.ModMatchNo], s.ModMatch[model.ModMatchIncomparable])

	fmt.Fprintln(w, "\nVerified reuse distance:")
	fmt.Fprintf(w, "  >= %.1f km:   %d\n", req.ReuseDistanceKm, s.Compliant)
	fmt.Fprintf(w, "  <  %.1f km:   %d\n", req.ReuseDistanceKm, s.BelowThreshold)
	fmt.Fprintf(w, "  no reuse:    %d\n", s.NoReuse)

	if len(issues) > 0 {
		fmt.Fprintf(w, "\nCO-SITE COLLISIONS (%d):\n", len(issues))
		for _, is := range issues {
			fmt.Fprintf(w, "  [%.6f, %.6f] mod %d = %d: %v\n", is.Position.Lat, is.Position.Lon, is.Modulus, is.Value, is.Cells)
		}
	}

	if len(paths) > 0 {
		fmt.Fprintln(w, "\nOutputs:")
		for _, p := range paths {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}

func percent(n, total int) string {
	if total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
