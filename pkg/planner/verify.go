package planner

import (
	"math"
	"time"

	"github.com/google/uuid"

	"pciplan/pkg/model"
	"pciplan/pkg/reuse"
)

// Run is the record of one planning run.
type Run struct {
	ID         uuid.UUID
	Request    Request
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []model.Result
	Stats      Stats
}

// Verify recomputes the minimum reuse distance of a cell holding pci against
// the final directory state.
func Verify(c *model.Cell, pci *int, v *reuse.Validator) model.VerifiedDistance {
	switch {
	case !c.HasLocation():
		return model.VerifiedDistance{Status: model.VerifyLocationMissing}
	case pci == nil:
		return model.VerifiedDistance{Status: model.VerifyAssignmentFailed}
	}
	d := v.MinDistanceKm(*pci, *c.Position, c.Frequency, c.Key)
	if math.IsInf(d, 1) {
		return model.VerifiedDistance{Km: d, Status: model.VerifyNoReusePCI}
	}
	return model.VerifiedDistance{Km: d}
}

// Stats summarizes a run.
type Stats struct {
	Requested    int
	Assigned     int
	Fallbacks    int // relaxed threshold or placeholder
	Placeholders int
	ByReason     map[model.Reason]int
	ModMatch     map[model.ModMatch]int

	// Verified distance buckets for assigned cells.
	BelowThreshold int
	Compliant      int
	NoReuse        int
}

// Summarize counts results by reason, modulus match and verified distance.
func Summarize(results []model.Result, thresholdKm float64) Stats {
	s := Stats{
		Requested: len(results),
		ByReason:  make(map[model.Reason]int),
		ModMatch:  make(map[model.ModMatch]int),
	}
	for _, r := range results {
		s.ByReason[r.Reason]++
		s.ModMatch[r.ModMatched]++
		if r.AssignedPCI == nil {
			continue
		}
		s.Assigned++
		if r.Reason.IsFallback() {
			s.Fallbacks++
		}
		if r.Reason.IsPlaceholder() {
			s.Placeholders++
		}
		switch {
		case r.Verified.Status == model.VerifyNoReusePCI:
			s.NoReuse++
		case r.Verified.IsFinite() && r.Verified.Km < thresholdKm:
			s.BelowThreshold++
		case r.Verified.IsFinite():
			s.Compliant++
		}
	}
	return s
}
