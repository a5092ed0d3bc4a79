// Package ranker enumerates the legal PCI domain for a target cell, filters it
// by reuse distance and orders the survivors by co-site and distance criteria.
package ranker

import (
	"log/slog"
	"math"
	"sort"

	"pciplan/pkg/cosite"
	"pciplan/pkg/geo"
	"pciplan/pkg/logging"
	"pciplan/pkg/model"
)

// Candidate is one surviving PCI with its ranking attributes.
type Candidate struct {
	PCI            int
	MinDistanceKm  float64 // +Inf when no same-frequency cell uses the PCI
	ReuseCompliant bool
	Conflict       cosite.Conflict
	BalanceScore   float64
	// group is the modulus-diversity priority used for LTE regrouping.
	group int
}

// Unused reports whether no same-frequency cell holds the PCI.
func (c Candidate) Unused() bool {
	return math.IsInf(c.MinDistanceKm, 1)
}

// Target is the cell being planned.
type Target struct {
	Key       model.CellKey
	Position  geo.Point
	Frequency *float64
}

// ReuseValidator checks the reuse distance of a candidate.
type ReuseValidator interface {
	Validate(pci int, pos geo.Point, freq *float64, exclude model.CellKey, thresholdKm float64) (bool, float64)
}

// SiteReader reports the modulus values in use at a site.
type SiteReader interface {
	Site(pos geo.Point, exclude ...model.CellKey) cosite.SiteMods
}

// Ranker orders PCI candidates. It holds no state between calls.
type Ranker struct {
	network model.NetworkType
	reuse   ReuseValidator
	sites   SiteReader
	logger  *slog.Logger
}

// New creates a ranker.
func New(network model.NetworkType, reuse ReuseValidator, sites SiteReader, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{network: network, reuse: reuse, sites: sites, logger: logger}
}

// Domain lists the legal PCIs, restricted to one modulus class when requiredMod is set.
func (r *Ranker) Domain(requiredMod *int) []int {
	n := r.network.PCICount()
	if requiredMod == nil {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	mod := r.network.Modulus()
	out := make([]int, 0, n/mod+1)
	for pci := ((*requiredMod % mod) + mod) % mod; pci < n; pci += mod {
		out = append(out, pci)
	}
	return out
}

// Rank returns the compliant candidates for the target, best first. An empty
// result means no PCI in the domain keeps thresholdKm; the caller decides how
// to fall back.
func (r *Ranker) Rank(t Target, thresholdKm float64, requiredMod *int) []Candidate {
	site := r.sites.Site(t.Position, t.Key)
	domain := r.Domain(requiredMod)

	out := make([]Candidate, 0, len(domain))
	for _, pci := range domain {
		ok, d := r.reuse.Validate(pci, t.Position, t.Frequency, t.Key, thresholdKm)
		if !ok {
			continue
		}
		balance := 0.0
		if !math.IsInf(d, 1) {
			balance = math.Abs(d - thresholdKm)
		}
		out = append(out, Candidate{
			PCI:            pci,
			MinDistanceKm:  d,
			ReuseCompliant: d >= thresholdKm,
			Conflict:       site.Conflict(pci),
			BalanceScore:   balance,
		})
	}
	if len(out) == 0 {
		r.logger.Debug("No reuse-compliant PCI", "cell", t.Key, "threshold_km", thresholdKm, "domain", len(domain))
		return out
	}

	if r.network == model.LTE {
		assignGroups(out, site)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})

	if logging.EnableTrace {
		used := site.UsedMod3()
		for i, c := range out {
			logging.Trace(r.logger, "Candidate",
				"cell", t.Key, "rank", i+1, "pci", c.PCI,
				"distance_km", c.MinDistanceKm, "severity", c.Conflict.Severity(),
				"used_mod3", used)
		}
	}
	return out
}

// assignGroups enforces LTE modulus diversity at the group level. Candidates
// whose mod-3 value is unused at the site form the preferred groups. Once the
// site is saturated every mod-3 value is in use, and the value with the fewest
// co-located users wins (ties by smaller value).
func assignGroups(cands []Candidate, site cosite.SiteMods) {
	if !site.Saturated() {
		for i := range cands {
			if _, used := site.Mod3[cands[i].PCI%3]; used {
				cands[i].group = 1
			}
		}
		return
	}

	order := site.UsedMod3()
	sort.SliceStable(order, func(i, j int) bool {
		return site.Mod3[order[i]] < site.Mod3[order[j]]
	})
	rank := make(map[int]int, len(order))
	for i, m := range order {
		rank[m] = i
	}
	for i := range cands {
		cands[i].group = rank[cands[i].PCI%3]
	}
}

// less is the composite ordering: group, conflict severity, reuse
// compliance, larger distance, balance, PCI.
func less(a, b Candidate) bool {
	if a.group != b.group {
		return a.group < b.group
	}
	if sa, sb := a.Conflict.Severity(), b.Conflict.Severity(); sa != sb {
		return sa < sb
	}
	if a.ReuseCompliant != b.ReuseCompliant {
		return a.ReuseCompliant
	}
	if a.MinDistanceKm != b.MinDistanceKm {
		return a.MinDistanceKm > b.MinDistanceKm
	}
	if a.BalanceScore != b.BalanceScore {
		return a.BalanceScore < b.BalanceScore
	}
	return a.PCI < b.PCI
}
