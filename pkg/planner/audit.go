package planner

import (
	"sort"

	"pciplan/pkg/geo"
	"pciplan/pkg/model"
)

// SiteIssue is a co-location group in which several cells share a primary
// modulus value.
type SiteIssue struct {
	Position geo.Point
	Modulus  int
	Value    int
	Cells    []model.CellKey
}

// AuditCoSite scans every located, assigned cell of the directory and reports
// the primary modulus collisions that remain. Each group is reported once,
// anchored at its first cell in snapshot order.
func (p *Planner) AuditCoSite() []SiteIssue {
	mod := p.req.Network.Modulus()
	visited := make(map[model.CellKey]bool)
	var issues []SiteIssue

	for _, c := range p.cells.Cells() {
		if visited[c.Key] || c.Position == nil || c.PCI == nil {
			continue
		}
		group := p.cells.SameLocation(*c.Position)
		byValue := make(map[int][]model.CellKey)
		for _, m := range group {
			visited[m.Key] = true
			if m.PCI == nil {
				continue
			}
			v := *m.PCI % mod
			byValue[v] = append(byValue[v], m.Key)
		}

		values := make([]int, 0, len(byValue))
		for v, members := range byValue {
			if len(members) > 1 {
				values = append(values, v)
			}
		}
		sort.Ints(values)
		for _, v := range values {
			issues = append(issues, SiteIssue{
				Position: *c.Position,
				Modulus:  mod,
				Value:    v,
				Cells:    byValue[v],
			})
		}
	}

	if len(issues) > 0 {
		p.logger.Warn("Co-site modulus collisions remain", "network", p.req.Network, "groups", len(issues))
	}
	return issues
}
