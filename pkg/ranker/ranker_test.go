package ranker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pciplan/pkg/cell"
	"pciplan/pkg/cosite"
	"pciplan/pkg/geo"
	"pciplan/pkg/model"
	"pciplan/pkg/reuse"
)

var origin = geo.Point{Lat: 39.90, Lon: 116.40}

const freq = 1850.0

func at(enb, cid int64, p geo.Point, pci *int) model.CellRecord {
	return model.CellRecord{
		NetworkID: enb,
		CellID:    cid,
		Latitude:  model.Float(p.Lat),
		Longitude: model.Float(p.Lon),
		PCI:       pci,
		Frequency: model.Float(freq),
	}
}

func newRanker(t *testing.T, network model.NetworkType, records ...model.CellRecord) *Ranker {
	t.Helper()
	d, err := cell.NewDirectory(network, records)
	require.NoError(t, err)
	v := reuse.New(d, geo.NewCalculator(true), true)
	return New(network, v, cosite.New(d, network), nil)
}

func target() Target {
	return Target{Key: model.CellKey{NetworkID: 1, CellID: 1}, Position: origin, Frequency: model.Float(freq)}
}

func TestDomain(t *testing.T) {
	lte := newRanker(t, model.LTE)
	assert.Len(t, lte.Domain(nil), 504)

	d := lte.Domain(model.Int(2))
	assert.Len(t, d, 168)
	assert.Equal(t, 2, d[0])
	assert.Equal(t, 503, d[len(d)-1])

	nr := newRanker(t, model.NR)
	assert.Len(t, nr.Domain(nil), 1008)
	d = nr.Domain(model.Int(7))
	assert.Len(t, d, 34)
	for _, pci := range d {
		assert.Equal(t, 7, pci%30)
	}
}

func TestRank_EmptyNetwork(t *testing.T) {
	r := newRanker(t, model.LTE, at(1, 1, origin, nil))
	got := r.Rank(target(), 3.0, nil)
	require.Len(t, got, 504)
	assert.Equal(t, 0, got[0].PCI)
	assert.True(t, got[0].Unused())
	assert.Equal(t, 0.0, got[0].BalanceScore)
}

func TestRank_InfiniteDistanceWins(t *testing.T) {
	// Existing users of PCI 10/11/12 sit beyond the threshold; they stay
	// eligible but rank behind every unused PCI.
	r := newRanker(t, model.LTE,
		at(1, 1, origin, nil),
		at(2, 1, geo.DestinationPoint(origin, 4.4, 30), model.Int(10)),
		at(3, 1, geo.DestinationPoint(origin, 5.5, 150), model.Int(11)),
		at(4, 1, geo.DestinationPoint(origin, 6.6, 270), model.Int(12)),
	)
	got := r.Rank(target(), 3.0, nil)
	require.Len(t, got, 504)
	assert.True(t, got[0].Unused())
	assert.NotContains(t, []int{10, 11, 12}, got[0].PCI)

	// The finite ones come last, larger distance first.
	tail := got[len(got)-3:]
	assert.Equal(t, []int{12, 11, 10}, []int{tail[0].PCI, tail[1].PCI, tail[2].PCI})
	assert.InDelta(t, 6.6-3.0, tail[0].BalanceScore, 1e-3)
}

func TestRank_HardFilter(t *testing.T) {
	r := newRanker(t, model.LTE,
		at(1, 1, origin, nil),
		at(2, 1, geo.DestinationPoint(origin, 1.0, 0), model.Int(10)),
	)
	got := r.Rank(target(), 3.0, nil)
	assert.Len(t, got, 503)
	for _, c := range got {
		assert.NotEqual(t, 10, c.PCI)
		assert.True(t, c.ReuseCompliant)
	}

	got = r.Rank(target(), 0.5, nil)
	assert.Len(t, got, 504, "a lower threshold readmits the PCI")
}

func TestRank_Inheritance(t *testing.T) {
	r := newRanker(t, model.LTE, at(1, 1, origin, model.Int(7)))
	got := r.Rank(target(), 3.0, model.Int(1))
	require.NotEmpty(t, got)
	for _, c := range got {
		assert.Equal(t, 1, c.PCI%3)
	}
	assert.Equal(t, 1, got[0].PCI)
}

func TestRank_LTECoSite(t *testing.T) {
	r := newRanker(t, model.LTE,
		at(1, 1, origin, nil),
		at(1, 2, origin, model.Int(0)),
		at(1, 3, origin, model.Int(1)),
	)
	got := r.Rank(target(), 3.0, nil)
	require.NotEmpty(t, got)
	assert.Equal(t, 2, got[0].PCI%3, "the only free mod3 value leads")
	assert.False(t, got[0].Conflict.Any())
	// 0 and 1 are taken by the siblings at distance 0.
	for _, c := range got {
		assert.NotContains(t, []int{0, 1}, c.PCI)
	}
}

func TestRank_LTESaturatedSite(t *testing.T) {
	r := newRanker(t, model.LTE,
		at(1, 1, origin, nil),
		at(1, 2, origin, model.Int(0)),
		at(1, 3, origin, model.Int(3)),
		at(1, 4, origin, model.Int(1)),
		at(1, 5, origin, model.Int(2)),
		at(1, 6, origin, model.Int(5)),
	)
	// mod3 users: 0 -> 2, 1 -> 1, 2 -> 2. mod3 1 is the least used.
	got := r.Rank(target(), 3.0, nil)
	require.NotEmpty(t, got)
	assert.Equal(t, 1, got[0].PCI%3)
	assert.True(t, got[0].Conflict.Saturated)

	firstOther := -1
	for i, c := range got {
		if c.PCI%3 != 1 {
			firstOther = i
			break
		}
	}
	require.Positive(t, firstOther)
	for _, c := range got[:firstOther] {
		assert.Equal(t, 1, c.PCI%3, "the whole least-used group precedes the rest")
	}
}

func TestRank_NRDual(t *testing.T) {
	// Siblings hold mod30 {0, 1} and mod3 {0, 1}.
	r := newRanker(t, model.NR,
		at(1, 1, origin, nil),
		at(1, 2, origin, model.Int(30)),
		at(1, 3, origin, model.Int(31)),
	)
	got := r.Rank(target(), 3.0, nil)
	require.NotEmpty(t, got)
	assert.Equal(t, 2, got[0].PCI, "mod30 2 and mod3 2 are both free")
	assert.False(t, got[0].Conflict.Any())

	// All clean candidates come before any mod-3-only clash, which come
	// before primary clashes.
	last := 0
	for _, c := range got {
		s := c.Conflict.Severity()
		assert.GreaterOrEqual(t, s, last)
		last = s
	}
}

func TestRank_NRInheritedMod30Clash(t *testing.T) {
	// Inheritance pins mod30 to 0 which a sibling already uses; every
	// candidate clashes on the primary modulus but the list is not empty.
	r := newRanker(t, model.NR,
		at(1, 1, origin, model.Int(60)),
		at(1, 2, origin, model.Int(30)),
	)
	got := r.Rank(target(), 3.0, model.Int(0))
	require.NotEmpty(t, got)
	for _, c := range got {
		assert.True(t, c.Conflict.Primary)
		assert.Equal(t, 0, c.PCI%30)
	}
}

func TestLess(t *testing.T) {
	inf := math.Inf(1)
	clean := cosite.Conflict{}
	clash := cosite.Conflict{Primary: true, Mod3: true}

	tests := []struct {
		name string
		a, b Candidate
	}{
		{"conflict first", Candidate{PCI: 9, MinDistanceKm: 4, Conflict: clean}, Candidate{PCI: 1, MinDistanceKm: inf, Conflict: clash}},
		{"compliance", Candidate{PCI: 9, ReuseCompliant: true, MinDistanceKm: 1}, Candidate{PCI: 1, MinDistanceKm: 2}},
		{"infinite distance", Candidate{PCI: 9, MinDistanceKm: inf}, Candidate{PCI: 1, MinDistanceKm: 100}},
		{"larger distance", Candidate{PCI: 9, MinDistanceKm: 8}, Candidate{PCI: 1, MinDistanceKm: 5}},
		{"balance", Candidate{PCI: 9, MinDistanceKm: 5, BalanceScore: 1}, Candidate{PCI: 1, MinDistanceKm: 5, BalanceScore: 2}},
		{"pci", Candidate{PCI: 1, MinDistanceKm: inf}, Candidate{PCI: 2, MinDistanceKm: inf}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, less(tt.a, tt.b))
			assert.False(t, less(tt.b, tt.a))
		})
	}
}
