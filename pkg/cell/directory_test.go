package cell

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pciplan/pkg/geo"
	"pciplan/pkg/model"
)

func rec(enb, cid int64, lat, lon float64, pci int, freq float64) model.CellRecord {
	return model.CellRecord{
		NetworkID: enb,
		CellID:    cid,
		Latitude:  model.Float(lat),
		Longitude: model.Float(lon),
		PCI:       model.Int(pci),
		Frequency: model.Float(freq),
	}
}

func keys(cells []*model.Cell) []model.CellKey {
	out := make([]model.CellKey, 0, len(cells))
	for _, c := range cells {
		out = append(out, c.Key)
	}
	return out
}

func TestNewDirectory_Errors(t *testing.T) {
	tests := []struct {
		name    string
		records []model.CellRecord
		wantErr error
	}{
		{
			name:    "Duplicate",
			records: []model.CellRecord{rec(1, 1, 39.9, 116.4, 1, 100), rec(1, 1, 39.9, 116.4, 2, 100)},
			wantErr: ErrDuplicateCell,
		},
		{
			name:    "PCI out of range",
			records: []model.CellRecord{rec(1, 1, 39.9, 116.4, 504, 100)},
			wantErr: ErrInvalidPCI,
		},
		{
			name:    "NaN latitude",
			records: []model.CellRecord{rec(1, 1, math.NaN(), 116.4, 1, 100)},
			wantErr: ErrInvalidPosition,
		},
		{
			name:    "NaN frequency",
			records: []model.CellRecord{rec(1, 1, 39.9, 116.4, 1, math.NaN())},
			wantErr: ErrInvalidFreq,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDirectory(model.LTE, tt.records)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestNewDirectory_NRRange(t *testing.T) {
	d, err := NewDirectory(model.NR, []model.CellRecord{rec(1, 1, 39.9, 116.4, 1007, 100)})
	require.NoError(t, err)
	c, err := d.Lookup(model.CellKey{NetworkID: 1, CellID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1007, *c.PCI)
}

func TestNewDirectory_UnassignedPCI(t *testing.T) {
	d, err := NewDirectory(model.LTE, []model.CellRecord{rec(1, 1, 39.9, 116.4, model.UnassignedPCI, 100)})
	require.NoError(t, err)
	c, err := d.Lookup(model.CellKey{NetworkID: 1, CellID: 1})
	require.NoError(t, err)
	assert.Nil(t, c.PCI)
	assert.Empty(t, d.SameFrequencySamePCI(model.UnassignedPCI, 100))

	_, err = NewDirectory(model.LTE, []model.CellRecord{rec(1, 1, 39.9, 116.4, -2, 100)})
	assert.True(t, errors.Is(err, ErrInvalidPCI), "only -1 means unassigned")
}

func TestLookup(t *testing.T) {
	d, err := NewDirectory(model.LTE, []model.CellRecord{
		rec(1, 1, 39.9, 116.4, 1, 100),
		{NetworkID: 2, CellID: 1, Name: "no-location", Latitude: model.Float(39.9)},
	})
	require.NoError(t, err)

	c, err := d.Lookup(model.CellKey{NetworkID: 1, CellID: 1})
	require.NoError(t, err)
	assert.True(t, c.HasLocation())

	c, err = d.Lookup(model.CellKey{NetworkID: 2, CellID: 1})
	require.NoError(t, err)
	assert.False(t, c.HasLocation(), "a lone latitude is not a position")

	_, err = d.Lookup(model.CellKey{NetworkID: 9, CellID: 9})
	assert.True(t, errors.Is(err, model.ErrCellNotFound))
}

func TestSameLocation(t *testing.T) {
	for _, cached := range []bool{true, false} {
		d, err := NewDirectory(model.LTE, []model.CellRecord{
			rec(1, 1, 39.9, 116.4, 0, 100),
			rec(1, 2, 39.90005, 116.40005, 1, 100), // inside tolerance
			rec(2, 1, 39.9002, 116.4, 2, 100),      // outside in latitude
			rec(3, 1, 39.9, 116.4002, 2, 100),      // outside in longitude
			{NetworkID: 4, CellID: 1, PCI: model.Int(5)},
			rec(1, 3, 39.89995, 116.39995, 2, 200), // inside, other frequency
		}, WithCaching(cached))
		require.NoError(t, err)

		pos := geo.Point{Lat: 39.9, Lon: 116.4}
		got := keys(d.SameLocation(pos, model.CellKey{NetworkID: 1, CellID: 1}))
		assert.Equal(t, []model.CellKey{{NetworkID: 1, CellID: 2}, {NetworkID: 1, CellID: 3}}, got)

		got = keys(d.SameLocation(pos))
		assert.Len(t, got, 3)
	}
}

func TestSameFrequencySamePCI(t *testing.T) {
	d, err := NewDirectory(model.LTE, []model.CellRecord{
		rec(1, 1, 39.9, 116.4, 10, 100),
		rec(2, 1, 39.95, 116.4, 10, 100),
		rec(3, 1, 39.96, 116.4, 10, 200),
		{NetworkID: 4, CellID: 1, PCI: model.Int(10), Frequency: model.Float(100)},
	})
	require.NoError(t, err)

	got := keys(d.SameFrequencySamePCI(10, 100, model.CellKey{NetworkID: 1, CellID: 1}))
	assert.Equal(t, []model.CellKey{{NetworkID: 2, CellID: 1}}, got, "other frequencies and located-less cells are excluded")

	assert.Empty(t, d.SameFrequencySamePCI(11, 100))
}

func TestSetPCI(t *testing.T) {
	d, err := NewDirectory(model.LTE, []model.CellRecord{
		rec(1, 1, 39.9, 116.4, 10, 100),
		rec(1, 2, 39.9, 116.4, 11, 100),
		{NetworkID: 2, CellID: 1, Latitude: model.Float(39.95), Longitude: model.Float(116.4), Frequency: model.Float(100)},
	})
	require.NoError(t, err)

	var changes []Change
	d.OnChange(func(c Change) { changes = append(changes, c) })

	pos := geo.Point{Lat: 39.9, Lon: 116.4}
	// Warm the co-location cache, then mutate and make sure the next read sees it.
	before := d.SameLocation(pos, model.CellKey{NetworkID: 1, CellID: 1})
	require.Len(t, before, 1)
	assert.Equal(t, 11, *before[0].PCI)

	require.NoError(t, d.SetPCI(model.CellKey{NetworkID: 1, CellID: 2}, 12))
	after := d.SameLocation(pos, model.CellKey{NetworkID: 1, CellID: 1})
	assert.Equal(t, 12, *after[0].PCI)

	assert.Empty(t, d.SameFrequencySamePCI(11, 100))
	assert.Len(t, d.SameFrequencySamePCI(12, 100), 1)

	require.NoError(t, d.SetPCI(model.CellKey{NetworkID: 2, CellID: 1}, 10))
	assert.Len(t, d.SameFrequencySamePCI(10, 100), 2)

	require.Len(t, changes, 2)
	assert.Equal(t, 11, *changes[0].OldPCI)
	assert.Equal(t, 12, changes[0].NewPCI)
	assert.Nil(t, changes[1].OldPCI)

	assert.True(t, errors.Is(d.SetPCI(model.CellKey{NetworkID: 1, CellID: 1}, 600), ErrInvalidPCI))
	assert.True(t, errors.Is(d.SetPCI(model.CellKey{NetworkID: 7, CellID: 7}, 1), model.ErrCellNotFound))
}

func TestRecords(t *testing.T) {
	in := []model.CellRecord{
		rec(1, 1, 39.9, 116.4, 10, 100),
		{NetworkID: 2, CellID: 1, Name: "bare"},
	}
	d, err := NewDirectory(model.LTE, in)
	require.NoError(t, err)
	require.NoError(t, d.SetPCI(model.CellKey{NetworkID: 2, CellID: 1}, 7))

	out := d.Records()
	require.Len(t, out, 2)
	assert.Equal(t, 10, *out[0].PCI)
	assert.Equal(t, 7, *out[1].PCI)
	assert.Nil(t, out[1].Latitude)
	assert.Equal(t, "bare", out[1].Name)
}
