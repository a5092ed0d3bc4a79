package snapshot

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"pciplan/pkg/model"
)

func TestReadCells(t *testing.T) {
	in := "\ufeffnetwork_id,cell_local_id,name,latitude,longitude,pci,frequency\n" +
		"100,1,SiteA-1,39.9,116.4,12,1850\n" +
		"100.0,2,SiteA-2,,,,\n" +
		",,,,,,\n" +
		"200,3,,39.91,116.41,7,38400.0\n" +
		"300,4,SiteC-1,39.92,116.42,-1,1850\n"

	cells, err := ReadCells(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, cells, 4, "blank rows are skipped")

	assert.Equal(t, model.CellKey{NetworkID: 100, CellID: 1}, cells[0].Key())
	assert.Equal(t, "SiteA-1", cells[0].Name)
	require.NotNil(t, cells[0].PCI)
	assert.Equal(t, 12, *cells[0].PCI)
	assert.InDelta(t, 1850, *cells[0].Frequency, 1e-9)

	assert.Equal(t, int64(100), cells[1].NetworkID, "float-rendered ids are accepted")
	assert.Nil(t, cells[1].Latitude)
	assert.Nil(t, cells[1].Longitude)
	assert.Nil(t, cells[1].PCI)
	assert.Nil(t, cells[1].Frequency)

	assert.Equal(t, int64(200), cells[2].NetworkID)
	assert.Equal(t, "", cells[2].Name)

	assert.Nil(t, cells[3].PCI, "-1 marks an unassigned PCI")
	assert.NotNil(t, cells[3].Latitude)
}

func TestReadCells_GB18030(t *testing.T) {
	utf := "network_id,cell_local_id,name\n1,1,北京朝阳-1\n"
	raw, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte(utf))
	require.NoError(t, err)

	text, enc, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "gb18030", enc)
	assert.Equal(t, utf, string(text))

	cells, err := ReadCells(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, "北京朝阳-1", cells[0].Name)
}

func TestReadCells_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"Empty", "", ErrMissingColumn},
		{"Missing cell id column", "network_id,name\n1,a\n", ErrMissingColumn},
		{"Blank identity", "network_id,cell_local_id\n,1\n", ErrMalformed},
		{"Fractional identity", "network_id,cell_local_id\n1.5,1\n", ErrMalformed},
		{"Bad latitude", "network_id,cell_local_id,latitude\n1,1,north\n", ErrMalformed},
		{"Bad pci", "network_id,cell_local_id,pci\n1,1,x\n", ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCells(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadRequest(t *testing.T) {
	in := "network_id,cell_local_id,comment\n1,2,x\n\n3,4,y\n1,2,dup\n"
	keys, err := ReadRequest(strings.NewReader(in))
	require.NoError(t, err)
	// Duplicates are kept here; the planner deduplicates.
	assert.Equal(t, []model.CellKey{{NetworkID: 1, CellID: 2}, {NetworkID: 3, CellID: 4}, {NetworkID: 1, CellID: 2}}, keys)

	_, err = ReadRequest(strings.NewReader("cell_local_id\n1\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestWriteCells_RoundTrip(t *testing.T) {
	records := []model.CellRecord{
		{NetworkID: 1, CellID: 2, Name: "a,b", Latitude: model.Float(39.123456), Longitude: model.Float(116.5), PCI: model.Int(0), Frequency: model.Float(1850)},
		{NetworkID: 3, CellID: 4},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCells(&buf, records))

	got, err := ReadCells(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestWriteResults(t *testing.T) {
	results := []model.Result{
		{
			Key: model.CellKey{NetworkID: 1, CellID: 1}, Name: "a", Network: model.LTE,
			OriginalPCI: model.Int(4), AssignedPCI: model.Int(7),
			OriginalMod: model.Int(1), AssignedMod: model.Int(1), ModMatched: model.ModMatchYes,
			Frequency: model.Float(1850), Reason: model.ReasonStrictInheritance,
			PredictedKm: math.Inf(1),
			Verified:    model.VerifiedDistance{Km: math.Inf(1), Status: model.VerifyNoReusePCI},
		},
		{
			Key: model.CellKey{NetworkID: 1, CellID: 2}, Name: "b", Network: model.LTE,
			AssignedPCI: model.Int(11), AssignedMod: model.Int(2), ModMatched: model.ModMatchIncomparable,
			Reason: model.ReasonFreePlanning, PredictedKm: 4.256,
			Verified: model.VerifiedDistance{Km: 4.256},
		},
		{
			Key: model.CellKey{NetworkID: 9, CellID: 9}, Name: "cell_9_9", Network: model.LTE,
			ModMatched: model.ModMatchIncomparable, Reason: model.ReasonCellNotFound,
			Verified: model.VerifiedDistance{Status: model.VerifyAssignmentFailed},
		},
	}

	path := filepath.Join(t.TempDir(), "out", "results.csv")
	require.NoError(t, WriteResultsFile(path, results))

	rows := readCSV(t, path)
	require.Len(t, rows, 4)
	assert.Equal(t, ResultColumns, rows[0])
	assert.Equal(t, []string{"1", "1", "a", "LTE", "4", "7", "1", "1", "yes", "1850", "strict_modulus_inheritance", "no_reuse_pci", "no_reuse_pci"}, rows[1])
	assert.Equal(t, []string{"1", "2", "b", "LTE", "", "11", "", "2", "incomparable", "", "free_planning_reuse_compliant", "4.26", "4.26"}, rows[2])
	assert.Equal(t, "", rows[3][11], "no predicted distance without a PCI")
	assert.Equal(t, "assignment_failed", rows[3][12])
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
