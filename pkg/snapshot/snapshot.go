// Package snapshot reads cell snapshots and planning requests from CSV and
// writes planning results back to CSV.
//
// Column names are exact. Blank fields mean "absent". Input bytes are decoded
// as UTF-8 when valid and as GB18030 otherwise.
package snapshot

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"

	"pciplan/pkg/model"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrMalformed     = errors.New("malformed field")
	ErrUndecodable   = errors.New("unable to decode csv with supported encodings")
)

// Cell snapshot columns.
const (
	ColNetworkID = "network_id"
	ColCellID    = "cell_local_id"
	ColName      = "name"
	ColLatitude  = "latitude"
	ColLongitude = "longitude"
	ColPCI       = "pci"
	ColFrequency = "frequency"
)

// CellColumns is the header written for cell snapshots.
var CellColumns = []string{ColNetworkID, ColCellID, ColName, ColLatitude, ColLongitude, ColPCI, ColFrequency}

type textDecoder struct {
	name   string
	decode func([]byte) ([]byte, error)
}

func decodeUTF8(data []byte) ([]byte, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("invalid utf-8")
	}
	return data, nil
}

func defaultTextDecoders() []textDecoder {
	return []textDecoder{
		{name: "utf-8", decode: decodeUTF8},
		{name: "gb18030", decode: func(b []byte) ([]byte, error) { return simplifiedchinese.GB18030.NewDecoder().Bytes(b) }},
	}
}

// Decode converts raw file bytes to UTF-8 and strips a leading BOM.
// It returns the name of the encoding that succeeded.
func Decode(raw []byte) ([]byte, string, error) {
	for _, dec := range defaultTextDecoders() {
		text, err := dec.decode(raw)
		if err != nil {
			continue
		}
		return bytes.TrimPrefix(text, []byte("\xef\xbb\xbf")), dec.name, nil
	}
	return nil, "", ErrUndecodable
}

// table is a decoded CSV with its header index.
type table struct {
	idx  map[string]int
	rows [][]string
}

func readTable(r io.Reader, required ...string) (*table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text, _, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &table{idx: make(map[string]int, len(headers))}
	for i, h := range headers {
		t.idx[strings.TrimSpace(h)] = i
	}
	for _, col := range required {
		if _, ok := t.idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	t.rows, err = reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv read error: %w", err)
	}
	return t, nil
}

func (t *table) get(row []string, col string) string {
	if i, ok := t.idx[col]; ok && i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func blankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func (t *table) key(row []string, line int) (model.CellKey, error) {
	nid, err := parseID(t.get(row, ColNetworkID))
	if err != nil {
		return model.CellKey{}, fmt.Errorf("line %d %s: %w", line, ColNetworkID, err)
	}
	cid, err := parseID(t.get(row, ColCellID))
	if err != nil {
		return model.CellKey{}, fmt.Errorf("line %d %s: %w", line, ColCellID, err)
	}
	return model.CellKey{NetworkID: nid, CellID: cid}, nil
}

// ReadCells parses a cell snapshot. Rows keep file order; duplicate keys are
// left for the directory to reject.
func ReadCells(r io.Reader) ([]model.CellRecord, error) {
	t, err := readTable(r, ColNetworkID, ColCellID)
	if err != nil {
		return nil, err
	}

	out := make([]model.CellRecord, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		if blankRow(row) {
			continue
		}
		key, err := t.key(row, line)
		if err != nil {
			return nil, err
		}
		rec := model.CellRecord{NetworkID: key.NetworkID, CellID: key.CellID, Name: t.get(row, ColName)}

		fields := []struct {
			col string
			dst **float64
		}{
			{ColLatitude, &rec.Latitude},
			{ColLongitude, &rec.Longitude},
			{ColFrequency, &rec.Frequency},
		}
		for _, f := range fields {
			if *f.dst, err = parseFloat(t.get(row, f.col)); err != nil {
				return nil, fmt.Errorf("line %d %s: %w", line, f.col, err)
			}
		}
		if rec.PCI, err = parseInt(t.get(row, ColPCI)); err != nil {
			return nil, fmt.Errorf("line %d %s: %w", line, ColPCI, err)
		}
		if rec.PCI != nil && *rec.PCI == model.UnassignedPCI {
			rec.PCI = nil
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadRequest parses the list of cells to plan.
func ReadRequest(r io.Reader) ([]model.CellKey, error) {
	t, err := readTable(r, ColNetworkID, ColCellID)
	if err != nil {
		return nil, err
	}
	keys := make([]model.CellKey, 0, len(t.rows))
	for i, row := range t.rows {
		if blankRow(row) {
			continue
		}
		key, err := t.key(row, i+2)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ReadCellsFile opens and parses a cell snapshot.
func ReadCellsFile(path string) ([]model.CellRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cells csv: %w", err)
	}
	defer f.Close()
	return ReadCells(f)
}

// ReadRequestFile opens and parses a request list.
func ReadRequestFile(path string) ([]model.CellKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open request csv: %w", err)
	}
	defer f.Close()
	return ReadRequest(f)
}

// WriteCells writes records with the snapshot header.
func WriteCells(w io.Writer, records []model.CellRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CellColumns); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.NetworkID, 10),
			strconv.FormatInt(r.CellID, 10),
			r.Name,
			formatFloat(r.Latitude),
			formatFloat(r.Longitude),
			formatInt(r.PCI),
			formatFloat(r.Frequency),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseID(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: blank identity", ErrMalformed)
	}
	// Spreadsheet exports often render integer ids as "123.0".
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrMalformed, s)
	}
	return int64(f), nil
}

func parseInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := parseID(s)
	if err != nil {
		return nil, err
	}
	return model.Int(int(v)), nil
}

func parseFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", ErrMalformed, s)
	}
	return model.Float(v), nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
