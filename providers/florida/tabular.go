package florida

import (
	"bytes"
	"encoding/csv"
	"strings"

	"rxcost/internal/errors"
)

// RowSource turns a raw export payload into header-keyed rows. The state
// publishes the export as a spreadsheet; converting workbook bytes to rows
// is someone else's job, and the bundled implementation reads CSV.
type RowSource interface {
	Rows(data []byte) ([]map[string]string, error)
}

// CSVSource parses comma-separated exports. The first record is the header
// row; header names are lowercased and trimmed so alias lookups are
// insensitive to the export's formatting.
type CSVSource struct{}

// Rows implements RowSource
func (CSVSource) Rows(data []byte) ([]map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Parsing("failed to parse export", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// columnAliases maps each logical field to the header spellings seen across
// export revisions, tried in order.
var columnAliases = map[string][]string{
	"drug":     {"drug name", "brand name", "medication", "drug"},
	"ndc":      {"ndc code", "ndc"},
	"pharmacy": {"pharmacy name", "pharmacy"},
	"price":    {"unit price", "price per unit", "retail price", "price"},
	"city":     {"city"},
	"county":   {"county"},
	"zip":      {"zip code", "zip"},
	"strength": {"strength"},
	"form":     {"dosage form", "form"},
	"date":     {"effective date", "report date", "date"},
}

// column returns the first aliased value present in the row.
func column(row map[string]string, field string) string {
	for _, alias := range columnAliases[field] {
		if v, ok := row[alias]; ok && v != "" {
			return v
		}
	}
	return ""
}
