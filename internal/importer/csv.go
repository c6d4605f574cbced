package importer

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// rawRow is one data row keyed by normalized header. Number counts data
// rows only, starting at 1; the header row is not numbered.
type rawRow struct {
	Number int
	Fields map[string]string
}

// table is the parsed content of a delimited or spreadsheet file.
type table struct {
	Headers []string
	Rows    []rawRow
}

// parseDelimited reads decoded CSV text. Ragged rows are tolerated: missing
// cells read as empty, extra cells are ignored.
func parseDelimited(text string) (*table, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(text, "\uFEFF")))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("importer: parse csv: %w", err)
	}
	if len(records) == 0 {
		return &table{}, nil
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = normalizeHeader(h)
	}

	t := &table{Headers: headers}
	for i, record := range records[1:] {
		fields := make(map[string]string, len(headers))
		for j, header := range headers {
			if j < len(record) {
				fields[header] = record[j]
			}
		}
		t.Rows = append(t.Rows, rawRow{Number: i + 1, Fields: fields})
	}
	return t, nil
}
