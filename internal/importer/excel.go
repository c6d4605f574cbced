package importer

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// parseWorkbook reads the first sheet of an Excel workbook into a table.
func parseWorkbook(content []byte) (*table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("importer: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &table{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("importer: read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return &table{}, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = normalizeHeader(h)
	}

	t := &table{Headers: headers}
	for i, record := range rows[1:] {
		if isEmptyRow(record) {
			continue
		}
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

func isEmptyRow(record []string) bool {
	for _, cell := range record {
		if cell != "" {
			return false
		}
	}
	return true
}
