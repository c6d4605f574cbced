package importer

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// countPages returns the page count of a PDF upload. Automatic extraction of
// record data from PDFs is not implemented; the count drives the per-page
// warnings in the report.
func countPages(content []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(content), nil)
	if err != nil {
		return 0, fmt.Errorf("importer: count pdf pages: %w", err)
	}
	return n, nil
}
