package importer

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// archiveEntry is one file extracted from a ZIP upload.
type archiveEntry struct {
	Name    string
	Content []byte
}

// readArchive extracts the entries of a ZIP upload. Directories are skipped;
// entry contents are fully buffered since uploads are size-capped anyway.
func readArchive(content []byte) ([]archiveEntry, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("importer: open archive: %w", err)
	}

	var entries []archiveEntry
	for _, file := range zr.File {
		if file.FileInfo().IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("importer: open archive entry %s: %w", file.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("importer: read archive entry %s: %w", file.Name, err)
		}
		entries = append(entries, archiveEntry{Name: file.Name, Content: data})
	}
	return entries, nil
}

func isCSVEntry(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".csv")
}

func isPDFEntry(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}
