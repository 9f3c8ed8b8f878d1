// Package loader reads heterogeneous search-result files into raw records.
//
// Each parser yields a list of raw-record field maps; the adapter then
// homogenizes entry types, field names, author formatting and identifiers
// into the canonical schema.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SourcePathKey annotates each raw record with the file it came from.
const SourcePathKey = "source_file_path"

// RawRecord is an unprocessed record as yielded by a format parser.
type RawRecord map[string]string

// Origin returns the <source_file>/<local_id> back-reference.
func (r RawRecord) Origin() string {
	return filepath.Base(r[SourcePathKey]) + "/" + r["ID"]
}

// Load parses a source file, dispatching on its extension, and applies the
// canonical field homogenization. Returns the records and the raw count.
func Load(path string) ([]RawRecord, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading source %s: %w", path, err)
	}

	var records []RawRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bib":
		records, err = parseBib(data)
	case ".ris":
		records, err = parseRIS(data)
	case ".enl":
		records, err = parseENL(data)
	case ".nbib":
		records, err = parseNBIB(data)
	case ".csv":
		records, err = parseCSV(data)
	default:
		return nil, 0, fmt.Errorf("unsupported source format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, 0, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	for i, raw := range records {
		raw[SourcePathKey] = path
		if raw["ID"] == "" {
			raw["ID"] = fmt.Sprintf("%06d", i+1)
		}
		homogenize(raw)
	}
	return records, len(records), nil
}
