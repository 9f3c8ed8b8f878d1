package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// SourceIntegrityError indicates a search source fails its descriptor checks.
// The importer refuses to touch the dataset when any source is invalid.
type SourceIntegrityError struct {
	Filename string
	Reason   string
}

func (e *SourceIntegrityError) Error() string {
	return fmt.Sprintf("source %s: %s", e.Filename, e.Reason)
}

// Search types.
const (
	SearchTypeDB             = "DB"
	SearchTypeAPI            = "API"
	SearchTypeTOC            = "TOC"
	SearchTypeBackwardSearch = "BACKWARD_SEARCH"
	SearchTypeForwardSearch  = "FORWARD_SEARCH"
	SearchTypePDFs           = "PDFS"
	SearchTypeOther          = "OTHER"
)

// SourceDescriptor is one row of search_details.csv.
type SourceDescriptor struct {
	Filename         string
	NumberRecords    int
	Iteration        int
	DateStart        string
	DateCompletion   string
	SourceURL        string
	SearchParameters string
	SearchType       string
	Responsible      string
	Comment          string
}

var searchDetailsHeader = []string{
	"filename", "number_records", "iteration", "date_start",
	"date_completion", "source_url", "search_parameters",
	"search_type", "responsible", "comment",
}

// LoadSearchDetails reads the search descriptor CSV. A missing file yields an
// empty list.
func LoadSearchDetails(path string) ([]SourceDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening search details: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing search details: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := make(map[string]int)
	for i, name := range rows[0] {
		col[name] = i
	}
	get := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	var descriptors []SourceDescriptor
	for _, row := range rows[1:] {
		n, _ := strconv.Atoi(get(row, "number_records"))
		iter, _ := strconv.Atoi(get(row, "iteration"))
		descriptors = append(descriptors, SourceDescriptor{
			Filename:         get(row, "filename"),
			NumberRecords:    n,
			Iteration:        iter,
			DateStart:        get(row, "date_start"),
			DateCompletion:   get(row, "date_completion"),
			SourceURL:        get(row, "source_url"),
			SearchParameters: get(row, "search_parameters"),
			SearchType:       get(row, "search_type"),
			Responsible:      get(row, "responsible"),
			Comment:          get(row, "comment"),
		})
	}
	return descriptors, nil
}

// SaveSearchDetails writes the search descriptor CSV.
func SaveSearchDetails(path string, descriptors []SourceDescriptor) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating search details: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(searchDetailsHeader); err != nil {
		return err
	}
	for _, d := range descriptors {
		row := []string{
			d.Filename, strconv.Itoa(d.NumberRecords), strconv.Itoa(d.Iteration),
			d.DateStart, d.DateCompletion, d.SourceURL, d.SearchParameters,
			d.SearchType, d.Responsible, d.Comment,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ValidateSource checks a descriptor against the file on disk: the file must
// exist and, when loadedCount >= 0, match the declared record count.
func ValidateSource(searchDir string, d SourceDescriptor, loadedCount int) error {
	path := filepath.Join(searchDir, d.Filename)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &SourceIntegrityError{Filename: d.Filename, Reason: "file missing from search directory"}
		}
		return fmt.Errorf("checking source %s: %w", d.Filename, err)
	}
	if loadedCount >= 0 && loadedCount != d.NumberRecords {
		return &SourceIntegrityError{
			Filename: d.Filename,
			Reason: fmt.Sprintf("descriptor declares %d records but %d were loaded",
				d.NumberRecords, loadedCount),
		}
	}
	return nil
}
