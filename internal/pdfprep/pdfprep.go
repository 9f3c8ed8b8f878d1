// Package pdfprep validates retrieved PDFs against record metadata before
// they enter the screening stage.
package pdfprep

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/state"
)

// maxScanPages bounds how much of a PDF is read for validation; identifying
// material sits on the first pages.
const maxScanPages = 3

// titleMatchThreshold is the share of title words that must appear in the
// scanned text.
const titleMatchThreshold = 0.9

var doiRe = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// purchaseMarker appears in sample PDFs that contain only the first pages.
const purchaseMarker = "morepagesareavailableinthefullversionofthisdocument"

// Validator checks that a PDF matches its record and is complete.
type Validator struct {
	Root string

	// extract is swapped in tests; the default reads through ledongthuc/pdf.
	extract func(path string, maxPages int) (pageCount int, text string, err error)
}

// New builds a Validator for the project at root.
func New(root string) *Validator {
	return &Validator{Root: root, extract: extractText}
}

// Report summarizes one pdf-prep pass.
type Report struct {
	Prepared    int      `json:"prepared"`
	NeedsManual int      `json:"needs_manual"`
	Defects     []string `json:"defects,omitempty"`
}

// Prepare validates one imported PDF and transitions the record to
// pdf_prepared or pdf_needs_manual_preparation. Validation defects are
// collected in the report rather than failing the run.
func (v *Validator) Prepare(rec *record.Record, report *Report) error {
	if rec.Status() != state.PdfImported {
		return nil
	}

	defects := v.validate(rec)
	if len(defects) > 0 {
		for _, d := range defects {
			report.Defects = append(report.Defects, fmt.Sprintf("%s: %s", rec.ID, d))
		}
		report.NeedsManual++
		return rec.SetStatus(state.PdfNeedsManualPrep)
	}
	report.Prepared++
	return rec.SetStatus(state.PdfPrepared)
}

// validate returns the list of defects found in the record's PDF.
func (v *Validator) validate(rec *record.Record) []string {
	path := rec.File
	if path == "" {
		return []string{"no PDF file attached"}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.Root, path)
	}

	pageCount, text, err := v.extract(path, maxScanPages)
	if err != nil {
		return []string{fmt.Sprintf("unreadable PDF: %v", err)}
	}

	var defects []string
	condensed := condense(text)

	if d := checkDOI(rec, text); d != "" {
		defects = append(defects, d)
	}
	if d := checkTitle(rec, condensed); d != "" {
		defects = append(defects, d)
	}
	if strings.Contains(condensed, purchaseMarker) {
		defects = append(defects, "PDF contains a purchase notice, likely incomplete")
	}
	if d := checkPageCount(rec, pageCount); d != "" {
		defects = append(defects, d)
	}
	return defects
}

// checkDOI cross-checks a DOI found in the text against the record's.
func checkDOI(rec *record.Record, text string) string {
	recorded := rec.GetField("doi")
	if recorded == "" {
		return ""
	}
	found := doiRe.FindString(text)
	if found == "" {
		return ""
	}
	if !strings.EqualFold(strings.TrimRight(found, ".,;"), recorded) {
		return fmt.Sprintf("DOI in PDF (%s) differs from metadata (%s)", found, recorded)
	}
	return ""
}

// checkTitle requires most title words to appear in the scanned pages.
func checkTitle(rec *record.Record, condensed string) string {
	title := rec.GetField("title")
	if title == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(nonLetterRe.ReplaceAllString(title, " ")))
	if len(words) == 0 {
		return ""
	}
	matched := 0
	for _, w := range words {
		if strings.Contains(condensed, w) {
			matched++
		}
	}
	if float64(matched)/float64(len(words)) < titleMatchThreshold {
		return "title not found in first pages"
	}
	return ""
}

// checkPageCount compares the page range in metadata with the file. One
// page less in metadata is tolerated as a cover page.
func checkPageCount(rec *record.Record, pagesInFile int) string {
	pages := rec.GetField("pages")
	m := pageRangeRe.FindStringSubmatch(pages)
	if m == nil {
		return ""
	}
	first, _ := strconv.Atoi(m[1])
	last, _ := strconv.Atoi(m[2])
	expected := last - first + 1
	if expected == pagesInFile || expected == pagesInFile-1 {
		return ""
	}
	return fmt.Sprintf("page count mismatch: file has %d, metadata says %d", pagesInFile, expected)
}

var (
	nonLetterRe = regexp.MustCompile(`[^a-zA-Z ]+`)
	pageRangeRe = regexp.MustCompile(`^(\d+)--(\d+)$`)
)

// condense lowercases and strips whitespace, making substring checks
// robust against PDF text-extraction artifacts.
func condense(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// extractText reads the page count and the text of the first maxPages pages.
func extractText(path string, maxPages int) (int, string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	total := r.NumPage()
	if maxPages > total {
		maxPages = total
	}

	var b strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return total, b.String(), nil
}
