// Package pdfget retrieves full-text PDFs for prescreen-included records
// via open-access lookup.
package pdfget

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/state"
	"github.com/livrev/livrev/internal/unpaywall"
)

// OALocator finds and downloads open-access full texts. *unpaywall.Client
// implements it.
type OALocator interface {
	Lookup(ctx context.Context, doi string) (*unpaywall.Location, error)
	Download(ctx context.Context, pdfURL, dest string) error
}

// Fetcher drives records from rev_prescreen_included to pdf_imported or
// pdf_needs_manual_retrieval.
type Fetcher struct {
	Root    string
	Locator OALocator
}

// Report summarizes one pdf-get pass.
type Report struct {
	Imported        int `json:"imported"`
	NeedsManual     int `json:"needs_manual"`
	AlreadyImported int `json:"already_imported"`
}

// Fetch retrieves the PDF for one record. A record whose file is already on
// disk imports immediately; otherwise the DOI is resolved through the
// open-access locator. Records without a DOI or without an open-access
// location go to manual retrieval.
func (f *Fetcher) Fetch(ctx context.Context, rec *record.Record, report *Report) error {
	if rec.Status() != state.RevPrescreenIncluded {
		return nil
	}

	if rec.File != "" {
		if _, err := os.Stat(f.resolve(rec.File)); err == nil {
			report.AlreadyImported++
			return rec.SetStatus(state.PdfImported)
		}
	}

	doi := rec.GetField("doi")
	if doi == "" || f.Locator == nil {
		report.NeedsManual++
		return rec.SetStatus(state.PdfNeedsManualRetrieval)
	}

	loc, err := f.Locator.Lookup(ctx, doi)
	if errors.Is(err, unpaywall.ErrNoOpenAccess) {
		report.NeedsManual++
		return rec.SetStatus(state.PdfNeedsManualRetrieval)
	}
	if err != nil {
		return fmt.Errorf("pdf-get %s: %w", rec.ID, err)
	}

	dest := filepath.Join(config.PDFPath(f.Root), rec.ID+".pdf")
	if err := f.Locator.Download(ctx, loc.PDFURL, dest); err != nil {
		report.NeedsManual++
		if serr := rec.SetStatus(state.PdfNeedsManualRetrieval); serr != nil {
			return serr
		}
		return nil
	}

	rec.File = filepath.Join(config.PDFDir, rec.ID+".pdf")
	report.Imported++
	return rec.SetStatus(state.PdfImported)
}

// ImportManual attaches a manually retrieved PDF to a record waiting in
// pdf_needs_manual_retrieval, or declares it unavailable.
func (f *Fetcher) ImportManual(rec *record.Record, path string, available bool) error {
	if rec.Status() != state.PdfNeedsManualRetrieval {
		return fmt.Errorf("pdf-get %s: record is %s, not awaiting manual retrieval", rec.ID, rec.Status())
	}
	if !available {
		return rec.SetStatus(state.PdfNotAvailable)
	}
	if _, err := os.Stat(f.resolve(path)); err != nil {
		return fmt.Errorf("pdf-get %s: %w", rec.ID, err)
	}
	rec.File = path
	return rec.SetStatus(state.PdfImported)
}

// resolve turns a project-relative file path into an absolute one.
func (f *Fetcher) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(f.Root, path)
}
