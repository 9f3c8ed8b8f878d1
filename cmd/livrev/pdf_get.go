package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/pdfget"
	"github.com/livrev/livrev/internal/state"
	"github.com/livrev/livrev/internal/unpaywall"
)

var (
	pdfGetManFile    string
	pdfGetManMissing bool
)

func init() {
	pdfGetCmd.Flags().StringVar(&pdfGetManFile, "file", "", "Manually retrieved PDF for the given record")
	pdfGetCmd.Flags().BoolVar(&pdfGetManMissing, "not-available", false, "Mark the given record's PDF as not retrievable")
	rootCmd.AddCommand(pdfGetCmd)
}

var pdfGetCmd = &cobra.Command{
	Use:   "pdf-get [ID]",
	Short: "Retrieve PDFs for prescreen-included records",
	Long: `Retrieve PDFs for prescreen-included records.

Looks each record's DOI up on Unpaywall and downloads the open-access PDF
into the pdfs directory. Records without a resolvable PDF are parked in
pdf_needs_manual_retrieval.

The Unpaywall contact email is read from the environment registry
(package_settings.unpaywall.email) or the UNPAYWALL_EMAIL variable.

To finish a manual retrieval:

  livrev pdf-get Smith2020 --file ~/downloads/smith2020.pdf
  livrev pdf-get Smith2020 --not-available`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPdfGet,
}

func runPdfGet(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	root := mustFindProject()
	store := mustOpenStore(root)

	if len(args) == 1 {
		return runPdfGetMan(root, args[0])
	}
	if pdfGetManFile != "" || pdfGetManMissing {
		exitWithError(ExitError, "--file and --not-available require a record ID")
	}

	fetcher := &pdfget.Fetcher{Root: root}
	if email := unpaywallEmail(); email != "" {
		fetcher.Locator = unpaywall.NewClient(email)
	}

	records, err := store.LoadRecords(false)
	if err != nil {
		exitWithError(ExitError, "loading records: %v", err)
	}
	report := &pdfget.Report{}
	for _, id := range sortedIDs(records) {
		rec := records[id]
		if rec.Status() != state.RevPrescreenIncluded {
			continue
		}
		if err := fetcher.Fetch(context.Background(), rec, report); err != nil {
			exitWithError(ExitError, "fetching PDF for %s: %v", id, err)
		}
	}
	if err := store.SaveRecords(records); err != nil {
		exitWithError(ExitError, "saving records: %v", err)
	}

	settings := mustLoadSettings(root)
	if err := mustRunner(root, settings).Checkpoint(state.OpPdfGet); err != nil {
		exitWithError(ExitError, "committing: %v", err)
	}
	if humanOutput {
		outputHuman("imported %d PDFs, %d need manual retrieval\n",
			report.Imported, report.NeedsManual)
	} else {
		outputJSON(report)
	}
	return nil
}

func runPdfGetMan(root, id string) error {
	if pdfGetManFile == "" && !pdfGetManMissing {
		exitWithError(ExitError, "pass --file or --not-available with a record ID")
	}
	if pdfGetManFile != "" && pdfGetManMissing {
		exitWithError(ExitError, "pass exactly one of --file and --not-available")
	}

	store := mustOpenStore(root)
	records, err := store.LoadRecords(false)
	if err != nil {
		exitWithError(ExitError, "loading records: %v", err)
	}
	rec, ok := records[id]
	if !ok {
		exitWithError(ExitError, "record %s not found", id)
	}

	fetcher := &pdfget.Fetcher{Root: root}
	if err := fetcher.ImportManual(rec, pdfGetManFile, !pdfGetManMissing); err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	if err := store.SaveRecords(records); err != nil {
		exitWithError(ExitError, "saving records: %v", err)
	}

	settings := mustLoadSettings(root)
	if err := mustRunner(root, settings).Checkpoint(state.OpPdfGetMan); err != nil {
		exitWithError(ExitError, "committing: %v", err)
	}
	if humanOutput {
		outputHuman("updated %s\n", id)
	} else {
		outputJSON(StatusResponse{Status: "updated"})
	}
	return nil
}

// unpaywallEmail resolves the contact email for Unpaywall requests.
func unpaywallEmail() string {
	if reg, err := config.LoadRegistry(); err == nil {
		if email := reg.PackageSetting("unpaywall", "email"); email != "" {
			return email
		}
	}
	return os.Getenv("UNPAYWALL_EMAIL")
}
