package main

import (
	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/pdfprep"
	"github.com/livrev/livrev/internal/state"
)

var pdfPrepMan bool

func init() {
	pdfPrepCmd.Flags().BoolVar(&pdfPrepMan, "man", false, "Mark the listed records as manually prepared")
	rootCmd.AddCommand(pdfPrepCmd)
}

var pdfPrepCmd = &cobra.Command{
	Use:   "pdf-prep [ID...]",
	Short: "Validate imported PDFs against record metadata",
	Long: `Validate imported PDFs against record metadata.

Each imported PDF is checked for a matching DOI and title, a plausible page
count, and purchase notices that indicate an incomplete download. Valid PDFs
advance to pdf_prepared; defective ones are parked for manual preparation.

After fixing a defective PDF by hand, finish it with:

  livrev pdf-prep --man Smith2020`,
	RunE: runPdfPrep,
}

func runPdfPrep(cmd *cobra.Command, args []string) error {
	root := mustFindProject()
	store := mustOpenStore(root)

	if pdfPrepMan {
		if len(args) == 0 {
			exitWithError(ExitError, "--man requires record IDs")
		}
		return runPdfPrepMan(root, args)
	}
	if len(args) != 0 {
		exitWithError(ExitError, "pass --man to finish records by ID")
	}

	records, err := store.LoadRecords(false)
	if err != nil {
		exitWithError(ExitError, "loading records: %v", err)
	}

	validator := pdfprep.New(root)
	report := &pdfprep.Report{}
	for _, id := range sortedIDs(records) {
		if err := validator.Prepare(records[id], report); err != nil {
			exitWithError(ExitError, "preparing PDF for %s: %v", id, err)
		}
	}
	if err := store.SaveRecords(records); err != nil {
		exitWithError(ExitError, "saving records: %v", err)
	}

	settings := mustLoadSettings(root)
	if err := mustRunner(root, settings).Checkpoint(state.OpPdfPrep); err != nil {
		exitWithError(ExitError, "committing: %v", err)
	}
	if humanOutput {
		outputHuman("prepared %d PDFs, %d need manual preparation\n",
			report.Prepared, report.NeedsManual)
		for _, d := range report.Defects {
			outputHuman("  %s\n", d)
		}
	} else {
		outputJSON(report)
	}
	return nil
}

func runPdfPrepMan(root string, ids []string) error {
	store := mustOpenStore(root)
	records, err := store.LoadRecords(false)
	if err != nil {
		exitWithError(ExitError, "loading records: %v", err)
	}
	for _, id := range ids {
		rec, ok := records[id]
		if !ok {
			exitWithError(ExitError, "record %s not found", id)
		}
		if err := rec.SetStatus(state.PdfPrepared); err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
	}
	if err := store.SaveRecords(records); err != nil {
		exitWithError(ExitError, "saving records: %v", err)
	}

	settings := mustLoadSettings(root)
	if err := mustRunner(root, settings).Checkpoint(state.OpPdfPrepMan); err != nil {
		exitWithError(ExitError, "committing: %v", err)
	}
	if humanOutput {
		outputHuman("marked %d PDFs prepared\n", len(ids))
	} else {
		outputJSON(StatusResponse{Status: "prepared"})
	}
	return nil
}
