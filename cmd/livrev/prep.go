package main

import (
	"context"
	"errors"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/state"
)

var prepMan bool

func init() {
	prepCmd.Flags().BoolVar(&prepMan, "man", false, "Mark records as manually prepared instead of running the cleanser")
	rootCmd.AddCommand(prepCmd)
}

var prepCmd = &cobra.Command{
	Use:   "prep [ID...]",
	Short: "Prepare imported record metadata",
	Long: `Prepare imported record metadata.

Cleanses every imported record: field homogenization, rule tables, entry-type
correction and Crossref enrichment. Records missing core metadata afterwards
are parked in md_needs_manual_preparation.

With --man, the listed records are marked manually prepared: edit their
fields in the record file first, then run 'livrev prep --man <ID...>'.`,
	RunE: runPrep,
}

func runPrep(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	root := mustFindProject()
	settings := mustLoadSettings(root)

	if prepMan {
		if len(args) == 0 {
			exitWithError(ExitError, "prep --man requires record IDs")
		}
		return runPrepMan(root, args)
	}

	runner := mustRunner(root, settings)
	report, err := runner.Prep(context.Background())
	if err != nil {
		var precondErr *state.PreconditionError
		if errors.As(err, &precondErr) {
			exitWithError(ExitBlocked, "%v", err)
		}
		exitWithError(ExitError, "preparing: %v", err)
	}
	if err := runner.Checkpoint(state.OpPrep); err != nil {
		exitWithError(ExitError, "committing: %v", err)
	}

	if humanOutput {
		outputHuman("prepared %d records, %d need manual preparation\n",
			report.Prepared, report.NeedsManual)
		for _, w := range report.Warnings {
			outputHuman("warning: %s\n", w)
		}
	} else {
		outputJSON(report)
	}
	return nil
}

func runPrepMan(root string, ids []string) error {
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
		if err := rec.SetStatus(state.MdPrepared); err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
	}
	if err := store.SaveRecords(records); err != nil {
		exitWithError(ExitError, "saving records: %v", err)
	}

	settings := mustLoadSettings(root)
	if err := mustRunner(root, settings).Checkpoint(state.OpPrepMan); err != nil {
		exitWithError(ExitError, "committing: %v", err)
	}
	if humanOutput {
		outputHuman("marked %d records prepared\n", len(ids))
	} else {
		outputJSON(StatusResponse{Status: "prepared"})
	}
	return nil
}
