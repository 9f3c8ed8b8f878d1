package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/screen"
	"github.com/livrev/livrev/internal/state"
)

func init() {
	rootCmd.AddCommand(dataCmd)
}

var dataCmd = &cobra.Command{
	Use:   "data [ID...]",
	Short: "Mark included records as synthesized",
	Long: `Mark included records as synthesized.

Without arguments, lists the included records not yet incorporated into
the synthesis. With record IDs, marks those records as synthesized:

  livrev data
  livrev data Smith2020 Jones2019`,
	RunE: runData,
}

func runData(cmd *cobra.Command, args []string) error {
	root := mustFindProject()
	store := mustOpenStore(root)

	if len(args) == 0 {
		records, err := store.LoadRecords(false)
		if err != nil {
			exitWithError(ExitError, "loading records: %v", err)
		}
		var pending []string
		for id, rec := range records {
			if rec.Status() == state.RevIncluded {
				pending = append(pending, id)
			}
		}
		sort.Strings(pending)
		outputPending(records, pending, "synthesis")
		return nil
	}

	records, err := store.LoadRecords(false)
	if err != nil {
		exitWithError(ExitError, "loading records: %v", err)
	}
	for _, id := range args {
		rec, ok := records[id]
		if !ok {
			exitWithError(ExitError, "record %s not found", id)
		}
		if err := screen.Synthesize(rec); err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
	}
	if err := store.SaveRecords(records); err != nil {
		exitWithError(ExitError, "saving records: %v", err)
	}

	settings := mustLoadSettings(root)
	if err := mustRunner(root, settings).Checkpoint(state.OpData); err != nil {
		exitWithError(ExitError, "committing: %v", err)
	}
	if humanOutput {
		outputHuman("synthesized %d records\n", len(args))
	} else {
		outputJSON(StatusResponse{Status: "synthesized"})
	}
	return nil
}
