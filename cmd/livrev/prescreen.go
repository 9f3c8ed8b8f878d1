package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/screen"
	"github.com/livrev/livrev/internal/state"
)

var (
	prescreenInclude bool
	prescreenExclude bool
)

func init() {
	prescreenCmd.Flags().BoolVar(&prescreenInclude, "include", false, "Include the listed records")
	prescreenCmd.Flags().BoolVar(&prescreenExclude, "exclude", false, "Exclude the listed records")
	rootCmd.AddCommand(prescreenCmd)
}

var prescreenCmd = &cobra.Command{
	Use:   "prescreen [ID...]",
	Short: "Record prescreen decisions on processed records",
	Long: `Record prescreen decisions on processed records.

Without arguments, lists the records awaiting a prescreen decision. With
--include or --exclude, applies that decision to the listed records:

  livrev prescreen
  livrev prescreen --include Smith2020 Jones2019
  livrev prescreen --exclude Brown2021`,
	RunE: runPrescreen,
}

func runPrescreen(cmd *cobra.Command, args []string) error {
	root := mustFindProject()
	store := mustOpenStore(root)

	if !prescreenInclude && !prescreenExclude {
		if len(args) != 0 {
			exitWithError(ExitError, "pass --include or --exclude with record IDs")
		}
		records, err := store.LoadRecords(false)
		if err != nil {
			exitWithError(ExitError, "loading records: %v", err)
		}
		var pending []string
		for id, rec := range records {
			if rec.Status() == state.MdProcessed {
				pending = append(pending, id)
			}
		}
		sort.Strings(pending)
		outputPending(records, pending, "prescreening")
		return nil
	}

	if prescreenInclude == prescreenExclude {
		exitWithError(ExitError, "pass exactly one of --include and --exclude")
	}
	if len(args) == 0 {
		exitWithError(ExitError, "prescreen decisions require record IDs")
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
		if err := screen.Prescreen(rec, prescreenInclude); err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
	}
	if err := store.SaveRecords(records); err != nil {
		exitWithError(ExitError, "saving records: %v", err)
	}

	// Decided records leave the living worklist.
	worklist, err := screen.ReadWorklist(root)
	if err == nil && len(worklist) > 0 {
		decided := make(map[string]bool, len(args))
		for _, id := range args {
			decided[id] = true
		}
		remaining := worklist[:0]
		for _, id := range worklist {
			if !decided[id] {
				remaining = append(remaining, id)
			}
		}
		if err := screen.ClearWorklist(root); err == nil {
			for _, id := range remaining {
				if err := screen.AppendWorklist(root, id); err != nil {
					break
				}
			}
		}
	}

	settings := mustLoadSettings(root)
	if err := mustRunner(root, settings).Checkpoint(state.OpPrescreen); err != nil {
		exitWithError(ExitError, "committing: %v", err)
	}
	if humanOutput {
		outputHuman("recorded %d prescreen decisions\n", len(args))
	} else {
		outputJSON(StatusResponse{Status: "prescreened"})
	}
	return nil
}
