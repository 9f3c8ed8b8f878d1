package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/screen"
	"github.com/livrev/livrev/internal/state"
)

var (
	screenCriteriaIn  []string
	screenCriteriaOut []string
)

func init() {
	screenCmd.Flags().StringSliceVar(&screenCriteriaIn, "in", nil, "Criteria the record meets")
	screenCmd.Flags().StringSliceVar(&screenCriteriaOut, "out", nil, "Criteria the record fails")
	rootCmd.AddCommand(screenCmd)
}

var screenCmd = &cobra.Command{
	Use:   "screen [ID]",
	Short: "Record full-text screening decisions",
	Long: `Record full-text screening decisions.

Without arguments, lists the records with a prepared PDF that await a
screening decision. With a record ID, records a verdict for each named
criterion; the record is included only when every criterion is met:

  livrev screen
  livrev screen Smith2020 --in behavioral,empirical
  livrev screen Jones2019 --in behavioral --out empirical`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScreen,
}

func runScreen(cmd *cobra.Command, args []string) error {
	root := mustFindProject()
	store := mustOpenStore(root)

	if len(args) == 0 {
		if len(screenCriteriaIn) != 0 || len(screenCriteriaOut) != 0 {
			exitWithError(ExitError, "criteria require a record ID")
		}
		records, err := store.LoadRecords(false)
		if err != nil {
			exitWithError(ExitError, "loading records: %v", err)
		}
		var pending []string
		for id, rec := range records {
			if rec.Status() == state.PdfPrepared {
				pending = append(pending, id)
			}
		}
		sort.Strings(pending)
		outputPending(records, pending, "screening")
		return nil
	}

	id := args[0]
	decisions := make(map[string]bool, len(screenCriteriaIn)+len(screenCriteriaOut))
	for _, name := range screenCriteriaIn {
		decisions[name] = true
	}
	for _, name := range screenCriteriaOut {
		if decisions[name] {
			exitWithError(ExitError, "criterion %s passed as both --in and --out", name)
		}
		decisions[name] = false
	}
	if len(decisions) == 0 {
		exitWithError(ExitError, "pass at least one criterion via --in or --out")
	}

	records, err := store.LoadRecords(false)
	if err != nil {
		exitWithError(ExitError, "loading records: %v", err)
	}
	rec, ok := records[id]
	if !ok {
		exitWithError(ExitError, "record %s not found", id)
	}
	if err := screen.Screen(rec, decisions); err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	if err := store.SaveRecords(records); err != nil {
		exitWithError(ExitError, "saving records: %v", err)
	}

	settings := mustLoadSettings(root)
	if err := mustRunner(root, settings).Checkpoint(state.OpScreen); err != nil {
		exitWithError(ExitError, "committing: %v", err)
	}
	if humanOutput {
		outputHuman("%s is now %s\n", id, rec.Status())
	} else {
		outputJSON(StatusResponse{Status: string(rec.Status())})
	}
	return nil
}
