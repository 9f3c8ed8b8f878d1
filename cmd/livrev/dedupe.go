package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/dedupe"
	"github.com/livrev/livrev/internal/state"
)

var (
	dedupeMerge    bool
	dedupeKeepBoth bool
)

func init() {
	dedupeCmd.Flags().BoolVar(&dedupeMerge, "merge", false, "Resolve a potential duplicate pair by merging")
	dedupeCmd.Flags().BoolVar(&dedupeKeepBoth, "keep-both", false, "Resolve a potential duplicate pair by keeping both records")
	rootCmd.AddCommand(dedupeCmd)
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe [ID1 ID2]",
	Short: "Deduplicate prepared records",
	Long: `Deduplicate prepared records.

Scores every prepared record against its predecessors and applies the
resulting merge ledgers. Pairs in the ambiguous similarity band are written
to potential_duplicate_tuples.csv for manual review.

To adjudicate a reviewed pair, name both IDs with --merge or --keep-both:

  livrev dedupe Smith2020 Smith2020a --merge
  livrev dedupe Smith2020 Jones2019 --keep-both`,
	Args: cobra.MaximumNArgs(2),
	RunE: runDedupe,
}

func runDedupe(cmd *cobra.Command, args []string) error {
	root := mustFindProject()
	settings := mustLoadSettings(root)

	if dedupeMerge || dedupeKeepBoth {
		if len(args) != 2 {
			exitWithError(ExitError, "resolving a pair requires exactly two record IDs")
		}
		if dedupeMerge == dedupeKeepBoth {
			exitWithError(ExitError, "pass exactly one of --merge and --keep-both")
		}
		store := mustOpenStore(root)
		if err := dedupe.ResolvePotential(store, root, args[0], args[1], dedupeMerge); err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
		if err := mustRunner(root, settings).Checkpoint(state.OpDedupe); err != nil {
			exitWithError(ExitError, "committing: %v", err)
		}
		if humanOutput {
			outputHuman("resolved %s / %s\n", args[0], args[1])
		} else {
			outputJSON(StatusResponse{Status: "resolved"})
		}
		return nil
	}
	if len(args) != 0 {
		exitWithError(ExitError, "record IDs are only valid with --merge or --keep-both")
	}

	runner := mustRunner(root, settings)
	report, err := runner.Dedupe(context.Background())
	if err != nil {
		var precondErr *state.PreconditionError
		if errors.As(err, &precondErr) {
			exitWithError(ExitBlocked, "%v", err)
		}
		exitWithError(ExitError, "deduplicating: %v", err)
	}
	if err := runner.Checkpoint(state.OpDedupe); err != nil {
		exitWithError(ExitError, "committing: %v", err)
	}

	if humanOutput {
		outputHuman("merged %d, advanced %d, %d pairs await review\n",
			report.Merged, report.NonDuplicates, report.Potential)
	} else {
		outputJSON(report)
	}
	return nil
}
