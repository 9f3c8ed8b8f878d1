package main

import (
	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/state"
	"github.com/livrev/livrev/internal/status"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show review progress and the next applicable operations",
	Long: `Show review progress and the next applicable operations.

Counts records per state, reports completed versus total atomic steps, and
names the operations that would advance the earliest populated state. The
computed figures are also written to .livrev/status.yml.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// statusView is the JSON shape of the status command.
type statusView struct {
	AtomicSteps          int            `json:"atomic_steps"`
	CompletedAtomicSteps int            `json:"completed_atomic_steps"`
	DuplicatesRemoved    int            `json:"duplicates_removed"`
	Completed            bool           `json:"completed"`
	Currently            map[string]int `json:"currently"`
	NextOperations       []string       `json:"next_operations"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	root := mustFindProject()
	store := mustOpenStore(root)

	records, err := store.LoadRecords(true)
	if err != nil {
		exitWithError(ExitError, "loading records: %v", err)
	}
	stats := status.Compute(records)
	if err := status.Write(root, stats); err != nil {
		exitWithError(ExitError, "writing status: %v", err)
	}

	next := stats.PriorityOperations()
	names := make([]string, 0, len(next))
	for _, op := range next {
		names = append(names, string(op))
	}

	if humanOutput {
		for _, s := range state.All {
			if stats.Currently[s] == 0 {
				continue
			}
			outputHuman("%-30s %d\n", s, stats.Currently[s])
		}
		if stats.DuplicatesRemoved > 0 {
			outputHuman("%-30s %d\n", "duplicates removed", stats.DuplicatesRemoved)
		}
		outputHuman("atomic steps: %d/%d completed\n",
			stats.CompletedAtomicSteps, stats.AtomicSteps)
		if stats.Completed() {
			outputHuman("review complete\n")
		} else {
			for _, name := range names {
				outputHuman("next: livrev %s\n", name)
			}
		}
		return nil
	}

	currently := make(map[string]int, len(stats.Currently))
	for s, n := range stats.Currently {
		if n > 0 {
			currently[string(s)] = n
		}
	}
	outputJSON(statusView{
		AtomicSteps:          stats.AtomicSteps,
		CompletedAtomicSteps: stats.CompletedAtomicSteps,
		DuplicatesRemoved:    stats.DuplicatesRemoved,
		Completed:            stats.Completed(),
		Currently:            currently,
		NextOperations:       names,
	})
	return nil
}
