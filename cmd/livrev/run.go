package main

import (
	"bufio"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/dataset"
	"github.com/livrev/livrev/internal/pipeline"
	"github.com/livrev/livrev/internal/state"
)

var runWorkers int

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Number of cleansing workers (0 uses the project default)")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the automated pipeline over all search sources",
	Long: `Run the automated pipeline over all search sources.

Imports every file under search/, then drives records through cleansing
and deduplication according to the project strategy. Under the living
strategy, records are processed in parallel and newly processed IDs are
appended to the screen worklist; the traditional strategies run the
operations as sequential batches.

Interrupting a run is safe: imported records persist under their
fingerprints, so a re-run skips completed work.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	root := mustFindProject()
	settings := mustLoadSettings(root)
	runner := mustRunner(root, settings)
	runner.Workers = runWorkers

	sources, err := searchSources(root)
	if err != nil {
		exitWithError(ExitError, "listing search directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report *pipeline.RunReport
	if settings.Project.Strategy == config.StrategyLiving {
		report, err = runner.Run(ctx, sources)
	} else {
		report, err = runner.RunTraditional(ctx, sources)
	}
	if err != nil {
		var integrityErr *dataset.SourceIntegrityError
		if errors.As(err, &integrityErr) {
			exitWithError(ExitDataError, "%v", err)
		}
		var precondErr *state.PreconditionError
		if errors.As(err, &precondErr) {
			exitWithError(ExitBlocked, "%v", err)
		}
		exitWithError(ExitError, "%v", err)
	}

	if report.Interrupted {
		stop()
		if confirmCommit() {
			if err := runner.Checkpoint(state.OpDedupe); err != nil {
				exitWithError(ExitError, "committing: %v", err)
			}
		}
	} else if settings.Project.Strategy == config.StrategyLiving {
		if err := runner.Checkpoint(state.OpDedupe); err != nil {
			exitWithError(ExitError, "committing: %v", err)
		}
	}

	if humanOutput {
		outputHuman("imported %d, prepared %d, %d need manual preparation\n",
			report.Imported, report.Prepared, report.NeedsManual)
		if report.Merge != nil {
			outputHuman("merged %d duplicates, %d pairs await review\n",
				report.Merge.Merged, report.Merge.Potential)
		}
		for _, id := range report.NewlyProcessed {
			outputHuman("  processed %s\n", id)
		}
		for _, w := range report.Warnings {
			outputHuman("warning: %s\n", w)
		}
		if report.Interrupted {
			outputHuman("run interrupted, re-run to resume\n")
		}
	} else {
		outputJSON(report)
	}
	return nil
}

// confirmCommit asks on the terminal whether an interrupted run's partial
// progress should still be committed.
func confirmCommit() bool {
	reader := bufio.NewReader(os.Stdin)
	os.Stderr.WriteString("Run interrupted. Commit partial progress? [y/N] ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
