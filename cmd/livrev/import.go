package main

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/dataset"
	"github.com/livrev/livrev/internal/state"
)

func init() {
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Import search results into the dataset",
	Long: `Import search results into the dataset.

Without arguments, every source file in the search directory is imported in
name order. Records whose fingerprint is already known are skipped, so
importing the same export twice is a no-op. Sources listed in
search_details.csv are validated against their descriptor first; a failing
source aborts the run without touching the dataset.`,
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	root := mustFindProject()
	settings := mustLoadSettings(root)
	runner := mustRunner(root, settings)

	sources := args
	if len(sources) == 0 {
		var err error
		sources, err = searchSources(root)
		if err != nil {
			exitWithError(ExitError, "listing search directory: %v", err)
		}
	}
	if len(sources) == 0 {
		exitWithError(ExitError, "no source files found in %s", config.SearchPath(root))
	}

	report, err := runner.Import(sources)
	if err != nil {
		var integrityErr *dataset.SourceIntegrityError
		if errors.As(err, &integrityErr) {
			exitWithError(ExitDataError, "%v", err)
		}
		exitWithError(ExitError, "importing: %v", err)
	}
	if err := runner.Checkpoint(state.OpLoad); err != nil {
		exitWithError(ExitError, "committing: %v", err)
	}

	if humanOutput {
		for _, src := range report.Sources {
			outputHuman("%s: %d seen, %d added\n", src.Filename, src.Seen, src.Added)
		}
		for _, w := range report.Warnings {
			outputHuman("warning: %s\n", w)
		}
		outputHuman("imported %d records\n", report.Added())
	} else {
		outputJSON(report)
	}
	return nil
}

// searchSources lists the importable files of the search directory in name
// order, skipping the descriptor itself.
func searchSources(root string) ([]string, error) {
	entries, err := os.ReadDir(config.SearchPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var sources []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == config.SearchDetailsFile {
			continue
		}
		sources = append(sources, filepath.Join(config.SearchPath(root), e.Name()))
	}
	sort.Strings(sources)
	return sources, nil
}
