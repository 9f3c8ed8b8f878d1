// Package main provides the livrev CLI entry point.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/dataset"
	"github.com/livrev/livrev/internal/pipeline"
	"github.com/livrev/livrev/internal/record"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "livrev",
	Short: "Living literature review pipeline",
	Long: `livrev manages a git-versioned living literature review.

Records flow through a fixed state machine: import, preparation,
deduplication, prescreen, PDF retrieval and preparation, screen, and data
extraction. Every record carries a content-addressed fingerprint that makes
runs resumable and auditable across workers and git history.

All commands output JSON by default; pass --human for readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}

// mustFindProject locates the enclosing project root, exits on error.
func mustFindProject() string {
	cwd, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}
	root, err := config.FindProject(cwd)
	if err != nil {
		exitWithError(ExitConfigError, "%v\n\nRun 'livrev init' to create a project.", err)
	}
	return root
}

// mustLoadSettings loads the project settings, exits on error.
func mustLoadSettings(root string) *config.Settings {
	settings, err := config.Load(root)
	if err != nil {
		exitWithError(ExitConfigError, "loading settings: %v", err)
	}
	return settings
}

// mustOpenStore returns the canonical record store of the project.
func mustOpenStore(root string) *dataset.Store {
	return dataset.Open(root)
}

// mustRunner builds the pipeline runner, exits on error.
func mustRunner(root string, settings *config.Settings) *pipeline.Runner {
	runner, err := pipeline.New(root, settings)
	if err != nil {
		exitWithError(ExitError, "building pipeline: %v", err)
	}
	return runner
}

// sortedIDs returns the record IDs in lexical order.
func sortedIDs(records map[string]*record.Record) []string {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
