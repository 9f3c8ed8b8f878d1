package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/gitrepo"
	"github.com/livrev/livrev/internal/rehash"
)

var rehashVersion string

func init() {
	rehashCmd.Flags().StringVar(&rehashVersion, "version", "", "Fingerprint version to upgrade to")
	_ = rehashCmd.MarkFlagRequired("version")
	rootCmd.AddCommand(rehashCmd)
}

var rehashCmd = &cobra.Command{
	Use:   "rehash",
	Short: "Upgrade every record fingerprint to a new version",
	Long: `Upgrade every record fingerprint to a new version.

Recomputes the fingerprint of every record from its stored metadata and
replaces the project's hash version in the settings. The rewrite is atomic
over the dataset: a digest collision between two records aborts without
changing anything.

The target version must be registered, either built in or declared in
settings.yml as an ordered field list:

  fingerprints:
    v0.2: [author, title, journal, booktitle, year, volume, number, pages]

  livrev rehash --version v0.2`,
	Args: cobra.NoArgs,
	RunE: runRehash,
}

func runRehash(cmd *cobra.Command, args []string) error {
	root := mustFindProject()
	settings := mustLoadSettings(root)

	report, err := rehash.Run(root, settings, rehashVersion)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	if repoRoot, err := gitrepo.FindRepoRoot(root); err == nil {
		message := fmt.Sprintf("rehash: upgrade fingerprints to %s", report.NewVersion)
		if err := gitrepo.Commit(repoRoot, message, root); err != nil {
			exitWithError(ExitError, "committing: %v", err)
		}
	} else if !errors.Is(err, gitrepo.ErrNotGitRepo) {
		exitWithError(ExitError, "locating repository: %v", err)
	}

	if humanOutput {
		outputHuman("rehashed %d records from %s to %s\n",
			report.Records, report.OldVersion, report.NewVersion)
	} else {
		outputJSON(report)
	}
	return nil
}
