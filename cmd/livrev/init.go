package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/gitrepo"
	"github.com/livrev/livrev/internal/prep"
)

var initName string

func init() {
	initCmd.Flags().StringVar(&initName, "name", "", "Project name (defaults to the directory name)")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a review project in the current directory",
	Long: `Initialize a review project in the current directory.

Creates:
  .livrev/
  ├── settings.yml    # Project settings
  └── lexicon/        # Journal/conference rule tables (optional CSVs)
  search/
  └── search_details.csv
  pdfs/

The directory becomes a git repository if it is not inside one already, and
the scaffold is committed.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}
	if config.IsProject(cwd) {
		exitWithError(ExitError, "directory already contains a livrev project")
	}

	name := initName
	if name == "" {
		name = filepath.Base(cwd)
	}

	dirs := []string{
		filepath.Join(config.LivrevPath(cwd), prep.LexiconDir),
		config.SearchPath(cwd),
		config.PDFPath(cwd),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			exitWithError(ExitError, "creating %s: %v", dir, err)
		}
	}

	settings := config.DefaultSettings(name)
	if err := settings.Save(cwd); err != nil {
		exitWithError(ExitError, "writing settings: %v", err)
	}
	if err := os.WriteFile(config.SearchDetailsPath(cwd), []byte(""), 0644); err != nil {
		exitWithError(ExitError, "creating search details: %v", err)
	}

	if !gitrepo.IsGitRepo(cwd) {
		if err := gitrepo.Init(cwd); err != nil {
			exitWithError(ExitError, "initializing git repository: %v", err)
		}
	}
	repoRoot, err := gitrepo.FindRepoRoot(cwd)
	if err != nil {
		exitWithError(ExitError, "locating git repository: %v", err)
	}
	if err := gitrepo.Commit(repoRoot, "init: create review project "+name, cwd); err != nil {
		exitWithError(ExitError, "committing scaffold: %v", err)
	}

	if humanOutput {
		outputHuman("Initialized review project %s\n", name)
	} else {
		outputJSON(StatusResponse{Status: "initialized", Path: cwd})
	}
	return nil
}
