// Package gitrepo wraps the git commands used to checkpoint the pipeline.
package gitrepo

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotGitRepo indicates the directory is not a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

// ErrNoCommits indicates the repository has no commits yet.
var ErrNoCommits = errors.New("repository has no commits")

// FindRepoRoot finds the root of the git repository containing path.
func FindRepoRoot(path string) (string, error) {
	cmd := exec.Command("git", "-C", path, "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", ErrNotGitRepo
	}
	return strings.TrimSpace(string(output)), nil
}

// IsGitRepo checks whether path is inside a git repository.
func IsGitRepo(path string) bool {
	_, err := FindRepoRoot(path)
	return err == nil
}

// Init creates a git repository at path.
func Init(path string) error {
	cmd := exec.Command("git", "-C", path, "init")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git init: %s: %w", strings.TrimSpace(string(output)), err)
	}
	return nil
}

// ShowFileAtHead returns the contents of relPath at HEAD. A file absent from
// HEAD yields empty content without error; a repository without commits
// returns ErrNoCommits.
func ShowFileAtHead(repoRoot, relPath string) ([]byte, error) {
	check := exec.Command("git", "-C", repoRoot, "rev-parse", "--verify", "HEAD")
	if err := check.Run(); err != nil {
		return nil, ErrNoCommits
	}

	cmd := exec.Command("git", "-C", repoRoot, "show", "HEAD:"+relPath)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, nil // file did not exist at HEAD
		}
		return nil, fmt.Errorf("git show HEAD:%s: %w", relPath, err)
	}
	return output, nil
}

// Add stages the given paths.
func Add(repoRoot string, paths ...string) error {
	args := append([]string{"-C", repoRoot, "add", "--"}, paths...)
	cmd := exec.Command("git", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git add: %s: %w", strings.TrimSpace(string(output)), err)
	}
	return nil
}

// HasStagedChanges reports whether anything is staged for commit.
func HasStagedChanges(repoRoot string) bool {
	cmd := exec.Command("git", "-C", repoRoot, "diff", "--cached", "--quiet")
	return cmd.Run() != nil
}

// Commit creates a commit with the given message over the given paths.
// Pre-commit hooks may reformat the staged files and fail the first attempt;
// in that case the (possibly modified) paths are re-staged and the commit is
// retried once.
func Commit(repoRoot, message string, paths ...string) error {
	if len(paths) > 0 {
		if err := Add(repoRoot, paths...); err != nil {
			return err
		}
	}
	if !HasStagedChanges(repoRoot) {
		return nil
	}

	if err := runCommit(repoRoot, message); err == nil {
		return nil
	}

	// Hook may have rewritten staged files. Re-stage and retry once.
	if len(paths) > 0 {
		if err := Add(repoRoot, paths...); err != nil {
			return err
		}
	}
	if err := runCommit(repoRoot, message); err != nil {
		return fmt.Errorf("committing after hook retry: %w", err)
	}
	return nil
}

func runCommit(repoRoot, message string) error {
	cmd := exec.Command("git", "-C", repoRoot, "commit", "-m", message)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git commit: %s: %w", strings.TrimSpace(string(output)), err)
	}
	return nil
}

// HeadSHA returns the current HEAD commit SHA.
func HeadSHA(repoRoot string) (string, error) {
	cmd := exec.Command("git", "-C", repoRoot, "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", ErrNoCommits
	}
	return strings.TrimSpace(string(output)), nil
}
