package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitStatus reports how vault files relate to an enclosing git repository
type GitStatus struct {
	IsRepo   bool
	RepoRoot string
	Tracked  []string // vault files tracked by git (bad)
	Ignored  []string // vault files in .gitignore (good)
	Exposed  []string // vault files neither tracked nor ignored (warning)
}

// IsGitRepo checks if dir is inside a git work tree
func IsGitRepo(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	err := cmd.Run()
	return err == nil
}

// RepoRoot returns the top-level directory of the work tree containing dir
func RepoRoot(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to find repository root: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(workDir, path string) bool {
	cmd := exec.Command("git", "ls-files", "--", path)
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(workDir, path string) bool {
	cmd := exec.Command("git", "check-ignore", "-q", "--", path)
	cmd.Dir = workDir
	// git check-ignore returns exit code 0 if file is ignored
	return cmd.Run() == nil
}

// CheckVaultFiles checks whether the given vault files (absolute paths)
// live inside a git work tree and, if so, whether they are protected from
// being committed. Wrapped keys are safe at rest, but the local database
// also records the device id and persistence mode.
func CheckVaultFiles(paths []string) (*GitStatus, error) {
	status := &GitStatus{}
	if len(paths) == 0 {
		return status, nil
	}

	dir := filepath.Dir(paths[0])
	if !IsGitRepo(dir) {
		return status, nil
	}
	root, err := RepoRoot(dir)
	if err != nil {
		return nil, err
	}
	status.IsRepo = true
	status.RepoRoot = root

	for _, path := range paths {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		switch {
		case IsTracked(root, rel):
			status.Tracked = append(status.Tracked, rel)
		case IsIgnored(root, rel):
			status.Ignored = append(status.Ignored, rel)
		default:
			status.Exposed = append(status.Exposed, rel)
		}
	}

	return status, nil
}

// FormatGitStatus formats git status for display
func FormatGitStatus(status *GitStatus) string {
	if !status.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit Integration:\n")

	for _, file := range status.Tracked {
		result.WriteString(fmt.Sprintf("   error: %s is tracked by git (run: git rm --cached %s)\n", file, file))
	}
	for _, file := range status.Exposed {
		result.WriteString(fmt.Sprintf("   warning: %s not in .gitignore (add to .gitignore)\n", file))
	}
	if len(status.Tracked) == 0 && len(status.Exposed) == 0 {
		result.WriteString(fmt.Sprintf("   ok: %d vault file(s) in .gitignore\n", len(status.Ignored)))
	}

	return result.String()
}
