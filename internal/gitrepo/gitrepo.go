// Package gitrepo commits exported plan pages when the export directory is a git
// checkout. It shells out to the git binary.
package gitrepo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrInProgress is returned when a merge, rebase, cherry-pick or revert is underway.
var ErrInProgress = errors.New("git repo has an operation in progress; resolve first")

// FindGitDir walks up from start and returns the git directory (/repo/.git, or the
// target of a worktree's .git file). It does not invoke git.
func FindGitDir(start string) (gitDir string, ok bool, err error) {
	if strings.TrimSpace(start) == "" {
		return "", false, errors.New("empty start dir")
	}
	dir, err := filepath.Abs(strings.TrimSpace(start))
	if err != nil {
		return "", false, err
	}
	for {
		candidate := filepath.Join(dir, ".git")
		st, statErr := os.Stat(candidate)
		switch {
		case statErr == nil && st.IsDir():
			return candidate, true, nil
		case statErr == nil:
			target, err := readGitdirFile(candidate)
			if err != nil {
				return "", false, err
			}
			if target != "" {
				return target, true, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// readGitdirFile parses "gitdir: <path>" from a .git file.
func readGitdirFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())
		if ln == "" {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(ln), "gitdir:") {
			return "", nil
		}
		p := strings.TrimSpace(ln[len("gitdir:"):])
		if p == "" {
			return "", nil
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		return filepath.Clean(p), nil
	}
	return "", sc.Err()
}

// InProgress returns the kind of operation underway in the repo containing dir
// (merge|rebase|cherry-pick|revert), or "" when there is none.
func InProgress(dir string) (string, error) {
	gitDir, ok, err := FindGitDir(dir)
	if err != nil || !ok {
		return "", err
	}
	markers := []struct{ kind, name string }{
		{"merge", "MERGE_HEAD"},
		{"rebase", "rebase-apply"},
		{"rebase", "rebase-merge"},
		{"cherry-pick", "CHERRY_PICK_HEAD"},
		{"revert", "REVERT_HEAD"},
	}
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(gitDir, m.name)); err == nil {
			return m.kind, nil
		}
	}
	return "", nil
}

type CommitResult struct {
	Repo      bool `json:"repo"`
	Committed bool `json:"committed"`
}

// CommitFiles stages files (absolute or relative to dir) and commits them with msg.
// Outside a git repo it does nothing. Committed is false when nothing changed.
func CommitFiles(ctx context.Context, dir string, files []string, msg string) (CommitResult, error) {
	if _, ok, err := FindGitDir(dir); err != nil || !ok {
		return CommitResult{}, err
	}
	if kind, err := InProgress(dir); err != nil {
		return CommitResult{Repo: true}, err
	} else if kind != "" {
		return CommitResult{Repo: true}, fmt.Errorf("%w (%s)", ErrInProgress, kind)
	}
	if len(files) == 0 {
		return CommitResult{Repo: true}, nil
	}

	args := append([]string{"add", "--"}, files...)
	if _, err := runGit(ctx, dir, args...); err != nil {
		return CommitResult{Repo: true}, err
	}
	staged, err := runGit(ctx, dir, append([]string{"diff", "--cached", "--name-only", "--"}, files...)...)
	if err != nil {
		return CommitResult{Repo: true}, err
	}
	if strings.TrimSpace(staged) == "" {
		return CommitResult{Repo: true}, nil
	}

	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "pulse: update plan"
	}
	if _, err := runGit(ctx, dir, append([]string{"commit", "-m", msg, "--"}, files...)...); err != nil {
		return CommitResult{Repo: true}, err
	}
	return CommitResult{Repo: true, Committed: true}, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return string(out), nil
}
