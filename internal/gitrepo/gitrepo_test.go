package gitrepo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("%s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	repo := t.TempDir()
	run(t, repo, "git", "init")
	run(t, repo, "git", "config", "user.email", "test@example.com")
	run(t, repo, "git", "config", "user.name", "Test")
	return repo
}

func TestCommitFiles_NonRepo(t *testing.T) {
	dir := t.TempDir()
	if _, ok, _ := FindGitDir(dir); ok {
		t.Skip("temp dir is inside a git checkout")
	}
	res, err := CommitFiles(context.Background(), dir, []string{"x.md"}, "msg")
	if err != nil {
		t.Fatalf("CommitFiles: %v", err)
	}
	if res.Repo || res.Committed {
		t.Fatalf("expected no-op outside a repo, got %+v", res)
	}
}

func TestCommitFiles_CommitsOnlyChanges(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)
	page := filepath.Join(repo, "plans", "2026-10-19.md")
	if err := os.MkdirAll(filepath.Dir(page), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(page, []byte("# Plan\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Unrelated dirt must not end up in the commit.
	if err := os.WriteFile(filepath.Join(repo, "scratch.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := CommitFiles(ctx, repo, []string{page}, "Plan: 2026-10-19")
	if err != nil {
		t.Fatalf("CommitFiles: %v", err)
	}
	if !res.Repo || !res.Committed {
		t.Fatalf("expected a commit, got %+v", res)
	}
	if got := strings.TrimSpace(run(t, repo, "git", "log", "-1", "--format=%s")); got != "Plan: 2026-10-19" {
		t.Fatalf("commit message: %q", got)
	}
	if files := run(t, repo, "git", "show", "--name-only", "--format=", "HEAD"); strings.Contains(files, "scratch.txt") {
		t.Fatalf("unrelated file committed: %s", files)
	}

	res, err = CommitFiles(ctx, repo, []string{page}, "again")
	if err != nil {
		t.Fatalf("CommitFiles again: %v", err)
	}
	if res.Committed {
		t.Fatalf("unchanged file should not commit")
	}
}

func TestCommitFiles_RefusesDuringMerge(t *testing.T) {
	repo := initRepo(t)
	if err := os.WriteFile(filepath.Join(repo, ".git", "MERGE_HEAD"), []byte("deadbeef\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	kind, err := InProgress(repo)
	if err != nil || kind != "merge" {
		t.Fatalf("InProgress = %q, %v", kind, err)
	}
	_, err = CommitFiles(context.Background(), repo, []string{"a.md"}, "x")
	if !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected ErrInProgress, got %v", err)
	}
}

func TestFindGitDir_WorktreeFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real-gitdir")
	if err := os.WriteFile(filepath.Join(dir, ".git"), []byte("gitdir: real-gitdir\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	got, ok, err := FindGitDir(sub)
	if err != nil || !ok || got != target {
		t.Fatalf("FindGitDir = %q, %v, %v; want %q", got, ok, err, target)
	}
	if _, _, err := FindGitDir(" "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
