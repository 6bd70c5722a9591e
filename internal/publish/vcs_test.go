package publish

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var gitEnv = []string{
	"GIT_AUTHOR_NAME=Registry Test",
	"GIT_AUTHOR_EMAIL=registry@example.com",
	"GIT_COMMITTER_NAME=Registry Test",
	"GIT_COMMITTER_EMAIL=registry@example.com",
	"GIT_CONFIG_NOSYSTEM=1",
	"GIT_CONFIG_GLOBAL=/dev/null",
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := command{Dir: dir, Env: gitEnv, Name: "git", Args: args}.run(context.Background())
	if err != nil {
		t.Fatalf("git %v: %v", args, err)
	}
	return strings.TrimSpace(out)
}

// newRepo creates a working tree cloned from a bare remote.
func newRepo(t *testing.T) (work string, remote string) {
	t.Helper()
	base := t.TempDir()
	remote = filepath.Join(base, "remote.git")
	work = filepath.Join(base, "work")
	runGit(t, base, "init", "--quiet", "--bare", remote)
	runGit(t, base, "init", "--quiet", work)
	runGit(t, work, "remote", "add", "origin", remote)
	return work, remote
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGitVCS_CommitAndPush(t *testing.T) {
	requireGit(t)
	work, remote := newRepo(t)
	ctx := context.Background()

	g := NewGitVCS(work, "origin", true)
	g.Env = gitEnv

	path := filepath.Join(work, "bt", "btc.json")
	writeFile(t, path, btcDescriptor)

	committed, err := g.CommitAndPush(ctx, path, "Add asset btc")
	if err != nil {
		t.Fatalf("CommitAndPush: %v", err)
	}
	if !committed {
		t.Fatal("expected a commit")
	}
	if msg := runGit(t, work, "log", "-1", "--format=%s"); msg != "Add asset btc" {
		t.Fatalf("commit message = %q", msg)
	}

	local := runGit(t, work, "rev-parse", "HEAD")
	branch := runGit(t, work, "rev-parse", "--abbrev-ref", "HEAD")
	if pushed := runGit(t, remote, "rev-parse", branch); pushed != local {
		t.Fatalf("remote %s = %s, want %s", branch, pushed, local)
	}

	// Same content again: nothing to commit, no error, no push.
	committed, err = g.CommitAndPush(ctx, path, "Add asset btc")
	if err != nil {
		t.Fatalf("CommitAndPush unchanged: %v", err)
	}
	if committed {
		t.Fatal("expected no commit for unchanged descriptor")
	}
	if head := runGit(t, work, "rev-parse", "HEAD"); head != local {
		t.Fatal("HEAD moved without changes")
	}
}

func TestGitVCS_CommitsOnlyTheDescriptor(t *testing.T) {
	requireGit(t)
	work, _ := newRepo(t)

	g := NewGitVCS(work, "origin", false)
	g.Env = gitEnv

	other := filepath.Join(work, "ot", "other.json")
	writeFile(t, other, `{}`)
	runGit(t, work, "add", other)

	path := filepath.Join(work, "bt", "btc.json")
	writeFile(t, path, btcDescriptor)
	if _, err := g.CommitAndPush(context.Background(), path, "Add asset btc"); err != nil {
		t.Fatalf("CommitAndPush: %v", err)
	}

	files := runGit(t, work, "show", "--name-only", "--format=", "HEAD")
	if files != "bt/btc.json" {
		t.Fatalf("commit contains %q", files)
	}
}

func TestGitVCS_PushFailure(t *testing.T) {
	requireGit(t)
	work, _ := newRepo(t)

	g := NewGitVCS(work, "missing-remote", true)
	g.Env = gitEnv

	path := filepath.Join(work, "bt", "btc.json")
	writeFile(t, path, btcDescriptor)

	committed, err := g.CommitAndPush(context.Background(), path, "Add asset btc")
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if !committed {
		t.Fatal("commit happened before the push failed")
	}
}

func TestGitVCS_NotARepository(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))

	g := NewGitVCS(dir, "origin", false)
	g.Env = gitEnv
	path := filepath.Join(dir, "bt", "btc.json")
	writeFile(t, path, btcDescriptor)

	if _, err := g.CommitAndPush(context.Background(), path, "Add asset btc"); err == nil {
		t.Fatal("expected error outside a repository")
	}
}
