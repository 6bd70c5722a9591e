package publish

import (
	"context"
	"fmt"
	"log/slog"
)

// VCS records the provenance of a published descriptor.
type VCS interface {
	// CommitAndPush commits path with message and, after a non-empty
	// commit, propagates it to the remote. It reports whether a commit was
	// made; nothing to commit is not an error.
	CommitAndPush(ctx context.Context, path string, message string) (bool, error)
}

// GitVCS implements VCS with the git command line.
type GitVCS struct {
	Dir    string // working tree
	Binary string
	Remote string
	Push   bool
	Env    []string
	Logger *slog.Logger
}

func NewGitVCS(dir, remote string, push bool) *GitVCS {
	return &GitVCS{Dir: dir, Binary: "git", Remote: remote, Push: push}
}

func (g *GitVCS) CommitAndPush(ctx context.Context, path string, message string) (bool, error) {
	if _, err := g.git(ctx, "add", "--", path); err != nil {
		return false, fmt.Errorf("git add: %w", err)
	}

	// Exit status 1 means the index differs from HEAD for path.
	_, err := g.git(ctx, "diff", "--cached", "--quiet", "--", path)
	switch code := exitCode(err); {
	case err == nil:
		if g.Logger != nil {
			g.Logger.Info("nothing to commit", "path", path)
		}
		return false, nil
	case code != 1:
		return false, fmt.Errorf("git diff: %w", err)
	}

	if _, err := g.git(ctx, "commit", "--quiet", "-m", message, "--", path); err != nil {
		return false, fmt.Errorf("git commit: %w", err)
	}
	if g.Logger != nil {
		g.Logger.Info("committed descriptor", "path", path)
	}

	if g.Push {
		if _, err := g.git(ctx, "push", "--quiet", g.Remote, "HEAD"); err != nil {
			return true, fmt.Errorf("git push: %w", err)
		}
		if g.Logger != nil {
			g.Logger.Info("pushed", "remote", g.Remote)
		}
	}
	return true, nil
}

func (g *GitVCS) git(ctx context.Context, args ...string) (string, error) {
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}
	return command{Dir: g.Dir, Env: g.Env, Name: binary, Args: args}.run(ctx)
}
