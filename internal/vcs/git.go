// Package vcs wraps the version-control collaborator. Shuttle never
// re-implements git semantics: reads go through go-git, mutations shell
// out to the git binary, and pull requests go through the gh CLI.
package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

// Git is the subordinate-tool interface consumed by the phase commands.
type Git interface {
	CurrentBranch(ctx context.Context) (string, error)
	BranchExists(ctx context.Context, name string) (bool, error)
	// DirtyPaths lists every path with staged, unstaged, or untracked
	// changes. This is the post-commit-verify view.
	DirtyPaths(ctx context.Context) ([]string, error)
	// UnstagedOrUntracked lists only what `git add -A` would pick up.
	UnstagedOrUntracked(ctx context.Context) ([]string, error)
	HasStagedChanges(ctx context.Context) (bool, error)
	CreateBranch(ctx context.Context, name string) error
	Checkout(ctx context.Context, name string) error
	AddAll(ctx context.Context) error
	AddPaths(ctx context.Context, paths []string) error
	Commit(ctx context.Context, message string) error
	Move(ctx context.Context, src, dst string) error
	Push(ctx context.Context, remote, branch string) error
	// ShowHead returns the committed content of path at HEAD.
	ShowHead(ctx context.Context, path string) ([]byte, error)
	CreatePR(ctx context.Context, title, body string) (string, error)
}

// Local operates on the repository at dir.
type Local struct {
	dir    string
	logger *zap.Logger
}

func NewLocal(dir string, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{dir: dir, logger: logger}
}

// CurrentBranch reads HEAD via go-git. Detached HEAD yields an error:
// the pipeline always works on named branches.
func (g *Local) CurrentBranch(ctx context.Context) (string, error) {
	repo, err := gogit.PlainOpen(g.dir)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("detached HEAD at %s", head.Hash().String()[:8])
	}
	return head.Name().Short(), nil
}

func (g *Local) BranchExists(ctx context.Context, name string) (bool, error) {
	repo, err := gogit.PlainOpen(g.dir)
	if err != nil {
		return false, fmt.Errorf("open repository: %w", err)
	}
	_, err = repo.Reference(plumbing.NewBranchReferenceName(name), false)
	if err == plumbing.ErrReferenceNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup branch %s: %w", name, err)
	}
	return true, nil
}

// DirtyPaths uses porcelain status: the same view `git add -A` acts on,
// so the finalize staging loop and its check can never disagree.
func (g *Local) DirtyPaths(ctx context.Context) ([]string, error) {
	lines, err := g.statusLines(ctx)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range lines {
		paths = append(paths, porcelainPath(line))
	}
	return paths, nil
}

// UnstagedOrUntracked reports paths with worktree-side changes only,
// so the staging loop stops once `git add -A` has caught everything.
func (g *Local) UnstagedOrUntracked(ctx context.Context) ([]string, error) {
	lines, err := g.statusLines(ctx)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range lines {
		if line[1] != ' ' || strings.HasPrefix(line, "??") {
			paths = append(paths, porcelainPath(line))
		}
	}
	return paths, nil
}

func (g *Local) HasStagedChanges(ctx context.Context) (bool, error) {
	lines, err := g.statusLines(ctx)
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if line[0] != ' ' && !strings.HasPrefix(line, "??") {
			return true, nil
		}
	}
	return false, nil
}

// dataDirName is excluded from every status view: the orchestrator's
// own queue, state, lock, and log writes must never make the tree look
// dirty or end up staged into a change commit.
const dataDirName = ".shuttle"

func (g *Local) statusLines(ctx context.Context) ([]string, error) {
	out, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if len(line) < 4 {
			continue
		}
		if p := porcelainPath(line); p == dataDirName || strings.HasPrefix(p, dataDirName+"/") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func porcelainPath(line string) string {
	path := strings.TrimSpace(line[3:])
	// Renames are reported as "old -> new".
	if i := strings.Index(path, " -> "); i >= 0 {
		path = path[i+4:]
	}
	return path
}

func (g *Local) CreateBranch(ctx context.Context, name string) error {
	_, err := g.git(ctx, "checkout", "-b", name)
	return err
}

func (g *Local) Checkout(ctx context.Context, name string) error {
	_, err := g.git(ctx, "checkout", name)
	return err
}

func (g *Local) AddAll(ctx context.Context) error {
	_, err := g.git(ctx, "add", "-A", "--", ":(exclude)"+dataDirName)
	return err
}

func (g *Local) AddPaths(ctx context.Context, paths []string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := g.git(ctx, args...)
	return err
}

func (g *Local) Commit(ctx context.Context, message string) error {
	_, err := g.git(ctx, "commit", "-m", message)
	return err
}

func (g *Local) Move(ctx context.Context, src, dst string) error {
	_, err := g.git(ctx, "mv", src, dst)
	return err
}

func (g *Local) Push(ctx context.Context, remote, branch string) error {
	_, err := g.git(ctx, "push", "-u", remote, branch)
	return err
}

func (g *Local) ShowHead(ctx context.Context, path string) ([]byte, error) {
	out, err := g.git(ctx, "show", "HEAD:"+path)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (g *Local) CreatePR(ctx context.Context, title, body string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", "pr", "create", "--title", title, "--body", body)
	cmd.Dir = g.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("gh pr create: %w: %s", err, strings.TrimSpace(string(out)))
	}
	// gh prints the PR URL as the last non-empty line.
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

func (g *Local) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	g.logger.Debug("git", zap.Strings("args", args))
	return string(out), nil
}
