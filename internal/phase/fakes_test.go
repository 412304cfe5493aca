package phase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/notify"
	"github.com/tomoki/shuttle/internal/queue"
	"github.com/tomoki/shuttle/internal/retry"
	"github.com/tomoki/shuttle/internal/state"
	"github.com/tomoki/shuttle/internal/store"
)

// fakeGit is an in-memory repository good enough for the phase verbs:
// it tracks the current branch, a worktree-side change set, and a
// staging area, and records every mutating call.
type fakeGit struct {
	root     string
	branch   string
	branches map[string]bool

	unstaged []string
	staged   []string
	head     map[string]string
	// repopulated into unstaged after every AddAll; simulates a tree
	// that never settles.
	churn []string
	// left in the worktree after Commit; simulates silent exclusion.
	residualAfterCommit []string

	branchErr error
	prURL     string
	prErr     error

	addAllCalls int
	commits     []string
	pushes      int
	moves       [][2]string
}

func newFakeGit(root string) *fakeGit {
	return &fakeGit{
		root:     root,
		branch:   "main",
		branches: map[string]bool{"main": true},
		head:     map[string]string{},
		prURL:    "https://example.com/pr/1",
	}
}

func (g *fakeGit) CurrentBranch(ctx context.Context) (string, error) {
	if g.branchErr != nil {
		return "", g.branchErr
	}
	return g.branch, nil
}

func (g *fakeGit) BranchExists(ctx context.Context, name string) (bool, error) {
	return g.branches[name], nil
}

func (g *fakeGit) DirtyPaths(ctx context.Context) ([]string, error) {
	return append(append([]string{}, g.staged...), g.unstaged...), nil
}

func (g *fakeGit) UnstagedOrUntracked(ctx context.Context) ([]string, error) {
	return append([]string{}, g.unstaged...), nil
}

func (g *fakeGit) HasStagedChanges(ctx context.Context) (bool, error) {
	return len(g.staged) > 0, nil
}

func (g *fakeGit) CreateBranch(ctx context.Context, name string) error {
	g.branches[name] = true
	g.branch = name
	return nil
}

func (g *fakeGit) Checkout(ctx context.Context, name string) error {
	if !g.branches[name] {
		return errors.New("no such branch")
	}
	g.branch = name
	return nil
}

func (g *fakeGit) AddAll(ctx context.Context) error {
	g.addAllCalls++
	g.staged = append(g.staged, g.unstaged...)
	g.unstaged = append([]string{}, g.churn...)
	return nil
}

func (g *fakeGit) AddPaths(ctx context.Context, paths []string) error {
	g.staged = append(g.staged, paths...)
	remaining := g.unstaged[:0]
	for _, p := range g.unstaged {
		keep := true
		for _, added := range paths {
			if p == added {
				keep = false
			}
		}
		if keep {
			remaining = append(remaining, p)
		}
	}
	g.unstaged = remaining
	return nil
}

func (g *fakeGit) Commit(ctx context.Context, message string) error {
	g.commits = append(g.commits, message)
	g.staged = nil
	g.unstaged = append([]string{}, g.residualAfterCommit...)
	return nil
}

func (g *fakeGit) Move(ctx context.Context, src, dst string) error {
	g.moves = append(g.moves, [2]string{src, dst})
	return os.Rename(filepath.Join(g.root, src), filepath.Join(g.root, dst))
}

func (g *fakeGit) Push(ctx context.Context, remote, branch string) error {
	g.pushes++
	return nil
}

func (g *fakeGit) ShowHead(ctx context.Context, path string) ([]byte, error) {
	content, ok := g.head[path]
	if !ok {
		return nil, errors.New("path not in HEAD")
	}
	return []byte(content), nil
}

func (g *fakeGit) CreatePR(ctx context.Context, title, body string) (string, error) {
	if g.prErr != nil {
		return "", g.prErr
	}
	return g.prURL, nil
}

type fakeSpecs struct {
	active     map[string]bool
	archiveNop bool
	listErr    error
}

func newFakeSpecs() *fakeSpecs {
	return &fakeSpecs{active: map[string]bool{}}
}

func (s *fakeSpecs) ActiveChanges(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var names []string
	for n := range s.active {
		names = append(names, n)
	}
	return names, nil
}

func (s *fakeSpecs) Register(ctx context.Context, name string) error {
	s.active[name] = true
	return nil
}

func (s *fakeSpecs) Archive(ctx context.Context, name string) error {
	if s.archiveNop {
		return nil
	}
	delete(s.active, name)
	return nil
}

const goodDocument = `# Add cache

## Problem
Lookups hit the database on every request.

## Goals
- cut lookup latency

## Requirements
- add an in-memory cache
- expire entries after five minutes

## Acceptance Criteria
- cached lookups skip the database
`

func newTestDeps(t *testing.T, bulk bool) (*Deps, *fakeGit, *fakeSpecs) {
	t.Helper()

	root := t.TempDir()
	logger := zap.NewNop()
	s := store.New(filepath.Join(root, ".shuttle"), logger)
	states := state.NewManager(s, logger)
	if bulk {
		require.NoError(t, states.Set("bulk_mode", "true"))
	}

	cfg := model.DefaultConfig("demo")
	cfg.Finalize.SettleDelaySec = 0
	cfg.Finalize.StageMaxIterations = 2
	cfg.Finalize.StagePollIntervalMs = 1

	git := newFakeGit(root)
	specs := newFakeSpecs()
	d := &Deps{
		Config: cfg,
		Root:   root,
		Store:  s,
		Queue:  queue.NewManager(s, logger),
		State:  states,
		Retry:  retry.NewEngine(states),
		Git:    git,
		Specs:  specs,
		Notify: notify.Nop{},
		Logger: logger,
	}
	return d, git, specs
}

// seedItem writes the document, queues it, and starts it.
func seedItem(t *testing.T, d *Deps, relPath, content string) {
	t.Helper()

	abs := filepath.Join(d.Root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))

	_, err := d.Queue.Add(relPath, "add-cache")
	require.NoError(t, err)
	item, err := d.Queue.Start(relPath)
	require.NoError(t, err)
	_, err = d.State.StartItem(item)
	require.NoError(t, err)
}
