package phase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoki/shuttle/internal/model"
)

// readyForFinalize walks a seeded item up to the validate phase with a
// registered change, the way a real session would arrive at finalize.
func readyForFinalize(t *testing.T, d *Deps, git *fakeGit) {
	t.Helper()
	seedItem(t, d, docPath, goodDocument)
	require.NoError(t, d.Specs.Register(context.Background(), "add-cache"))
	require.NoError(t, d.State.Set("branch", "change/add-cache"))
	git.branches["change/add-cache"] = true
	git.branch = "change/add-cache"
	_, err := d.State.TransitionTo(model.PhaseValidate)
	require.NoError(t, err)
}

func TestFinalizeHappyPath(t *testing.T) {
	d, git, specs := newTestDeps(t, true)
	readyForFinalize(t, d, git)
	git.unstaged = []string{"cache.go", docPath}

	res := Finalize(context.Background(), d, FinalizeOptions{})

	// The merge checkpoint has no bulk bypass, so even bulk mode ends
	// in checkpoint status here.
	assert.Equal(t, model.ResultCheckpoint, res.Status)
	require.Empty(t, res.Errors, "errors: %v", res.Errors)

	assert.False(t, specs.active["add-cache"], "change must be archived")
	require.Len(t, git.moves, 1)
	assert.Equal(t, docPath, git.moves[0][0])
	assert.Equal(t, "prds/done/add-cache.md", git.moves[0][1])
	assert.FileExists(t, filepath.Join(d.Root, "prds", "done", "add-cache.md"))

	require.Len(t, git.commits, 1)
	assert.Equal(t, "change: add-cache", git.commits[0])
	assert.Equal(t, 1, git.pushes)
	assert.Equal(t, "https://example.com/pr/1", res.Data["pr_url"])

	st, _ := d.State.Load()
	assert.Equal(t, model.CheckpointAwaitingMerge, st.Checkpoint)
	assert.Equal(t, model.PhaseFinalize, st.Phase)

	items, err := d.Queue.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/pr/1", items[0].ExtraFields["pr_url"])
}

func TestFinalizeCleanTreeIsIdempotent(t *testing.T) {
	d, git, _ := newTestDeps(t, true)
	readyForFinalize(t, d, git)
	// Document already relocated by a previous run; tree clean.
	require.NoError(t, os.MkdirAll(filepath.Join(d.Root, "prds", "done"), 0o755))
	require.NoError(t, os.Rename(
		filepath.Join(d.Root, docPath),
		filepath.Join(d.Root, "prds", "done", "add-cache.md")))

	res := Finalize(context.Background(), d, FinalizeOptions{})

	require.Empty(t, res.Errors, "errors: %v", res.Errors)
	assert.Zero(t, git.addAllCalls, "clean tree must perform zero staging operations")
	assert.Empty(t, git.commits)
	assert.Equal(t, false, res.Data["committed"])
	assert.Equal(t, 1, git.pushes, "push is re-attempted; it is idempotent upstream")
}

func TestFinalizeStageTimeout(t *testing.T) {
	d, git, _ := newTestDeps(t, true)
	readyForFinalize(t, d, git)
	git.unstaged = []string{"generated.out"}
	git.churn = []string{"generated.out"}

	res := Finalize(context.Background(), d, FinalizeOptions{})

	assert.Equal(t, model.ResultError, res.Status)
	assert.Equal(t, "stage_timeout", res.Data["failed_step"])
	assert.Equal(t, []string{"generated.out"}, res.Data["files"])
}

func TestFinalizePostCommitVerification(t *testing.T) {
	d, git, _ := newTestDeps(t, true)
	readyForFinalize(t, d, git)
	git.unstaged = []string{"cache.go"}
	git.residualAfterCommit = []string{"orphan.go"}

	res := Finalize(context.Background(), d, FinalizeOptions{})

	assert.Equal(t, model.ResultError, res.Status)
	assert.Equal(t, "post_commit_verification_failed", res.Data["failed_step"])
	assert.Equal(t, []string{"orphan.go"}, res.Data["files"])
	assert.Zero(t, git.pushes, "a failed verification must not push")
}

func TestFinalizeArchiveVerifiedByRequery(t *testing.T) {
	d, git, specs := newTestDeps(t, true)
	readyForFinalize(t, d, git)
	specs.archiveNop = true

	res := Finalize(context.Background(), d, FinalizeOptions{})

	assert.Equal(t, model.ResultError, res.Status)
	assert.Equal(t, "archive", res.Data["failed_step"])
}

func TestFinalizeRefusesWhileAwaitingMerge(t *testing.T) {
	d, git, _ := newTestDeps(t, true)
	readyForFinalize(t, d, git)
	_, err := d.State.SetCheckpoint(model.CheckpointAwaitingMerge)
	require.NoError(t, err)

	res := Finalize(context.Background(), d, FinalizeOptions{})

	assert.Equal(t, model.ResultError, res.Status)
	assert.Contains(t, res.Errors[0], "--merged")
}

func TestFinalizeMergedDispatchesNextItem(t *testing.T) {
	d, git, _ := newTestDeps(t, true)
	readyForFinalize(t, d, git)
	_, err := d.Queue.Add("prds/second.md", "second")
	require.NoError(t, err)
	_, err = d.State.SetCheckpoint(model.CheckpointAwaitingMerge)
	require.NoError(t, err)

	res := Finalize(context.Background(), d, FinalizeOptions{Merged: true})

	require.Equal(t, model.ResultSuccess, res.Status, "errors: %v", res.Errors)
	assert.Equal(t, "prds/second.md", res.Data["next_item"])

	items, err := d.Queue.List()
	require.NoError(t, err)
	var statuses []model.Status
	for _, it := range items {
		statuses = append(statuses, it.Status)
	}
	assert.Contains(t, statuses, model.StatusCompleted)

	st, _ := d.State.Load()
	assert.Equal(t, model.PhaseIdle, st.Phase)
	assert.Equal(t, "", st.ItemPath)
	assert.True(t, st.BulkMode, "mode is session-scoped and survives reset")
}

func TestFinalizeMergedArchivesEmptyQueue(t *testing.T) {
	d, git, _ := newTestDeps(t, false)
	readyForFinalize(t, d, git)
	_, err := d.State.SetCheckpoint(model.CheckpointAwaitingMerge)
	require.NoError(t, err)

	res := Finalize(context.Background(), d, FinalizeOptions{Merged: true})

	require.Equal(t, model.ResultSuccess, res.Status, "errors: %v", res.Errors)
	snapshot, ok := res.Data["queue_archived"].(string)
	require.True(t, ok)
	assert.FileExists(t, snapshot)

	items, err := d.Queue.List()
	require.NoError(t, err)
	assert.Empty(t, items, "archive clears the active queue file")
}
