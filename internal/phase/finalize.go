package phase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/tomoki/shuttle/internal/events"
	"github.com/tomoki/shuttle/internal/model"
)

// FinalizeOptions selects between the two finalize entry points: the
// five-stage commit protocol and the post-merge continuation.
type FinalizeOptions struct {
	Merged bool
}

var errStillDirty = errors.New("working tree still has unstaged paths")

// Finalize runs the commit protocol: archive the change's specification
// artifacts, relocate the requirements document, stage the tree with
// polling, commit and verify, then push and open a pull request. Every
// stage is independently idempotent, so a failed run can be re-invoked
// and will skip what already happened. The merge checkpoint it ends on
// has no bulk bypass; merging is always a human action.
func Finalize(ctx context.Context, d *Deps, opts FinalizeOptions) *model.Result {
	res := d.newResult("finalize")

	st, ok := d.requireActiveItem(res)
	if !ok {
		return res
	}
	if opts.Merged {
		return d.postMerge(ctx, res, st)
	}
	if st.Checkpoint == model.CheckpointAwaitingMerge {
		res.AddError("pull request is awaiting merge; re-run with --merged once it lands")
		return res
	}
	if !d.requireNoCheckpoint(res, st) {
		return res
	}

	if _, err := d.State.TransitionTo(model.PhaseFinalize); err != nil {
		res.AddError(fmt.Sprintf("transition to finalize: %v", err))
		return res
	}

	if err := d.archiveChange(ctx, st.DerivedName); err != nil {
		return d.protocolError(res, st, "archive", err, nil)
	}
	donePath, err := d.relocateDocument(ctx, st.ItemPath)
	if err != nil {
		return d.protocolError(res, st, "relocate", err, []string{st.ItemPath})
	}
	res.Data["document_path"] = donePath

	leftover, err := d.stageEverything(ctx)
	if err != nil {
		return d.protocolError(res, st, "stage", err, nil)
	}
	if len(leftover) > 0 {
		return d.protocolError(res, st, "stage_timeout",
			fmt.Errorf("%d path(s) kept changing during the staging window", len(leftover)), leftover)
	}

	committed, residual, err := d.commitChange(ctx, st.DerivedName)
	if err != nil {
		return d.protocolError(res, st, "commit", err, nil)
	}
	if len(residual) > 0 {
		return d.protocolError(res, st, "post_commit_verification_failed",
			errors.New("working tree not clean after commit; paths were silently excluded"), residual)
	}
	res.Data["committed"] = committed

	if err := d.Git.Push(ctx, d.Config.Git.Remote, st.Branch); err != nil {
		return d.protocolError(res, st, "push", err, nil)
	}

	prURL, err := d.openPullRequest(ctx, st, res)
	if err != nil {
		return d.protocolError(res, st, "pr_create", err, nil)
	}
	if prURL != "" {
		res.Data["pr_url"] = prURL
		if err := d.Queue.UpdateField(st.ItemPath, "pr_url", prURL); err != nil {
			res.AddWarning(fmt.Sprintf("record pr_url on queue item: %v", err))
		}
	}

	msg := fmt.Sprintf("pull request for %q is ready; merge it to complete the change", st.DerivedName)
	d.gate(res, st.BulkMode, model.CheckpointAwaitingMerge, msg)
	d.notifyCheckpoint(ctx, model.CheckpointAwaitingMerge, msg)
	res.AddNextStep("merge the pull request, then run `shuttle phase finalize --merged`")
	d.audit(events.EventFinalize, res, st, map[string]any{"pr_url": prURL, "committed": committed})
	return res
}

// archiveChange marks the change inactive in the specification store
// and trusts only a re-query, not the archive call's exit status.
func (d *Deps) archiveChange(ctx context.Context, name string) error {
	active, err := d.Specs.ActiveChanges(ctx)
	if err != nil {
		return fmt.Errorf("query active changes: %w", err)
	}
	if !contains(active, name) {
		d.log().Debug("change already archived", zap.String("name", name))
		return nil
	}
	if err := d.Specs.Archive(ctx, name); err != nil {
		return fmt.Errorf("archive change: %w", err)
	}
	active, err = d.Specs.ActiveChanges(ctx)
	if err != nil {
		return fmt.Errorf("verify archive: %w", err)
	}
	if contains(active, name) {
		return fmt.Errorf("change %q still active after archive", name)
	}
	return nil
}

// relocateDocument moves the requirements document to the done
// directory with a tracked move. Already relocated is a no-op.
func (d *Deps) relocateDocument(ctx context.Context, itemPath string) (string, error) {
	donePath := filepath.Join(d.Config.Paths.DoneDir, filepath.Base(itemPath))
	src := filepath.Join(d.Root, itemPath)
	dst := filepath.Join(d.Root, donePath)

	if _, err := os.Stat(src); os.IsNotExist(err) {
		if _, err := os.Stat(dst); err == nil {
			return donePath, nil
		}
		return "", fmt.Errorf("document missing from both %s and %s", itemPath, donePath)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := d.Git.Move(ctx, itemPath, donePath); err != nil {
		return "", err
	}
	return donePath, nil
}

// stageEverything waits out the settle window, then loops: if the tree
// has unstaged or untracked paths, stage them all and re-check after a
// constant interval. A tree that is already clean performs zero git
// operations. Returns the paths still churning when the iteration
// budget runs out.
func (d *Deps) stageEverything(ctx context.Context) ([]string, error) {
	waitForSettle(ctx, d.Root,
		time.Duration(d.Config.Finalize.SettleDelaySec)*time.Second, d.log())

	interval := time.Duration(d.Config.Finalize.StagePollIntervalMs) * time.Millisecond
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval),
			uint64(d.Config.Finalize.StageMaxIterations)), ctx)

	op := func() error {
		paths, err := d.Git.UnstagedOrUntracked(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if len(paths) == 0 {
			return nil
		}
		if err := d.Git.AddAll(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return errStillDirty
	}

	err := backoff.Retry(op, policy)
	if errors.Is(err, errStillDirty) {
		// The budget ran out right after a final AddAll; one more look
		// decides between settled and timed out.
		paths, checkErr := d.Git.UnstagedOrUntracked(ctx)
		if checkErr != nil {
			return nil, checkErr
		}
		return paths, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// commitChange commits whatever is staged and verifies the tree is
// clean afterward. Nothing staged on an already-clean tree means a
// prior run committed; that is success, not an error.
func (d *Deps) commitChange(ctx context.Context, name string) (bool, []string, error) {
	staged, err := d.Git.HasStagedChanges(ctx)
	if err != nil {
		return false, nil, err
	}
	if staged {
		if err := d.Git.Commit(ctx, "change: "+name); err != nil {
			return false, nil, err
		}
	}
	residual, err := d.Git.DirtyPaths(ctx)
	if err != nil {
		return staged, nil, err
	}
	return staged, residual, nil
}

func (d *Deps) openPullRequest(ctx context.Context, st model.State, res *model.Result) (string, error) {
	title := "Change: " + st.DerivedName
	body := fmt.Sprintf("Automated change pipeline for %s.\n\nSource document: %s\n", st.DerivedName, st.ItemPath)
	url, err := d.Git.CreatePR(ctx, title, body)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			res.AddWarning("pull request already exists for this branch")
			return "", nil
		}
		return "", err
	}
	return url, nil
}

func (d *Deps) protocolError(res *model.Result, st model.State, step string, err error, files []string) *model.Result {
	res.Data["failed_step"] = step
	if len(files) > 0 {
		res.Data["files"] = files
	}
	res.AddError(fmt.Sprintf("finalize %s: %v", step, err))
	res.AddNextStep("resolve manually and re-run `shuttle phase finalize`; completed stages are skipped")
	if aerr := d.State.AddError(fmt.Sprintf("finalize %s failed: %v", step, err)); aerr != nil {
		d.log().Warn("record finalize error on state", zap.Error(aerr))
	}
	d.audit(events.EventFinalize, res, st, map[string]any{"failed_step": step})
	return res
}

// postMerge is the continuation after the human merges the pull
// request: complete the queue item, reset state for the next item, and
// either hand the driver the next pending document or archive the
// finished queue.
func (d *Deps) postMerge(ctx context.Context, res *model.Result, st model.State) *model.Result {
	if st.Checkpoint != model.CheckpointAwaitingMerge {
		res.AddWarning("no merge checkpoint was pending; completing anyway")
	}

	if err := d.Queue.Complete(st.ItemPath); err != nil {
		res.AddError(fmt.Sprintf("complete queue item: %v", err))
		return res
	}
	if _, err := d.State.Complete(); err != nil {
		res.AddError(fmt.Sprintf("complete state: %v", err))
		return res
	}
	if _, err := d.State.Reset(); err != nil {
		res.AddError(fmt.Sprintf("reset state: %v", err))
		return res
	}
	res.Data["completed_item"] = st.ItemPath
	if d.Notify != nil {
		d.Notify.Send(ctx, fmt.Sprintf("change %q merged and completed", st.DerivedName), "item_completed")
	}

	next, err := d.Queue.NextPending()
	if err != nil {
		res.AddError(fmt.Sprintf("look up next pending item: %v", err))
		return res
	}
	if next != nil {
		res.Data["next_item"] = next.Path
		res.AddNextStep(fmt.Sprintf("shuttle queue start %s", next.Path))
		res.AddNextStep(fmt.Sprintf("shuttle phase prepare %s", next.Path))
	} else {
		snapshot, err := d.Queue.Archive()
		if err != nil {
			res.AddError(fmt.Sprintf("archive queue: %v", err))
			return res
		}
		res.Data["queue_archived"] = snapshot
		if d.Notify != nil {
			d.Notify.Send(ctx, "queue complete: all items processed", "queue_archived")
		}
	}

	d.audit(events.EventPhase, res, st, map[string]any{"phase": "complete"})
	return res
}
