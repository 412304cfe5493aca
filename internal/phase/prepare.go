package phase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tomoki/shuttle/internal/events"
	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/prd"
)

// Prepare validates the requirements document and the working
// environment before any pipeline work starts. Environment problems are
// warnings that escalate to a clarification checkpoint unless force or
// bulk mode bypasses them; an unrelated change branch already open is a
// hard error in every mode.
func Prepare(ctx context.Context, d *Deps, path string, force bool) *model.Result {
	res := d.newResult("prepare")

	if path == "" {
		res.AddError("requirements document path is required")
		return res
	}
	if _, err := os.Stat(filepath.Join(d.Root, path)); err != nil {
		res.AddError(fmt.Sprintf("requirements document not found: %s", path))
		res.AddNextStep("add the file, or pick another item with `shuttle queue next`")
		return res
	}

	st, err := d.State.Load()
	if err != nil {
		res.AddError(fmt.Sprintf("load state: %v", err))
		return res
	}
	name := prd.DeriveName(path)
	bypass := force || st.BulkMode

	if st.ItemPath != path {
		if err := d.State.Set("item_path", path); err == nil {
			err = d.State.Set("derived_name", name)
		}
		if err != nil {
			res.AddError(fmt.Sprintf("bind item to state: %v", err))
			return res
		}
	}

	d.inspectBranch(ctx, res, name, bypass)
	if res.Status == model.ResultError {
		return res
	}
	d.inspectWorkingTree(ctx, res, path, name, bypass)
	if res.Status == model.ResultError {
		return res
	}

	if _, err := d.State.TransitionTo(model.PhasePrepare); err != nil {
		res.AddError(fmt.Sprintf("transition to prepare: %v", err))
		return res
	}

	res.Data["derived_name"] = name
	res.Data["branch"] = d.featureBranch(name)
	res.AddNextStep("draft the specification proposal, then run `shuttle phase proposal`")
	st, _ = d.State.Load()
	d.audit(events.EventPhase, res, st, map[string]any{"phase": "prepare"})
	return res
}

func (d *Deps) inspectBranch(ctx context.Context, res *model.Result, name string, bypass bool) {
	branch, err := d.Git.CurrentBranch(ctx)
	if err != nil {
		res.AddWarning(fmt.Sprintf("branch detection unavailable: %v", err))
		return
	}
	res.Data["current_branch"] = branch

	feature := d.featureBranch(name)
	switch {
	case branch == d.Config.Git.BaseBranch:
	case branch == feature:
		res.Data["resuming_branch"] = feature
	case strings.HasPrefix(branch, d.Config.Git.BranchPrefix):
		// A different change's branch is checked out. Proceeding would
		// mix two changes into one commit, so this halts in every mode.
		res.AddError(fmt.Sprintf(
			"another change is already open on branch %q; finalize or abandon it first", branch))
	default:
		msg := fmt.Sprintf("not on base branch %q (currently %q)", d.Config.Git.BaseBranch, branch)
		res.AddWarning(msg)
		if !bypass {
			st, _ := d.State.Load()
			d.gate(res, st.BulkMode, model.CheckpointAwaitingClarification, msg)
		}
	}
}

func (d *Deps) inspectWorkingTree(ctx context.Context, res *model.Result, path, name string, bypass bool) {
	dirty, err := d.Git.DirtyPaths(ctx)
	if err != nil {
		res.AddWarning(fmt.Sprintf("working tree status unavailable: %v", err))
		return
	}
	if len(dirty) == 0 {
		return
	}

	if len(dirty) == 1 && dirty[0] == path && d.metadataOnlyUpdate(ctx, path) {
		if bypass {
			if err := d.commitMetadataUpdate(ctx, path, name); err != nil {
				res.AddWarning(fmt.Sprintf("metadata auto-commit failed: %v", err))
				return
			}
			res.Data["metadata_committed"] = true
			d.log().Info("auto-committed metadata-only document update",
				zap.String("path", path))
			return
		}
		msg := fmt.Sprintf("%s has uncommitted metadata-only changes; commit them or re-run with --force", path)
		res.AddWarning(msg)
		st, _ := d.State.Load()
		d.gate(res, st.BulkMode, model.CheckpointAwaitingClarification, msg)
		return
	}

	msg := fmt.Sprintf("working tree has %d uncommitted path(s)", len(dirty))
	res.AddWarning(msg)
	res.Data["dirty_paths"] = dirty
	if !bypass {
		st, _ := d.State.Load()
		d.gate(res, st.BulkMode, model.CheckpointAwaitingClarification, msg)
	}
}

// metadataOnlyUpdate reports whether the only delta between the working
// copy and HEAD is front-matter or trailing whitespace.
func (d *Deps) metadataOnlyUpdate(ctx context.Context, path string) bool {
	committed, err := d.Git.ShowHead(ctx, path)
	if err != nil {
		return false
	}
	working, err := os.ReadFile(filepath.Join(d.Root, path))
	if err != nil {
		return false
	}
	return prd.MetadataOnlyChange(string(working), string(committed))
}

func (d *Deps) commitMetadataUpdate(ctx context.Context, path, name string) error {
	if err := d.Git.AddPaths(ctx, []string{path}); err != nil {
		return err
	}
	return d.Git.Commit(ctx, fmt.Sprintf("chore: update %s metadata", name))
}
