// Package phase implements the pipeline verbs. Each verb is a
// deterministic function over persisted state, on-disk artifacts, and
// subordinate-tool output: it returns a structured result document and
// performs exactly the state mutation its outcome implies. Verbs never
// chain into each other; the external driver decides what runs next.
package phase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomoki/shuttle/internal/events"
	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/notify"
	"github.com/tomoki/shuttle/internal/queue"
	"github.com/tomoki/shuttle/internal/retry"
	"github.com/tomoki/shuttle/internal/specstore"
	"github.com/tomoki/shuttle/internal/state"
	"github.com/tomoki/shuttle/internal/store"
	"github.com/tomoki/shuttle/internal/vcs"
)

// Deps bundles the collaborators every phase verb draws on. The CLI
// wires one Deps per process invocation.
type Deps struct {
	Config model.Config
	Root   string // project root, parent of the data dir
	Store  *store.Store
	Queue  *queue.Manager
	State  *state.Manager
	Retry  *retry.Engine
	Git    vcs.Git
	Specs  specstore.Store
	Notify notify.Sender
	Audit  *events.Logger
	Logger *zap.Logger
}

func (d *Deps) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Deps) newResult(command string) *model.Result {
	return model.NewResult(uuid.NewString(), command)
}

func (d *Deps) featureBranch(derivedName string) string {
	return d.Config.Git.BranchPrefix + derivedName
}

// gate raises cp on the result and, when bulk mode does not cover the
// checkpoint type, persists it so every later invocation sees the open
// gate. Returns true when execution may continue past the gate.
func (d *Deps) gate(res *model.Result, bulk bool, cp model.Checkpoint, msg string) bool {
	approved := res.AddCheckpoint(cp, msg, bulk)
	if approved {
		d.log().Info("checkpoint auto-approved in bulk mode",
			zap.String("checkpoint", string(cp)))
		return true
	}
	class, _ := model.ClassOf(cp)
	d.log().Info("checkpoint raised",
		zap.String("checkpoint", string(cp)),
		zap.String("class", string(class)))
	if _, err := d.State.SetCheckpoint(cp); err != nil {
		res.AddError(fmt.Sprintf("persist checkpoint: %v", err))
	}
	return false
}

// audit records a pipeline event. Audit failures are logged, never
// propagated: the audit trail is diagnostic, not load-bearing.
func (d *Deps) audit(eventType string, res *model.Result, st model.State, details map[string]any) {
	if d.Audit == nil {
		return
	}
	if err := d.Audit.Log(eventType, res.RunID, st.ItemPath, string(st.Phase), details); err != nil {
		d.log().Warn("audit log write failed", zap.Error(err))
	}
}

// requireActiveItem loads state and verifies an item is bound to it.
func (d *Deps) requireActiveItem(res *model.Result) (model.State, bool) {
	st, err := d.State.Load()
	if err != nil {
		res.AddError(fmt.Sprintf("load state: %v", err))
		return model.State{}, false
	}
	if st.ItemPath == "" {
		res.AddError("no active item; run `shuttle queue start <path>` first")
		res.AddNextStep("shuttle queue next")
		return model.State{}, false
	}
	return st, true
}

// requireNoCheckpoint refuses to proceed while a persisted checkpoint
// is still open. The driver resolves it with `shuttle state
// clear-checkpoint` (or the operation the checkpoint names) first.
func (d *Deps) requireNoCheckpoint(res *model.Result, st model.State) bool {
	if st.Checkpoint == model.CheckpointNone || st.Checkpoint == "" {
		return true
	}
	res.AddError(fmt.Sprintf("checkpoint %q is unresolved; clear it before continuing", st.Checkpoint))
	res.AddNextStep("shuttle state clear-checkpoint")
	return false
}

// notifyCheckpoint fans a human-attention message out to the configured
// webhooks. Failures are already swallowed inside the sender.
func (d *Deps) notifyCheckpoint(ctx context.Context, cp model.Checkpoint, msg string) {
	if d.Notify == nil {
		return
	}
	d.Notify.Send(ctx, msg, string(cp))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
