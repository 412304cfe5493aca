package phase

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tomoki/shuttle/internal/artifact"
	"github.com/tomoki/shuttle/internal/events"
	"github.com/tomoki/shuttle/internal/model"
)

// Build reports implementation progress from the task checklist. It
// never advances past the build phase on its own: the driver re-invokes
// it until every task is checked off, then moves on to test.
func Build(ctx context.Context, d *Deps) *model.Result {
	res := d.newResult("build")

	st, ok := d.requireActiveItem(res)
	if !ok {
		return res
	}
	if !d.requireNoCheckpoint(res, st) {
		return res
	}

	set := artifact.NewSet(filepath.Join(d.Root, d.Config.Paths.SpecsDir), st.DerivedName)
	if !set.Exists() {
		res.AddError("change artifacts missing; run `shuttle phase prebuild` first")
		return res
	}

	if st.Phase != model.PhaseBuild {
		if _, err := d.State.TransitionTo(model.PhaseBuild); err != nil {
			res.AddError(fmt.Sprintf("transition to build: %v", err))
			return res
		}
	}

	progress, err := set.Checklist()
	if err != nil {
		res.AddError(fmt.Sprintf("read task checklist: %v", err))
		return res
	}

	res.Data["completed"] = progress.Completed
	res.Data["total"] = progress.Total
	if progress.Done() {
		res.Data["implementation_complete"] = true
		res.AddNextStep("shuttle phase test")
	} else {
		res.Data["remaining"] = progress.Remaining
		res.AddNextStep(fmt.Sprintf("complete the remaining %d task(s), then re-run `shuttle phase build`",
			progress.Total-progress.Completed))
	}

	d.audit(events.EventPhase, res, st, map[string]any{
		"phase":     "build",
		"completed": progress.Completed,
		"total":     progress.Total,
	})
	return res
}
