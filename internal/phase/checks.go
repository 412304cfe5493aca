package phase

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tomoki/shuttle/internal/artifact"
	"github.com/tomoki/shuttle/internal/events"
	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/retry"
)

// Report is a caller-supplied verdict for the test or validate phase.
// The pipeline never runs the checks itself; an external agent does and
// reports back.
type Report struct {
	Passed   bool
	Failures []string
}

// Test feeds a test-run report through the retry engine. Two failed
// attempts may be retried; the third exhausts the budget. In bulk mode
// an exhausted test budget degrades to "skip and proceed" with a
// warning, because test review is a convenience gate.
func Test(ctx context.Context, d *Deps, rep Report) *model.Result {
	return d.runCheck(ctx, "test", model.RetryTest, model.PhaseTest, rep,
		"shuttle phase validate")
}

// Validate feeds a spec-compliance report through the retry engine and
// records the compliance document alongside the change artifacts. An
// exhausted compliance budget is a correctness gate: it halts in every
// mode.
func Validate(ctx context.Context, d *Deps, rep Report) *model.Result {
	res := d.runCheck(ctx, "validate", model.RetryCompliance, model.PhaseValidate, rep,
		"shuttle phase finalize")
	if res.Status == model.ResultError {
		return res
	}

	st, err := d.State.Load()
	if err != nil {
		return res
	}
	set := artifact.NewSet(filepath.Join(d.Root, d.Config.Paths.SpecsDir), st.DerivedName)
	if err := set.WriteComplianceReport(rep.Passed, rep.Failures); err != nil {
		res.AddWarning(fmt.Sprintf("write compliance report: %v", err))
	}
	return res
}

func (d *Deps) runCheck(ctx context.Context, command string, kind model.RetryKind, phase model.Phase, rep Report, onward string) *model.Result {
	res := d.newResult(command)

	st, ok := d.requireActiveItem(res)
	if !ok {
		return res
	}
	if !d.requireNoCheckpoint(res, st) {
		return res
	}

	if st.Phase != phase {
		if _, err := d.State.TransitionTo(phase); err != nil {
			res.AddError(fmt.Sprintf("transition to %s: %v", phase, err))
			return res
		}
	}

	dec, err := d.Retry.Report(kind, rep.Passed, rep.Failures)
	if err != nil {
		res.AddError(fmt.Sprintf("retry engine: %v", err))
		return res
	}

	res.Data["outcome"] = string(dec.Outcome)
	switch dec.Outcome {
	case retry.OutcomeSuccess:
		if d.gate(res, st.BulkMode, dec.Checkpoint, dec.Message) {
			res.AddNextStep(onward)
		} else {
			d.notifyCheckpoint(ctx, dec.Checkpoint, dec.Message)
			res.AddNextStep(fmt.Sprintf("review, then `shuttle state clear-checkpoint` and `%s`", onward))
		}

	case retry.OutcomeRetry:
		res.Data["attempt"] = dec.Attempt
		res.Data["failures"] = dec.Failures
		res.AddNextStep(fmt.Sprintf("address the failures and re-run `shuttle phase %s`", command))

	case retry.OutcomeNeedsHuman:
		res.Data["attempt"] = dec.Attempt
		res.Data["failures"] = dec.Failures
		if d.gate(res, st.BulkMode, dec.Checkpoint, dec.Message) {
			// Bulk mode resolves an exhausted test budget by skipping.
			res.AddWarning(fmt.Sprintf("%s budget exhausted after %d attempts; proceeding with failures flagged",
				kind, dec.Attempt))
			res.AddNextStep(onward)
		} else {
			d.notifyCheckpoint(ctx, dec.Checkpoint, dec.Message)
			res.AddNextStep("resolve manually, then `shuttle state clear-checkpoint`")
		}
	}

	d.audit(events.EventPhase, res, st, map[string]any{
		"phase":   string(phase),
		"outcome": string(dec.Outcome),
		"attempt": dec.Attempt,
	})
	return res
}
