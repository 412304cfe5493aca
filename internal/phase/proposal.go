package phase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tomoki/shuttle/internal/artifact"
	"github.com/tomoki/shuttle/internal/events"
	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/prd"
)

// Proposal analyzes the requirements document for gaps and, when it is
// sound, gates the drafted proposal behind human approval. A high
// severity gap always halts: unanswered questions in the source
// document cannot be approved away, not even in bulk mode.
func Proposal(ctx context.Context, d *Deps) *model.Result {
	res := d.newResult("proposal")

	st, ok := d.requireActiveItem(res)
	if !ok {
		return res
	}

	raw, err := os.ReadFile(filepath.Join(d.Root, st.ItemPath))
	if err != nil {
		res.AddError(fmt.Sprintf("read requirements document: %v", err))
		return res
	}
	content := string(raw)

	if _, err := d.State.TransitionTo(model.PhaseProposal); err != nil {
		res.AddError(fmt.Sprintf("transition to proposal: %v", err))
		return res
	}

	gaps := prd.AnalyzeGaps(content)
	if len(gaps) > 0 {
		res.Data["gaps"] = describeGaps(gaps)
	}
	if prd.HasHighSeverity(gaps) {
		msg := fmt.Sprintf("requirements document has %d gap(s) needing clarification", len(gaps))
		d.gate(res, st.BulkMode, model.CheckpointAwaitingClarification, msg)
		d.notifyCheckpoint(ctx, model.CheckpointAwaitingClarification, msg)
		res.AddNextStep("resolve the gaps in the document, then re-run `shuttle phase proposal`")
		d.audit(events.EventCheckpoint, res, st, map[string]any{"gaps": len(gaps)})
		return res
	}

	sections := prd.ParseSections(content)
	titles := make([]string, 0, len(sections))
	for _, s := range sections {
		if s.Title != "" {
			titles = append(titles, s.Title)
		}
	}
	res.Data["sections"] = titles

	set := artifact.NewSet(filepath.Join(d.Root, d.Config.Paths.SpecsDir), st.DerivedName)
	if !set.Exists() {
		proposal, tasks, err := d.scaffoldContent(st.ItemPath, st.DerivedName)
		if err == nil {
			err = set.Scaffold(proposal, tasks)
		}
		if err != nil {
			res.AddError(fmt.Sprintf("write proposal skeleton: %v", err))
			return res
		}
		res.Data["proposal_path"] = set.ProposalPath()
	}

	msg := fmt.Sprintf("specification proposal for %q is ready for review", st.DerivedName)
	if d.gate(res, st.BulkMode, model.CheckpointProposalApproval, msg) {
		if _, err := d.State.TransitionTo(model.PhaseProposalReview); err != nil {
			res.AddError(fmt.Sprintf("transition to proposal_review: %v", err))
			return res
		}
		res.AddNextStep("shuttle phase prebuild")
	} else {
		d.notifyCheckpoint(ctx, model.CheckpointProposalApproval, msg)
		res.AddNextStep("review the proposal, then `shuttle state clear-checkpoint` and `shuttle phase prebuild`")
	}

	d.audit(events.EventPhase, res, st, map[string]any{"phase": "proposal", "sections": len(titles)})
	return res
}

func describeGaps(gaps []prd.Gap) []map[string]string {
	out := make([]map[string]string, len(gaps))
	for i, g := range gaps {
		out[i] = map[string]string{
			"section":  g.Section,
			"severity": string(g.Severity),
			"message":  g.Message,
		}
	}
	return out
}
