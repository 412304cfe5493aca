package phase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tomoki/shuttle/internal/artifact"
	"github.com/tomoki/shuttle/internal/events"
	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/prd"
)

// Prebuild sets up everything implementation needs: the feature branch,
// the change-artifact scaffold under the specs directory, and the
// registration of the change in the specification store. Every step is
// idempotent so a crashed or re-run prebuild converges.
func Prebuild(ctx context.Context, d *Deps) *model.Result {
	res := d.newResult("prebuild")

	st, ok := d.requireActiveItem(res)
	if !ok {
		return res
	}
	if !d.requireNoCheckpoint(res, st) {
		return res
	}
	if st.DerivedName == "" {
		res.AddError("state has no derived_name; run `shuttle phase prepare` first")
		return res
	}

	branch := d.featureBranch(st.DerivedName)
	if err := d.ensureBranch(ctx, branch); err != nil {
		res.AddError(fmt.Sprintf("switch to branch %s: %v", branch, err))
		return res
	}
	if err := d.State.SetBranch(branch); err != nil {
		res.AddError(fmt.Sprintf("record branch: %v", err))
		return res
	}

	set := artifact.NewSet(filepath.Join(d.Root, d.Config.Paths.SpecsDir), st.DerivedName)
	if !set.Exists() {
		proposal, tasks, err := d.scaffoldContent(st.ItemPath, st.DerivedName)
		if err != nil {
			res.AddError(fmt.Sprintf("derive scaffold content: %v", err))
			return res
		}
		if err := set.Scaffold(proposal, tasks); err != nil {
			res.AddError(fmt.Sprintf("scaffold change artifacts: %v", err))
			return res
		}
		res.Data["scaffolded"] = true
	}

	if err := d.registerChange(ctx, st.DerivedName); err != nil {
		res.AddError(fmt.Sprintf("register change in specification store: %v", err))
		return res
	}

	if _, err := d.State.TransitionTo(model.PhasePrebuild); err != nil {
		res.AddError(fmt.Sprintf("transition to prebuild: %v", err))
		return res
	}

	res.Data["branch"] = branch
	res.Data["artifact_dir"] = set.Dir()
	res.AddNextStep("implement the tasks in " + set.TasksPath())
	res.AddNextStep("shuttle phase build")
	d.audit(events.EventPhase, res, st, map[string]any{"phase": "prebuild", "branch": branch})
	return res
}

func (d *Deps) ensureBranch(ctx context.Context, branch string) error {
	current, err := d.Git.CurrentBranch(ctx)
	if err == nil && current == branch {
		return nil
	}
	exists, err := d.Git.BranchExists(ctx, branch)
	if err != nil {
		return err
	}
	if exists {
		return d.Git.Checkout(ctx, branch)
	}
	return d.Git.CreateBranch(ctx, branch)
}

// scaffoldContent builds the initial proposal body from the document's
// sections and seeds the task checklist from the Requirements bullets.
func (d *Deps) scaffoldContent(itemPath, name string) (string, []string, error) {
	raw, err := os.ReadFile(filepath.Join(d.Root, itemPath))
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Proposal: %s\n", name)
	var tasks []string
	for _, sec := range prd.ParseSections(string(raw)) {
		if sec.Title == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s\n\n%s\n", sec.Title, sec.Body)
		if strings.EqualFold(sec.Title, "Requirements") {
			tasks = requirementTasks(sec.Body)
		}
	}
	if len(tasks) == 0 {
		tasks = []string{"implement " + name}
	}
	return sb.String(), tasks, nil
}

func requirementTasks(body string) []string {
	var tasks []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			if item := strings.TrimSpace(line[2:]); item != "" {
				tasks = append(tasks, item)
			}
		}
	}
	return tasks
}

func (d *Deps) registerChange(ctx context.Context, name string) error {
	active, err := d.Specs.ActiveChanges(ctx)
	if err == nil {
		for _, a := range active {
			if a == name {
				d.log().Debug("change already registered", zap.String("name", name))
				return nil
			}
		}
	}
	return d.Specs.Register(ctx, name)
}
