package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/phase"
)

func newPhaseCmd(a *app, exit *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phase",
		Short: "Run one pipeline phase against the active item",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bootstrap()
		},
	}
	cmd.AddCommand(
		phasePrepareCmd(a, exit),
		phaseSimpleCmd(a, exit, "proposal", "Analyze the document and gate the proposal", phase.Proposal),
		phaseSimpleCmd(a, exit, "prebuild", "Create the branch, artifacts, and registration", phase.Prebuild),
		phaseSimpleCmd(a, exit, "build", "Report implementation progress from the checklist", phase.Build),
		phaseReportCmd(a, exit, "test", "Feed a test run through the retry engine",
			"passed", "failure", phase.Test),
		phaseReportCmd(a, exit, "validate", "Feed a compliance check through the retry engine",
			"compliant", "violation", phase.Validate),
		phaseFinalizeCmd(a, exit),
	)
	return cmd
}

func phasePrepareCmd(a *app, exit *int) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "prepare <path>",
		Short: "Validate the document and the working environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res *model.Result
			err := a.withLock(func() error {
				res = phase.Prepare(cmd.Context(), a.deps, args[0], force)
				return nil
			})
			if err != nil {
				return err
			}
			return a.emit(res, exit)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass environment warnings")
	return cmd
}

func phaseSimpleCmd(a *app, exit *int, verb, short string, fn func(ctx context.Context, d *phase.Deps) *model.Result) *cobra.Command {
	return &cobra.Command{
		Use:   verb,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res *model.Result
			err := a.withLock(func() error {
				res = fn(cmd.Context(), a.deps)
				return nil
			})
			if err != nil {
				return err
			}
			return a.emit(res, exit)
		},
	}
}

func phaseReportCmd(a *app, exit *int, verb, short, passFlag, failFlag string, fn func(ctx context.Context, d *phase.Deps, rep phase.Report) *model.Result) *cobra.Command {
	var (
		passed   bool
		failures []string
	)
	cmd := &cobra.Command{
		Use:   verb,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res *model.Result
			err := a.withLock(func() error {
				res = fn(cmd.Context(), a.deps, phase.Report{Passed: passed, Failures: failures})
				return nil
			})
			if err != nil {
				return err
			}
			return a.emit(res, exit)
		},
	}
	cmd.Flags().BoolVar(&passed, passFlag, false, "the check fully passed")
	cmd.Flags().StringArrayVar(&failures, failFlag, nil, "one failing item (repeatable)")
	return cmd
}

func phaseFinalizeCmd(a *app, exit *int) *cobra.Command {
	var merged bool
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Run the commit protocol, or complete after merge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res *model.Result
			err := a.withLock(func() error {
				res = phase.Finalize(cmd.Context(), a.deps, phase.FinalizeOptions{Merged: merged})
				return nil
			})
			if err != nil {
				return err
			}
			return a.emit(res, exit)
		},
	}
	cmd.Flags().BoolVar(&merged, "merged", false, "the pull request has been merged")
	return cmd
}
