package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tomoki/shuttle/internal/model"
)

func newStateCmd(a *app, exit *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and mutate the active item's state",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bootstrap()
		},
	}
	cmd.AddCommand(
		stateShowCmd(a, exit),
		stateGetCmd(a, exit),
		stateSetCmd(a, exit),
		stateTransitionCmd(a, exit),
		stateCheckpointCmd(a, exit),
		stateClearCheckpointCmd(a, exit),
		stateResetCmd(a, exit),
		stateDeleteCmd(a, exit),
	)
	return cmd
}

func newStateResult(command string) *model.Result {
	return model.NewResult(uuid.NewString(), "state "+command)
}

func stateShowCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the full state document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newStateResult("show")
			st, err := a.states.Load()
			if err != nil {
				res.AddError(err.Error())
			} else {
				res.Data["state"] = st
			}
			return a.emit(res, exit)
		},
	}
}

func stateGetCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "get <field>",
		Short: "Print one state field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newStateResult("get")
			value, err := a.states.Get(args[0])
			if err != nil {
				res.AddError(err.Error())
			} else {
				res.Data[args[0]] = value
			}
			return a.emit(res, exit)
		},
	}
}

func stateSetCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "set <field> <value>",
		Short: "Set a whitelisted state field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newStateResult("set")
			err := a.withLock(func() error { return a.states.Set(args[0], args[1]) })
			if err != nil {
				res.AddError(err.Error())
			} else {
				res.Data[args[0]] = args[1]
			}
			return a.emit(res, exit)
		},
	}
}

func stateTransitionCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "transition <phase>",
		Short: "Move the state machine to a phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newStateResult("transition")
			err := a.withLock(func() error {
				st, err := a.states.TransitionTo(model.Phase(args[0]))
				if err != nil {
					return err
				}
				res.Data["phase"] = string(st.Phase)
				res.Data["previous_phase"] = string(st.PreviousPhase)
				return nil
			})
			if err != nil {
				res.AddError(err.Error())
			}
			return a.emit(res, exit)
		},
	}
}

func stateCheckpointCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint <type>",
		Short: "Raise a checkpoint on the active item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newStateResult("checkpoint")
			err := a.withLock(func() error {
				_, err := a.states.SetCheckpoint(model.Checkpoint(args[0]))
				return err
			})
			if err != nil {
				res.AddError(err.Error())
			} else {
				res.Data["checkpoint"] = args[0]
			}
			return a.emit(res, exit)
		},
	}
}

func stateClearCheckpointCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-checkpoint",
		Short: "Resolve the open checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newStateResult("clear-checkpoint")
			err := a.withLock(func() error {
				_, err := a.states.ClearCheckpoint()
				return err
			})
			if err != nil {
				res.AddError(err.Error())
			}
			return a.emit(res, exit)
		},
	}
}

func stateResetCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset state to idle, preserving bulk mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newStateResult("reset")
			err := a.withLock(func() error {
				st, err := a.states.Reset()
				if err != nil {
					return err
				}
				res.Data["bulk_mode"] = st.BulkMode
				return nil
			})
			if err != nil {
				res.AddError(err.Error())
			}
			return a.emit(res, exit)
		},
	}
}

func stateDeleteCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the state document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newStateResult("delete")
			if err := a.withLock(a.states.Delete); err != nil {
				res.AddError(err.Error())
			}
			return a.emit(res, exit)
		},
	}
}
