package main

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tomoki/shuttle/internal/model"
	"github.com/tomoki/shuttle/internal/prd"
)

func newQueueCmd(a *app, exit *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the work queue",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bootstrap()
		},
	}
	cmd.AddCommand(
		queueAddCmd(a, exit),
		queueListCmd(a, exit),
		queueNextCmd(a, exit),
		queueStatusCmd(a, exit),
		queueStartCmd(a, exit),
		queueFinishCmd(a, exit, "complete", "Mark an item completed", a.completeItem),
		queueFinishCmd(a, exit, "fail", "Mark an item failed", a.failItem),
		queueFinishCmd(a, exit, "skip", "Mark an item skipped", a.skipItem),
		queueRetryCmd(a, exit),
		queueMoveCmd(a, exit),
		queueUpdateFieldCmd(a, exit),
		queueArchiveCmd(a, exit),
	)
	return cmd
}

func newQueueResult(command string) *model.Result {
	return model.NewResult(uuid.NewString(), "queue "+command)
}

func queueAddCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>...",
		Short: "Add requirements documents to the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newQueueResult("add")
			err := a.withLock(func() error {
				added, duplicates, err := a.queues.AddBatch(args, prd.DeriveName)
				if err != nil {
					return err
				}
				res.Data["added"] = len(added)
				for _, p := range added {
					a.auditQueue(res, "add", p.Path)
				}
				if len(duplicates) > 0 {
					res.Data["duplicates"] = duplicates
					for _, d := range duplicates {
						res.AddWarning(fmt.Sprintf("already queued: %s", d))
					}
				}
				return nil
			})
			if err != nil {
				res.AddError(err.Error())
			}
			return a.emit(res, exit)
		},
	}
}

func queueListCmd(a *app, exit *int) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.queues.List()
			if err != nil {
				res := newQueueResult("list")
				res.AddError(err.Error())
				return a.emit(res, exit)
			}
			if status != "" {
				filtered := items[:0]
				for _, it := range items {
					if string(it.Status) == status {
						filtered = append(filtered, it)
					}
				}
				items = filtered
			}
			if !cmd.Flag("output").Changed {
				renderQueueTable(cmd, items)
				return nil
			}
			res := newQueueResult("list")
			res.Data["items"] = items
			res.Data["count"] = len(items)
			return a.emit(res, exit)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "show only items with this status")
	return cmd
}

func renderQueueTable(cmd *cobra.Command, items []model.QueueItem) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"#", "Status", "Path", "Name", "Reason"})
	for _, it := range items {
		t.AppendRow(table.Row{it.Priority, it.Status, it.Path, it.DerivedName, it.Reason})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

func queueNextCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the next pending item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newQueueResult("next")
			item, err := a.queues.NextPending()
			switch {
			case err != nil:
				res.AddError(err.Error())
			case item == nil:
				res.Data["empty"] = true
			default:
				res.Data["path"] = item.Path
				res.Data["derived_name"] = item.DerivedName
				res.AddNextStep(fmt.Sprintf("shuttle queue start %s", item.Path))
			}
			return a.emit(res, exit)
		},
	}
}

func queueStatusCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newQueueResult("status")
			stats, err := a.queues.Stats()
			if err != nil {
				res.AddError(err.Error())
			} else {
				res.Data["pending"] = stats.Pending
				res.Data["in_progress"] = stats.InProgress
				res.Data["completed"] = stats.Completed
				res.Data["failed"] = stats.Failed
				res.Data["skipped"] = stats.Skipped
			}
			return a.emit(res, exit)
		},
	}
}

func queueStartCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "start <path>",
		Short: "Mark an item in_progress and bind it to state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newQueueResult("start")
			err := a.withLock(func() error {
				item, err := a.queues.Start(args[0])
				if err != nil {
					return err
				}
				if _, err := a.states.StartItem(item); err != nil {
					return err
				}
				a.auditQueue(res, "start", item.Path)
				res.Data["path"] = item.Path
				res.Data["derived_name"] = item.DerivedName
				res.AddNextStep(fmt.Sprintf("shuttle phase prepare %s", item.Path))
				return nil
			})
			if err != nil {
				res.AddError(err.Error())
			}
			return a.emit(res, exit)
		},
	}
}

func (a *app) completeItem(path, reason string) error { return a.queues.Complete(path) }
func (a *app) failItem(path, reason string) error     { return a.queues.Fail(path, reason) }
func (a *app) skipItem(path, reason string) error     { return a.queues.Skip(path, reason) }

func queueFinishCmd(a *app, exit *int, verb, short string, fn func(path, reason string) error) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   verb + " <path>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newQueueResult(verb)
			err := a.withLock(func() error { return fn(args[0], reason) })
			if err != nil {
				res.AddError(err.Error())
			} else {
				a.auditQueue(res, verb, args[0])
				res.Data["path"] = args[0]
			}
			return a.emit(res, exit)
		},
	}
	if verb != "complete" {
		cmd.Flags().StringVar(&reason, "reason", "", "why the item was "+verb+"ed")
	}
	return cmd
}

func queueRetryCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <path>",
		Short: "Reset a terminal item back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newQueueResult("retry")
			err := a.withLock(func() error { return a.queues.Retry(args[0]) })
			if err != nil {
				res.AddError(err.Error())
			} else {
				a.auditQueue(res, "retry", args[0])
				res.Data["path"] = args[0]
			}
			return a.emit(res, exit)
		},
	}
}

func queueMoveCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "move <path> <position>",
		Short: "Move an item to a 1-based queue position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newQueueResult("move")
			pos, err := strconv.Atoi(args[1])
			if err != nil {
				res.AddError(fmt.Sprintf("position must be an integer: %v", err))
				return a.emit(res, exit)
			}
			err = a.withLock(func() error { return a.queues.Move(args[0], pos) })
			if err != nil {
				res.AddError(err.Error())
			} else {
				a.auditQueue(res, "move", args[0])
				res.Data["path"] = args[0]
				res.Data["position"] = pos
			}
			return a.emit(res, exit)
		},
	}
}

func queueUpdateFieldCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "update-field <path> <key> <value>",
		Short: "Set a free-form field on a queue item",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newQueueResult("update-field")
			err := a.withLock(func() error { return a.queues.UpdateField(args[0], args[1], args[2]) })
			if err != nil {
				res.AddError(err.Error())
			} else {
				a.auditQueue(res, "update-field", args[0])
				res.Data["path"] = args[0]
				res.Data[args[1]] = args[2]
			}
			return a.emit(res, exit)
		},
	}
}

func queueArchiveCmd(a *app, exit *int) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Snapshot the queue and clear the active file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := newQueueResult("archive")
			err := a.withLock(func() error {
				snapshot, err := a.queues.Archive()
				if err != nil {
					return err
				}
				res.Data["snapshot"] = snapshot
				return nil
			})
			if err != nil {
				res.AddError(err.Error())
			} else {
				a.auditQueue(res, "archive", "")
			}
			return a.emit(res, exit)
		},
	}
}
