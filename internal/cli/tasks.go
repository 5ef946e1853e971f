package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/mutate"
	"github.com/flowbit-labs/flowbit-pulse/internal/statusutil"
)

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Task commands",
	}

	cmd.AddCommand(newTasksAddCmd(app))
	cmd.AddCommand(newTasksShowCmd(app))
	cmd.AddCommand(newTasksStatusCmd(app))
	cmd.AddCommand(newTasksStatusShortcutCmd(app, "start", model.StatusDoing))
	cmd.AddCommand(newTasksStatusShortcutCmd(app, "done", model.StatusDone))
	cmd.AddCommand(newTasksStatusShortcutCmd(app, "block", model.StatusBlocked))

	return cmd
}

func newTasksAddCmd(app *App) *cobra.Command {
	var t model.NewTask

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task (the planner decides where it goes)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t.Title = strings.TrimSpace(t.Title)
			if t.Title == "" {
				return writeErr(cmd, errors.New("missing --title"))
			}
			if t.EstimateMin < 0 {
				return writeErr(cmd, errors.New("--estimate must be >= 0"))
			}
			s, err := app.session(cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			created, err := s.ctl.AddTask(cmd.Context(), t)
			if err != nil {
				return writeErr(cmd, err)
			}
			meta := map[string]any{"placed": false}
			if p := s.rs.Current(); p != nil {
				if b, _, ok := p.FindTask(created.ID); ok {
					meta["placed"] = true
					meta["block_id"] = b
				}
			}
			return writeOut(cmd, app, envelope{Data: created, Meta: meta})
		},
	}
	cmd.Flags().StringVar(&t.Title, "title", "", "Task title")
	cmd.Flags().StringVar(&t.Notes, "notes", "", "Free-form notes")
	cmd.Flags().IntVar(&t.Priority, "priority", 2, "Priority (1 = highest)")
	cmd.Flags().IntVar(&t.EstimateMin, "estimate", 30, "Estimate in minutes")
	return cmd
}

func newTasksShowCmd(app *App) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task and where it sits in today's plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			s, err := app.session(cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			p, meta, err := loadPlan(cmd.Context(), s, cached)
			if err != nil {
				return writeErr(cmd, err)
			}
			t, ok := p.Task(taskID)
			if !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: args[0]})
			}
			b, pos, _ := p.FindTask(taskID)
			meta["block_id"] = b
			meta["position"] = pos
			meta["locked"] = p.IsLocked(b)
			return writeOut(cmd, app, envelope{Data: t, Meta: meta})
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "Read the local cache only (no network)")
	return cmd
}

func newTasksStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Set a task's status (todo|doing|done|blocked)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := statusutil.NormalizeStatus(args[1])
			if err != nil {
				return writeErr(cmd, err)
			}
			return runSetStatus(cmd, app, args[0], status)
		},
	}
}

func newTasksStatusShortcutCmd(app *App, verb string, status model.TaskStatus) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <task-id>",
		Short: "Set a task's status to " + string(status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetStatus(cmd, app, args[0], status)
		},
	}
}

func runSetStatus(cmd *cobra.Command, app *App, rawID string, status model.TaskStatus) error {
	taskID, err := parseTaskID(rawID)
	if err != nil {
		return writeErr(cmd, err)
	}
	s, err := app.session(cmd.ErrOrStderr())
	if err != nil {
		return writeErr(cmd, err)
	}
	if err := s.ctl.SetStatus(cmd.Context(), taskID, status); err != nil {
		return writeErr(cmd, err)
	}
	var data any = map[string]any{"id": taskID, "status": status}
	if p := s.rs.Current(); p != nil {
		if t, ok := p.Task(taskID); ok {
			data = t
		}
	}
	return writeOut(cmd, app, envelope{Data: data, Meta: map[string]any{"status": status}})
}
