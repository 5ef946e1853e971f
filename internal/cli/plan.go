package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowbit-labs/flowbit-pulse/internal/gitrepo"
	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/mutate"
	"github.com/flowbit-labs/flowbit-pulse/internal/publish"
	"github.com/flowbit-labs/flowbit-pulse/internal/reconcile"
)

func newPlanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Today's plan",
	}

	cmd.AddCommand(newPlanShowCmd(app))
	cmd.AddCommand(newPlanGenerateCmd(app))
	cmd.AddCommand(newPlanReplanCmd(app))
	cmd.AddCommand(newPlanMoveCmd(app))
	cmd.AddCommand(newPlanLockCmd(app, true))
	cmd.AddCommand(newPlanLockCmd(app, false))
	cmd.AddCommand(newPlanExportCmd(app))

	return cmd
}

// loadPlan fetches today's plan. When the planner is unreachable it falls back to
// the last cached plan and reports stale=true.
func loadPlan(ctx context.Context, s *session, cachedOnly bool) (*model.TodayPlan, map[string]any, error) {
	if !cachedOnly {
		p, err := s.ctl.Refresh(ctx)
		if err == nil {
			if p == nil {
				return nil, nil, errNoPlan
			}
			return p, map[string]any{"source": "planner", "stale": false}, nil
		}
		cached, cerr := s.state.LatestPlan(ctx)
		if cerr != nil || cached == nil {
			return nil, nil, err
		}
		return cached.Plan, map[string]any{
			"source":     "cache",
			"stale":      true,
			"cached_at":  cached.UpdatedAt,
			"last_error": err.Error(),
		}, nil
	}

	cached, err := s.state.LatestPlan(ctx)
	if err != nil {
		return nil, nil, err
	}
	if cached == nil {
		return nil, nil, errNoPlan
	}
	return cached.Plan, map[string]any{"source": "cache", "stale": true, "cached_at": cached.UpdatedAt}, nil
}

func newPlanShowCmd(app *App) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show today's plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			p, meta, err := loadPlan(cmd.Context(), s, cached)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, envelope{Data: publish.PlanDoc{TodayPlan: p}, Meta: meta})
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "Read the local cache only (no network)")
	return cmd
}

func newPlanGenerateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Ask the planner for a fresh plan (clears locks)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWholePlan(cmd, app, (*reconcile.Controller).Generate)
		},
	}
}

func newPlanReplanCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "replan",
		Short: "Re-plan the rest of the day, keeping locked blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWholePlan(cmd, app, (*reconcile.Controller).Replan)
		},
	}
}

func runWholePlan(cmd *cobra.Command, app *App, op func(*reconcile.Controller, context.Context) (*model.TodayPlan, error)) error {
	s, err := app.session(cmd.ErrOrStderr())
	if err != nil {
		return writeErr(cmd, err)
	}
	p, err := op(s.ctl, cmd.Context())
	if err != nil {
		return writeErr(cmd, err)
	}
	return writeOut(cmd, app, envelope{Data: publish.PlanDoc{TodayPlan: p}, Meta: map[string]any{"changes": p.Changes}})
}

func newPlanMoveCmd(app *App) *cobra.Command {
	var from string
	var to string
	var index int

	cmd := &cobra.Command{
		Use:   "move <task-id>",
		Short: "Move a task to another block (or another position in its block)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			to = strings.TrimSpace(to)
			if to == "" {
				return writeErr(cmd, errors.New("missing --to"))
			}
			s, err := app.session(cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			p, err := s.ctl.Refresh(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if p == nil {
				return writeErr(cmd, errNoPlan)
			}

			from = strings.TrimSpace(from)
			if from == "" {
				b, _, ok := p.FindTask(taskID)
				if !ok {
					return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: args[0]})
				}
				from = b
			}
			dest, ok := p.Block(to)
			if !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "block", ID: to})
			}
			if index < 0 {
				index = len(dest.Tasks)
			}

			out, err := s.ctl.Move(cmd.Context(), reconcile.MoveIntent{TaskID: taskID, FromBlockID: from, ToBlockID: to, ToIndex: index})
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, envelope{
				Data: publish.PlanDoc{TodayPlan: out.Plan},
				Meta: map[string]any{"phase": out.Phase, "task_id": taskID, "from": from, "to": to, "index": index},
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Block the task is in (default: looked up)")
	cmd.Flags().StringVar(&to, "to", "", "Destination block id")
	cmd.Flags().IntVar(&index, "index", -1, "Position in the destination block (default: end)")
	return cmd
}

func newPlanLockCmd(app *App, locked bool) *cobra.Command {
	use, short := "lock <block-id>", "Lock a block so re-planning leaves it alone"
	if !locked {
		use, short = "unlock <block-id>", "Unlock a block"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			p, err := s.ctl.SetLock(cmd.Context(), args[0], locked)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, envelope{
				Data: publish.PlanDoc{TodayPlan: p},
				Meta: map[string]any{"block_id": args[0], "locked": p.IsLocked(args[0])},
			})
		},
	}
}

func newPlanExportCmd(app *App) *cobra.Command {
	var toDir string
	var overwrite bool
	var cached bool
	var commit bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write today's plan as Markdown under <dir>/plans/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			toDir = strings.TrimSpace(toDir)
			if toDir == "" {
				return writeErr(cmd, errors.New("missing --to"))
			}
			s, err := app.session(cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			p, _, err := loadPlan(cmd.Context(), s, cached)
			if err != nil {
				return writeErr(cmd, err)
			}
			res, err := publish.WritePlan(p, toDir, publish.WriteOptions{Overwrite: overwrite})
			if err != nil {
				return writeErr(cmd, err)
			}
			msg := fmt.Sprintf("Plan: %s", p.Date)
			if commit {
				cr, err := gitrepo.CommitFiles(cmd.Context(), toDir, res.Written, msg)
				if err != nil {
					return writeErr(cmd, err)
				}
				return writeOut(cmd, app, envelope{Data: res, Meta: map[string]any{"git": cr}})
			}
			return writeOut(cmd, app, envelope{
				Data: res,
				Hints: []string{
					"git status",
					"git add -A",
					fmt.Sprintf("git commit -m %q", msg),
				},
			})
		},
	}
	cmd.Flags().StringVar(&toDir, "to", "", "Output directory")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	cmd.Flags().BoolVar(&cached, "cached", false, "Export the cached plan (no network)")
	cmd.Flags().BoolVar(&commit, "commit", false, "Commit the written page when --to is inside a git repo")
	return cmd
}

func parseTaskID(s string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id: %q", s)
	}
	return id, nil
}
