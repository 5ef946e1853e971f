package reconcile

import (
	"context"
	"fmt"
	"strconv"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/replica"
	"github.com/flowbit-labs/flowbit-pulse/internal/statusutil"
)

// SetStatus changes a task's lifecycle status. Locks do not apply. The day signal
// and the patch are both best-effort; the plan is refetched either way since the
// planner may reshuffle in response.
func (c *Controller) SetStatus(ctx context.Context, taskID int, status model.TaskStatus) error {
	att := c.newAttempt(KindStatus)
	att.TaskID, att.Detail = taskID, string(status)
	if !status.Valid() {
		err := fmt.Errorf("%w: %s", statusutil.ErrInvalidStatus, status)
		c.finish(ctx, att, PhaseRejected, err)
		return err
	}

	c.notify(NoticeInfo, statusutil.Notice(status))

	rctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if kind, ok := statusutil.EventKind(status); ok {
		if err := c.auth.PostEvent(rctx, kind, taskID); err != nil {
			c.log.Debug("post event failed", "kind", kind, "task", taskID, "err", err)
		}
	}
	_, patchErr := c.auth.PatchTaskStatus(rctx, taskID, status)
	if patchErr != nil {
		c.log.Warn("patch task status failed", "task", taskID, "status", status, "err", patchErr)
	}

	_, _, err := c.fetch(ctx)
	if err != nil {
		c.notify(NoticeError, "Refresh failed")
	}
	if patchErr != nil {
		err = patchErr
	}
	if err != nil {
		c.finish(ctx, att, PhaseFailed, err)
		return err
	}
	c.finish(ctx, att, PhaseCommitted, nil)
	return nil
}

// SetLock locks or unlocks a block on the planner and publishes its answer.
func (c *Controller) SetLock(ctx context.Context, blockID string, locked bool) (*model.TodayPlan, error) {
	att := c.newAttempt(KindLock)
	att.ToBlockID, att.Detail = blockID, strconv.FormatBool(locked)

	rctx, cancel := c.withTimeout(ctx)
	defer cancel()
	p, err := c.auth.SetBlockLock(rctx, blockID, locked)
	if err != nil {
		c.notify(NoticeError, "Lock failed")
		c.finish(ctx, att, PhaseFailed, err)
		return nil, err
	}
	c.store.Publish(p, replica.SourceAuthoritative)
	if locked {
		c.notify(NoticeSuccess, "Locked 🔒")
	} else {
		c.notify(NoticeSuccess, "Unlocked 🔓")
	}
	c.finish(ctx, att, PhaseCommitted, nil)
	return p, nil
}

// ToggleLock flips the lock of blockID as seen in the current plan.
func (c *Controller) ToggleLock(ctx context.Context, blockID string) (*model.TodayPlan, error) {
	return c.SetLock(ctx, blockID, !c.store.Current().IsLocked(blockID))
}

func (c *Controller) Generate(ctx context.Context) (*model.TodayPlan, error) {
	return c.whole(ctx, KindGenerate, c.auth.GeneratePlan, "Plan generated ✨", "Generate failed")
}

func (c *Controller) Replan(ctx context.Context) (*model.TodayPlan, error) {
	return c.whole(ctx, KindReplan, c.auth.ReplanPlan, "Replanned ⚡", "Replan failed")
}

func (c *Controller) whole(ctx context.Context, kind string, call func(context.Context) (*model.TodayPlan, error), ok, failed string) (*model.TodayPlan, error) {
	att := c.newAttempt(kind)
	rctx, cancel := c.withTimeout(ctx)
	defer cancel()
	p, err := call(rctx)
	if err != nil {
		c.notify(NoticeError, failed)
		c.finish(ctx, att, PhaseFailed, err)
		return nil, err
	}
	c.store.Publish(p, replica.SourceAuthoritative)
	c.notify(NoticeSuccess, ok)
	c.finish(ctx, att, PhaseCommitted, nil)
	return p, nil
}

// AddTask creates a task on the planner and refreshes the plan. The new task only
// shows up in blocks once the planner places it.
func (c *Controller) AddTask(ctx context.Context, t model.NewTask) (*model.Task, error) {
	att := c.newAttempt(KindAdd)
	att.Detail = t.Title

	rctx, cancel := c.withTimeout(ctx)
	created, err := c.auth.CreateTask(rctx, t)
	cancel()
	if err != nil {
		c.notify(NoticeError, "Add failed")
		c.finish(ctx, att, PhaseFailed, err)
		return nil, err
	}
	att.TaskID = created.ID
	c.notify(NoticeSuccess, "Task added ＋")
	if _, _, err := c.fetch(ctx); err != nil {
		c.notify(NoticeError, "Refresh failed")
		c.log.Warn("refresh after add", "err", err)
	}
	c.finish(ctx, att, PhaseCommitted, nil)
	return created, nil
}
