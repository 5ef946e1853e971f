package reconcile

import (
	"context"
	"errors"
	"strconv"

	"github.com/flowbit-labs/flowbit-pulse/internal/authority"
	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/mutate"
	"github.com/flowbit-labs/flowbit-pulse/internal/perm"
	"github.com/flowbit-labs/flowbit-pulse/internal/replica"
)

// Pending is a move that has been applied locally and not yet confirmed.
type Pending struct {
	c          *Controller
	intent     MoveIntent
	base       *model.TodayPlan
	optimistic *model.TodayPlan
	seq        uint64
	att        Attempt
	settled    bool
}

func (p *Pending) Intent() MoveIntent { return p.intent }

func (p *Pending) Seq() uint64 { return p.seq }

// Optimistic is the locally predicted plan that was published at begin.
func (p *Pending) Optimistic() *model.TodayPlan { return p.optimistic }

// BeginMove validates and applies a move locally and publishes the result. It never
// talks to the planner. A nil Pending with a nil error means the move referred to
// a task that is no longer where the caller thought; nothing happened.
func (c *Controller) BeginMove(in MoveIntent) (*Pending, error) {
	att := c.newAttempt(KindMove)
	att.TaskID, att.FromBlockID, att.ToBlockID, att.ToIndex = in.TaskID, in.FromBlockID, in.ToBlockID, in.ToIndex
	ctx := context.Background()

	base := c.store.Current()
	if base == nil {
		c.notify(NoticeError, "No plan loaded")
		c.finish(ctx, att, PhaseRejected, mutate.ErrNoPlan)
		return nil, mutate.ErrNoPlan
	}
	if err := perm.CheckMove(base, in.FromBlockID, in.ToBlockID); err != nil {
		c.notify(NoticeError, "Block is locked 🔒")
		c.finish(ctx, att, PhaseRejected, err)
		return nil, err
	}

	res := mutate.MoveTask(base, in.TaskID, in.FromBlockID, in.ToBlockID, in.ToIndex)
	if !res.Changed {
		c.notify(NoticeError, "Task not found in plan")
		c.finish(ctx, att, PhaseRejected, staleMove(in))
		return nil, nil
	}

	c.store.Publish(res.Plan, replica.SourceOptimistic)
	att.Seq = c.seq.Add(1)
	att.Phase = PhaseOptimistic
	c.log.Debug("move optimistic", "id", att.ID, "seq", att.Seq, "task", in.TaskID, "from", in.FromBlockID, "to", in.ToBlockID, "index", in.ToIndex)
	c.notify(NoticeSuccess, "Moved ✨")

	return &Pending{c: c, intent: in, base: base, optimistic: res.Plan, seq: att.Seq, att: att}, nil
}

// BeginMoveToBlock moves a task, wherever it currently is, to the top of toBlockID.
func (c *Controller) BeginMoveToBlock(taskID int, toBlockID string) (*Pending, error) {
	from, _, ok := c.store.Current().FindTask(taskID)
	if !ok {
		if c.store.Current() == nil {
			c.notify(NoticeError, "No plan loaded")
			return nil, mutate.ErrNoPlan
		}
		c.notify(NoticeError, "Task not found in plan")
		return nil, nil
	}
	return c.BeginMove(MoveIntent{TaskID: taskID, FromBlockID: from, ToBlockID: toBlockID, ToIndex: 0})
}

// Settle sends the move to the planner and publishes the planner's answer. On
// failure the optimistic plan is replaced by a fresh fetch, or by the plan from
// before the move when the fetch fails too. Settle runs at most once; later calls
// return an outcome with a nil plan.
func (p *Pending) Settle(ctx context.Context) Outcome {
	c := p.c
	if p.settled {
		return Outcome{Phase: p.att.Phase}
	}
	p.settled = true

	p.att.Phase = PhaseSettling
	c.log.Debug("move settling", "id", p.att.ID, "seq", p.seq)

	rctx, cancel := c.withTimeout(ctx)
	plan, err := c.auth.MoveTask(rctx, authority.MoveRequest{
		TaskID:      p.intent.TaskID,
		FromBlockID: p.intent.FromBlockID,
		ToBlockID:   p.intent.ToBlockID,
		ToIndex:     p.intent.ToIndex,
	})
	cancel()

	superseded := c.ordering == OrderingStrict && p.seq < c.seq.Load()

	if err == nil && plan != nil {
		if superseded {
			p.att = c.finish(ctx, p.att, PhaseSuperseded, nil)
			return Outcome{Phase: PhaseSuperseded}
		}
		c.store.Publish(plan, replica.SourceAuthoritative)
		p.att = c.finish(ctx, p.att, PhaseCommitted, nil)
		return Outcome{Phase: PhaseCommitted, Plan: plan}
	}
	if err == nil {
		err = errors.New("move task: empty response")
	}

	c.log.Info("move rejected by planner", "id", p.att.ID, "task", p.intent.TaskID, "err", err)
	c.notify(NoticeError, "Move failed (reverted)")
	if superseded {
		p.att = c.finish(ctx, p.att, PhaseSuperseded, err)
		return Outcome{Phase: PhaseSuperseded, Err: err}
	}

	fetched, published, ferr := c.fetch(ctx)
	if ferr == nil && fetched != nil {
		p.att = c.finish(ctx, p.att, PhaseRolledBack, err)
		out := Outcome{Phase: PhaseRolledBack, Err: err}
		if published {
			out.Plan = fetched
		}
		return out
	}

	// Nothing authoritative to show. Put back what the user had, unless something
	// newer has been published since.
	if ferr != nil {
		c.log.Warn("refresh after failed move", "id", p.att.ID, "err", ferr)
		c.notify(NoticeError, "Refresh failed")
	}
	var restored *model.TodayPlan
	if _, ok := c.store.CompareAndPublish(p.optimistic, p.base, replica.SourceRestored); ok {
		restored = p.base
	}
	p.att = c.finish(ctx, p.att, PhaseRolledBack, errors.Join(err, ferr))
	return Outcome{Phase: PhaseRolledBack, Plan: restored, Err: err}
}

// Move runs a whole attempt: begin, then settle.
func (c *Controller) Move(ctx context.Context, in MoveIntent) (Outcome, error) {
	p, err := c.BeginMove(in)
	return c.settle(ctx, p, err, in.TaskID)
}

// MoveToBlock moves taskID to the top of toBlockID and settles the attempt.
func (c *Controller) MoveToBlock(ctx context.Context, taskID int, toBlockID string) (Outcome, error) {
	p, err := c.BeginMoveToBlock(taskID, toBlockID)
	return c.settle(ctx, p, err, taskID)
}

func (c *Controller) settle(ctx context.Context, p *Pending, err error, taskID int) (Outcome, error) {
	if err != nil {
		return Outcome{Phase: PhaseRejected, Err: err}, err
	}
	if p == nil {
		err := &mutate.NotFoundError{Kind: "task", ID: strconv.Itoa(taskID)}
		return Outcome{Phase: PhaseRejected, Err: err}, err
	}
	out := p.Settle(ctx)
	return out, out.Err
}

func staleMove(in MoveIntent) error {
	return &mutate.NotFoundError{Kind: "task", ID: strconv.Itoa(in.TaskID) + " in block " + in.FromBlockID}
}
