// Package reconcile applies schedule edits optimistically and settles them against
// the planner, rolling back to the planner's view when it disagrees.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/flowbit-labs/flowbit-pulse/internal/authority"
	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/replica"
)

// Authority is the remote planner as the controller sees it. *authority.Client
// satisfies it.
type Authority interface {
	FetchPlan(ctx context.Context) (*model.TodayPlan, error)
	GeneratePlan(ctx context.Context) (*model.TodayPlan, error)
	ReplanPlan(ctx context.Context) (*model.TodayPlan, error)
	MoveTask(ctx context.Context, req authority.MoveRequest) (*model.TodayPlan, error)
	SetBlockLock(ctx context.Context, blockID string, locked bool) (*model.TodayPlan, error)
	PatchTaskStatus(ctx context.Context, taskID int, status model.TaskStatus) (json.RawMessage, error)
	PostEvent(ctx context.Context, kind string, taskID int) error
	CreateTask(ctx context.Context, t model.NewTask) (*model.Task, error)
}

type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a short user-facing message ("Moved ✨").
type Notice struct {
	Kind NoticeKind
	Text string
}

type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Journal receives one Attempt per finished operation.
type Journal interface {
	Record(ctx context.Context, a Attempt) error
}

// Ordering decides what happens when responses to overlapping moves arrive out of
// order.
type Ordering string

const (
	// OrderingLastWrite publishes whichever response arrives last.
	OrderingLastWrite Ordering = "last-write"
	// OrderingStrict drops responses from attempts older than the newest one issued.
	OrderingStrict Ordering = "strict"
)

func ParseOrdering(s string) (Ordering, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last-write", "lastwrite", "lww":
		return OrderingLastWrite, nil
	case "strict", "sequence":
		return OrderingStrict, nil
	default:
		return "", fmt.Errorf("unknown ordering %q (want last-write or strict)", s)
	}
}

type Options struct {
	Authority Authority
	Store     *replica.Store
	Notifier  Notifier
	Journal   Journal
	Logger    *slog.Logger
	Ordering  Ordering
	// Timeout bounds each remote round trip started by the controller. Zero leaves it
	// to the caller's context.
	Timeout time.Duration
}

type Controller struct {
	auth     Authority
	store    *replica.Store
	notifier Notifier
	journal  Journal
	log      *slog.Logger
	ordering Ordering
	timeout  time.Duration

	// seq numbers move attempts; the newest issued attempt is seq.Load().
	seq     atomic.Uint64
	refresh singleflight.Group
	now     func() time.Time
}

func New(opt Options) (*Controller, error) {
	if opt.Authority == nil {
		return nil, errors.New("reconcile: authority is required")
	}
	if opt.Store == nil {
		return nil, errors.New("reconcile: store is required")
	}
	c := &Controller{
		auth:     opt.Authority,
		store:    opt.Store,
		notifier: opt.Notifier,
		journal:  opt.Journal,
		log:      opt.Logger,
		ordering: opt.Ordering,
		timeout:  opt.Timeout,
		now:      time.Now,
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.ordering == "" {
		c.ordering = OrderingLastWrite
	}
	return c, nil
}

func (c *Controller) Store() *replica.Store { return c.store }

func (c *Controller) Ordering() Ordering { return c.ordering }

func (c *Controller) notify(kind NoticeKind, text string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(Notice{Kind: kind, Text: text})
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Controller) newAttempt(kind string) Attempt {
	return Attempt{ID: uuid.NewString(), Kind: kind, Phase: PhaseIdle, StartedAt: c.now()}
}

func (c *Controller) finish(ctx context.Context, a Attempt, phase Phase, err error) Attempt {
	a.Phase = phase
	a.FinishedAt = c.now()
	if err != nil {
		a.Err = err.Error()
	}
	c.log.Debug("attempt finished", "id", a.ID, "kind", a.Kind, "phase", phase, "err", a.Err)
	if c.journal != nil {
		// The journal outlives a cancelled request; record with a fresh context.
		if rerr := c.journal.Record(context.WithoutCancel(ctx), a); rerr != nil {
			c.log.Warn("journal record failed", "id", a.ID, "err", rerr)
		}
	}
	return a
}

// Refresh fetches the planner's plan and publishes it. An absent plan publishes
// nothing and is not an error. Concurrent calls share one request.
func (c *Controller) Refresh(ctx context.Context) (*model.TodayPlan, error) {
	att := c.newAttempt(KindRefresh)
	p, _, err := c.fetch(ctx)
	if err != nil {
		c.notify(NoticeError, "Refresh failed")
		c.finish(ctx, att, PhaseFailed, err)
		return nil, err
	}
	c.finish(ctx, att, PhaseCommitted, nil)
	return p, nil
}

type fetchResult struct {
	plan      *model.TodayPlan
	published bool
}

// fetch loads the planner's plan and publishes it. published is false when the plan
// was absent or was dropped because a newer strict-mode move is in flight.
func (c *Controller) fetch(ctx context.Context) (*model.TodayPlan, bool, error) {
	v, err, shared := c.refresh.Do("plan", func() (any, error) {
		startSeq := c.seq.Load()
		ctx, cancel := c.withTimeout(ctx)
		defer cancel()
		p, err := c.auth.FetchPlan(ctx)
		if err != nil || p == nil {
			return fetchResult{plan: p}, err
		}
		if c.ordering == OrderingStrict && c.seq.Load() != startSeq {
			// A move was issued while fetching; its own settle decides what is current.
			c.log.Debug("fetched plan dropped", "reason", "newer move in flight")
			return fetchResult{plan: p}, nil
		}
		c.store.Publish(p, replica.SourceFetched)
		return fetchResult{plan: p, published: true}, nil
	})
	if shared {
		c.log.Debug("refresh coalesced")
	}
	if err != nil {
		return nil, false, fmt.Errorf("refresh: %w", err)
	}
	r, _ := v.(fetchResult)
	return r.plan, r.published, nil
}
