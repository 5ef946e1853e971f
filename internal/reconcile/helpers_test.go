package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowbit-labs/flowbit-pulse/internal/authority"
	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/replica"
)

var errBoom = errors.New("boom")

const (
	testTimeout = 2 * time.Second
	tick        = 5 * time.Millisecond
)

func planAB() *model.TodayPlan {
	return &model.TodayPlan{
		Date: "2026-10-19",
		Blocks: []model.TimeBlock{
			{ID: "A", Label: "A", Tasks: []model.Task{
				{ID: 1, Title: "Draft", Priority: 1, EstimateMin: 30, Status: model.StatusTodo},
				{ID: 2, Title: "Two", Priority: 2, EstimateMin: 15, Status: model.StatusTodo},
			}},
			{ID: "B", Label: "B", Tasks: []model.Task{}},
		},
	}
}

type notices struct {
	mu  sync.Mutex
	got []Notice
}

func (n *notices) Notify(x Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, x)
}

func (n *notices) texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.got))
	for _, x := range n.got {
		out = append(out, x.Text)
	}
	return out
}

type journal struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (j *journal) Record(_ context.Context, a Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts = append(j.attempts, a)
	return nil
}

func (j *journal) last() Attempt {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.attempts) == 0 {
		return Attempt{}
	}
	return j.attempts[len(j.attempts)-1]
}

// sources records the Source of every publish.
func sources(s *replica.Store) func() []replica.Source {
	var mu sync.Mutex
	var out []replica.Source
	s.Subscribe(func(snap replica.Snapshot) {
		mu.Lock()
		out = append(out, snap.Source)
		mu.Unlock()
	})
	return func() []replica.Source {
		mu.Lock()
		defer mu.Unlock()
		return append([]replica.Source(nil), out...)
	}
}

type harness struct {
	ctl     *Controller
	store   *replica.Store
	notices *notices
	journal *journal
}

func newHarness(t *testing.T, auth Authority, ordering Ordering) *harness {
	t.Helper()
	h := &harness{store: replica.NewStore(), notices: &notices{}, journal: &journal{}}
	ctl, err := New(Options{
		Authority: auth,
		Store:     h.store,
		Notifier:  h.notices,
		Journal:   h.journal,
		Ordering:  ordering,
	})
	require.NoError(t, err)
	h.ctl = ctl
	return h
}

// scripted is an in-process planner whose answers are chosen per test.
type scripted struct {
	mu      sync.Mutex
	fetch   func(ctx context.Context) (*model.TodayPlan, error)
	move    func(ctx context.Context, req authority.MoveRequest) (*model.TodayPlan, error)
	fetches int
	moves   int
}

func (s *scripted) FetchPlan(ctx context.Context) (*model.TodayPlan, error) {
	s.mu.Lock()
	s.fetches++
	fn := s.fetch
	s.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

func (s *scripted) MoveTask(ctx context.Context, req authority.MoveRequest) (*model.TodayPlan, error) {
	s.mu.Lock()
	s.moves++
	fn := s.move
	s.mu.Unlock()
	if fn == nil {
		return nil, errBoom
	}
	return fn(ctx, req)
}

func (s *scripted) GeneratePlan(context.Context) (*model.TodayPlan, error) { return nil, errBoom }

func (s *scripted) ReplanPlan(context.Context) (*model.TodayPlan, error) { return nil, errBoom }

func (s *scripted) SetBlockLock(context.Context, string, bool) (*model.TodayPlan, error) {
	return nil, errBoom
}

func (s *scripted) PatchTaskStatus(context.Context, int, model.TaskStatus) (json.RawMessage, error) {
	return nil, errBoom
}

func (s *scripted) PostEvent(context.Context, string, int) error { return errBoom }

func (s *scripted) CreateTask(context.Context, model.NewTask) (*model.Task, error) {
	return nil, errBoom
}

func (s *scripted) counts() (fetches, moves int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches, s.moves
}
