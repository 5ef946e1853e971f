// Package replica holds the process-wide "current plan" slot.
//
// The slot is replaced as a whole on every publish; readers never observe a
// partially updated plan. Published plans must not be modified afterwards.
package replica

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
)

// Source records why a plan was published.
type Source string

const (
	SourceOptimistic    Source = "optimistic"
	SourceAuthoritative Source = "authoritative"
	SourceFetched       Source = "fetched"
	SourceRestored      Source = "restored"
)

// Authoritative reports whether the plan came from the planner (directly or restored
// from a value that did).
func (s Source) Authoritative() bool {
	return s != SourceOptimistic
}

type Snapshot struct {
	Plan    *model.TodayPlan
	Source  Source
	Version uint64
	At      time.Time
}

// Subscriber receives every publish, in publish order. It runs on the publishing
// goroutine and must not publish itself.
type Subscriber func(Snapshot)

type Store struct {
	cur atomic.Pointer[Snapshot]

	// mu serializes publishers so subscribers see versions in order.
	mu sync.Mutex

	subMu  sync.RWMutex
	subs   map[int]Subscriber
	nextID int

	now func() time.Time
}

func NewStore() *Store {
	return &Store{subs: map[int]Subscriber{}, now: time.Now}
}

// Publish replaces the current plan. A nil plan is ignored: the slot only ever
// moves from absent to present.
func (s *Store) Publish(plan *model.TodayPlan, src Source) Snapshot {
	if plan == nil {
		return s.Snapshot()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishLocked(plan, src)
}

// CompareAndPublish publishes plan only while expected is still the current plan.
func (s *Store) CompareAndPublish(expected, plan *model.TodayPlan, src Source) (Snapshot, bool) {
	if plan == nil {
		return s.Snapshot(), false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Current() != expected {
		return s.Snapshot(), false
	}
	return s.publishLocked(plan, src), true
}

func (s *Store) publishLocked(plan *model.TodayPlan, src Source) Snapshot {
	var version uint64 = 1
	if prev := s.cur.Load(); prev != nil {
		version = prev.Version + 1
	}
	snap := &Snapshot{Plan: plan, Source: src, Version: version, At: s.now()}
	s.cur.Store(snap)

	s.subMu.RLock()
	subs := make([]Subscriber, 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		deliver(fn, *snap)
	}
	return *snap
}

func deliver(fn Subscriber, snap Snapshot) {
	defer func() {
		// A broken subscriber must not take the store down with it.
		_ = recover()
	}()
	fn(snap)
}

// Current returns the latest published plan, or nil before the first publish.
func (s *Store) Current() *model.TodayPlan {
	if snap := s.cur.Load(); snap != nil {
		return snap.Plan
	}
	return nil
}

// Snapshot returns the latest publish with its metadata. The zero Snapshot means
// nothing has been published yet.
func (s *Store) Snapshot() Snapshot {
	if snap := s.cur.Load(); snap != nil {
		return *snap
	}
	return Snapshot{}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}
