package reconcile

import (
	"time"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
)

// Phase is where an attempt stands. Moves go Idle → Optimistic → Settling and end
// in Committed or RolledBack (or Superseded under strict ordering).
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseOptimistic Phase = "optimistic"
	PhaseSettling   Phase = "settling"
	PhaseCommitted  Phase = "committed"
	PhaseRolledBack Phase = "rolled_back"
	PhaseSuperseded Phase = "superseded"
	// PhaseRejected ends an attempt refused locally, before any remote call.
	PhaseRejected Phase = "rejected"
	// PhaseFailed ends a non-move operation whose remote call failed.
	PhaseFailed Phase = "failed"
)

func (p Phase) Terminal() bool {
	switch p {
	case PhaseCommitted, PhaseRolledBack, PhaseSuperseded, PhaseRejected, PhaseFailed:
		return true
	default:
		return false
	}
}

const (
	KindMove     = "move"
	KindStatus   = "status"
	KindLock     = "lock"
	KindGenerate = "generate"
	KindReplan   = "replan"
	KindAdd      = "add"
	KindRefresh  = "refresh"
)

// Attempt is the journal record of one operation.
type Attempt struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Seq  uint64 `json:"seq,omitempty"`

	TaskID      int    `json:"task_id,omitempty"`
	FromBlockID string `json:"from_block_id,omitempty"`
	ToBlockID   string `json:"to_block_id,omitempty"`
	ToIndex     int    `json:"to_index,omitempty"`
	// Detail carries the operation argument that has no column of its own
	// ("doing", "locked", a new task title).
	Detail string `json:"detail,omitempty"`

	Phase      Phase     `json:"phase"`
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (a Attempt) Duration() time.Duration {
	if a.FinishedAt.IsZero() {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// MoveIntent is a request to move TaskID from one block to position ToIndex of
// another (or the same) block.
type MoveIntent struct {
	TaskID      int
	FromBlockID string
	ToBlockID   string
	ToIndex     int
}

// Outcome is how a settled operation ended. Plan is what the operation published
// last, if anything.
type Outcome struct {
	Phase Phase
	Plan  *model.TodayPlan
	Err   error
}
