package model

import (
	"fmt"
	"sort"
	"strings"
)

type TaskStatus string

const (
	StatusTodo    TaskStatus = "todo"
	StatusDoing   TaskStatus = "doing"
	StatusDone    TaskStatus = "done"
	StatusBlocked TaskStatus = "blocked"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone, StatusBlocked:
		return true
	default:
		return false
	}
}

type Task struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	Priority    int        `json:"priority"`
	EstimateMin int        `json:"estimate_min"`
	Status      TaskStatus `json:"status"`
	DueAt       *string    `json:"due_at,omitempty"`
}

// TimeBlock places tasks into a slice of the day. Start/End are opaque labels
// ("09:00") and are only compared for display.
type TimeBlock struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
	Tasks []Task `json:"tasks"`
}

// DisplayName is the label, or the id when the authority sent no label.
func (b TimeBlock) DisplayName() string {
	if l := strings.TrimSpace(b.Label); l != "" {
		return l
	}
	return b.ID
}

type NowRecommendation struct {
	Task   *Task   `json:"task"`
	Reason *string `json:"reason,omitempty"`
}

// TodayPlan is the replica: a full snapshot of the day as last seen (or
// optimistically predicted). Values are treated as immutable once published.
type TodayPlan struct {
	Date           string            `json:"date"`
	Blocks         []TimeBlock       `json:"blocks"`
	Now            NowRecommendation `json:"now"`
	BufferMin      *int              `json:"buffer_min,omitempty"`
	LockedBlockIDs []string          `json:"locked_block_ids,omitempty"`
	Changes        []string          `json:"changes,omitempty"`
	Explanation    *string           `json:"explanation,omitempty"`
}

// NewTask is the payload for creating a task on the authority.
type NewTask struct {
	Title       string `json:"title"`
	Notes       string `json:"notes,omitempty"`
	Priority    int    `json:"priority"`
	EstimateMin int    `json:"estimate_min"`
}

// Clone returns a deep copy. A nil plan clones to nil.
func (p *TodayPlan) Clone() *TodayPlan {
	if p == nil {
		return nil
	}
	out := &TodayPlan{
		Date:           p.Date,
		Now:            NowRecommendation{Task: p.Now.Task.clonePtr(), Reason: cloneStr(p.Now.Reason)},
		BufferMin:      cloneInt(p.BufferMin),
		LockedBlockIDs: cloneStrings(p.LockedBlockIDs),
		Changes:        cloneStrings(p.Changes),
		Explanation:    cloneStr(p.Explanation),
	}
	if p.Blocks != nil {
		out.Blocks = make([]TimeBlock, len(p.Blocks))
		for i, b := range p.Blocks {
			out.Blocks[i] = b.clone()
		}
	}
	return out
}

func (b TimeBlock) clone() TimeBlock {
	out := b
	if b.Tasks != nil {
		out.Tasks = make([]Task, len(b.Tasks))
		for i, t := range b.Tasks {
			out.Tasks[i] = t.clone()
		}
	}
	return out
}

func (t Task) clone() Task {
	out := t
	out.DueAt = cloneStr(t.DueAt)
	return out
}

func (t *Task) clonePtr() *Task {
	if t == nil {
		return nil
	}
	c := t.clone()
	return &c
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

func cloneStrings(xs []string) []string {
	if xs == nil {
		return nil
	}
	return append([]string(nil), xs...)
}

func (p *TodayPlan) BlockIndex(id string) int {
	if p == nil {
		return -1
	}
	for i := range p.Blocks {
		if p.Blocks[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *TodayPlan) Block(id string) (*TimeBlock, bool) {
	i := p.BlockIndex(id)
	if i < 0 {
		return nil, false
	}
	return &p.Blocks[i], true
}

// FindTask returns the block holding taskID and the task's index within it.
func (p *TodayPlan) FindTask(taskID int) (blockID string, index int, ok bool) {
	if p == nil {
		return "", -1, false
	}
	for _, b := range p.Blocks {
		for i, t := range b.Tasks {
			if t.ID == taskID {
				return b.ID, i, true
			}
		}
	}
	return "", -1, false
}

func (p *TodayPlan) Task(taskID int) (*Task, bool) {
	if p == nil {
		return nil, false
	}
	for bi := range p.Blocks {
		for ti := range p.Blocks[bi].Tasks {
			if p.Blocks[bi].Tasks[ti].ID == taskID {
				return &p.Blocks[bi].Tasks[ti], true
			}
		}
	}
	return nil, false
}

func (p *TodayPlan) IsLocked(blockID string) bool {
	if p == nil {
		return false
	}
	for _, id := range p.LockedBlockIDs {
		if id == blockID {
			return true
		}
	}
	return false
}

// TaskIDs returns every placed task id (sorted, duplicates kept).
func (p *TodayPlan) TaskIDs() []int {
	if p == nil {
		return nil
	}
	out := []int{}
	for _, b := range p.Blocks {
		for _, t := range b.Tasks {
			out = append(out, t.ID)
		}
	}
	sort.Ints(out)
	return out
}

type InvariantError struct {
	Problems []string
}

func (e *InvariantError) Error() string {
	return "invalid plan: " + strings.Join(e.Problems, "; ")
}

// Validate checks the replica invariants: a task lives in at most one block and
// every locked id names a block in the plan.
func (p *TodayPlan) Validate() error {
	if p == nil {
		return nil
	}
	var problems []string

	seenBlock := map[string]bool{}
	for _, b := range p.Blocks {
		if seenBlock[b.ID] {
			problems = append(problems, fmt.Sprintf("duplicate block %q", b.ID))
		}
		seenBlock[b.ID] = true
	}

	owner := map[int]string{}
	for _, b := range p.Blocks {
		for _, t := range b.Tasks {
			if prev, ok := owner[t.ID]; ok {
				problems = append(problems, fmt.Sprintf("task %d placed in both %q and %q", t.ID, prev, b.ID))
				continue
			}
			owner[t.ID] = b.ID
		}
	}

	for _, id := range p.LockedBlockIDs {
		if !seenBlock[id] {
			problems = append(problems, fmt.Sprintf("locked block %q not in plan", id))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &InvariantError{Problems: problems}
}
