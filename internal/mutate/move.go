package mutate

import (
	"fmt"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
)

type MoveResult struct {
	Plan    *model.TodayPlan
	Changed bool
}

// Clamp limits i to [0, n].
func Clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// MoveTask returns a new plan with taskID taken out of fromBlockID and inserted at
// toIndex (clamped) in toBlockID. The input plan is never modified.
//
// A task that is no longer in fromBlockID, or a block that is no longer in the plan,
// makes the move a no-op: the input plan is returned as-is with Changed=false.
func MoveTask(plan *model.TodayPlan, taskID int, fromBlockID, toBlockID string, toIndex int) MoveResult {
	if plan == nil {
		return MoveResult{}
	}
	fromIdx := plan.BlockIndex(fromBlockID)
	toIdx := plan.BlockIndex(toBlockID)
	if fromIdx < 0 || toIdx < 0 {
		return MoveResult{Plan: plan}
	}
	pos := -1
	for i, t := range plan.Blocks[fromIdx].Tasks {
		if t.ID == taskID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return MoveResult{Plan: plan}
	}

	out := plan.Clone()
	from := &out.Blocks[fromIdx]
	moved := from.Tasks[pos]
	from.Tasks = append(from.Tasks[:pos:pos], from.Tasks[pos+1:]...)

	to := &out.Blocks[toIdx]
	at := Clamp(toIndex, len(to.Tasks))
	to.Tasks = insertTask(to.Tasks, at, moved)

	if fromIdx == toIdx {
		out.Changes = []string{fmt.Sprintf("Reordered %q inside %s.", moved.Title, to.DisplayName())}
	} else {
		out.Changes = []string{fmt.Sprintf("Moved %q → %s.", moved.Title, to.DisplayName())}
	}
	return MoveResult{Plan: out, Changed: true}
}

func insertTask(xs []model.Task, at int, t model.Task) []model.Task {
	out := make([]model.Task, 0, len(xs)+1)
	out = append(out, xs[:at]...)
	out = append(out, t)
	return append(out, xs[at:]...)
}
