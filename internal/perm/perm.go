package perm

import (
	"fmt"
	"strings"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
)

// LockedError reports the block that vetoed a placement change.
type LockedError struct {
	BlockID string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("block is locked: %s", e.BlockID)
}

// CanMove enforces the block lock policy for moving a task.
//
// Rules:
//   - A locked block is frozen as a container: nothing leaves it and nothing enters it.
//   - Reordering inside a locked block is a placement change too, so it is denied.
//   - Locks never affect task lifecycle (status) changes; callers don't consult this for those.
func CanMove(plan *model.TodayPlan, fromBlockID, toBlockID string) bool {
	return CheckMove(plan, fromBlockID, toBlockID) == nil
}

// CheckMove is CanMove with the reason attached. The source block is reported first.
func CheckMove(plan *model.TodayPlan, fromBlockID, toBlockID string) error {
	if plan == nil {
		return &LockedError{BlockID: strings.TrimSpace(fromBlockID)}
	}
	if plan.IsLocked(fromBlockID) {
		return &LockedError{BlockID: fromBlockID}
	}
	if plan.IsLocked(toBlockID) {
		return &LockedError{BlockID: toBlockID}
	}
	return nil
}
