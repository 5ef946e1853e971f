package statusutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
)

var ErrInvalidStatus = errors.New("invalid status")

// NormalizeStatus accepts the canonical statuses in any case plus a few verb aliases
// used on the command line ("start", "block").
func NormalizeStatus(s string) (model.TaskStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo", "reset":
		return model.StatusTodo, nil
	case "doing", "start", "started":
		return model.StatusDoing, nil
	case "done", "complete", "completed":
		return model.StatusDone, nil
	case "blocked", "block":
		return model.StatusBlocked, nil
	case "":
		return "", fmt.Errorf("%w: empty", ErrInvalidStatus)
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidStatus, strings.TrimSpace(s))
	}
}

// EventKind maps a status transition to the signal the planner replans on.
// todo has no signal.
func EventKind(status model.TaskStatus) (string, bool) {
	switch status {
	case model.StatusDoing:
		return "started", true
	case model.StatusDone:
		return "done", true
	case model.StatusBlocked:
		return "blocked", true
	default:
		return "", false
	}
}

func IsEndState(status model.TaskStatus) bool {
	return status == model.StatusDone
}

// Notice is the short confirmation shown when a status change is issued.
func Notice(status model.TaskStatus) string {
	switch status {
	case model.StatusDoing:
		return "Started ▶"
	case model.StatusDone:
		return "Done ✓"
	case model.StatusBlocked:
		return "Blocked ⛔"
	default:
		return "Reset"
	}
}

// Glyph is the compact marker used in listings.
func Glyph(status model.TaskStatus) string {
	switch status {
	case model.StatusDoing:
		return "▶"
	case model.StatusDone:
		return "✓"
	case model.StatusBlocked:
		return "⛔"
	default:
		return "·"
	}
}
