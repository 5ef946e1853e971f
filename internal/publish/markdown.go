package publish

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/statusutil"
)

// RenderPlanMarkdown renders the plan as a standalone markdown page.
func RenderPlanMarkdown(p *model.TodayPlan) string {
	if p == nil {
		return "# Plan\n\n_No plan yet._\n"
	}

	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	if d := strings.TrimSpace(p.Date); d != "" {
		writeLn("# Plan for " + d)
	} else {
		writeLn("# Plan")
	}
	writeLn("")

	if t := p.Now.Task; t != nil {
		writeLn("## Now")
		writeLn("")
		writeLn(fmt.Sprintf("**%s** (#%d)", strings.TrimSpace(t.Title), t.ID))
		if r := p.Now.Reason; r != nil && strings.TrimSpace(*r) != "" {
			writeLn("")
			writeLn("> " + strings.TrimSpace(*r))
		}
		writeLn("")
	}

	for _, b := range p.Blocks {
		writeLn("## " + blockHeading(p, b))
		writeLn("")
		if len(b.Tasks) == 0 {
			writeLn("_No tasks._")
		}
		for _, t := range b.Tasks {
			writeLn(taskLine(t))
		}
		writeLn("")
	}

	if p.BufferMin != nil {
		writeLn(fmt.Sprintf("Buffer: %d min", *p.BufferMin))
		writeLn("")
	}

	if len(p.Changes) > 0 {
		writeLn("## Updates")
		writeLn("")
		for _, c := range p.Changes {
			writeLn("- " + strings.TrimSpace(c))
		}
		writeLn("")
	}

	if e := p.Explanation; e != nil && strings.TrimSpace(*e) != "" {
		writeLn("## Why")
		writeLn("")
		writeLn(strings.TrimSpace(*e))
		writeLn("")
	}

	return strings.TrimRight(buf.String(), "\n") + "\n"
}

// RenderUpdatesMarkdown renders only the changes and explanation (the TUI's updates
// panel).
func RenderUpdatesMarkdown(p *model.TodayPlan) string {
	if p == nil || (len(p.Changes) == 0 && (p.Explanation == nil || strings.TrimSpace(*p.Explanation) == "")) {
		return "_No updates yet._\n"
	}
	var b strings.Builder
	for _, c := range p.Changes {
		b.WriteString("- " + strings.TrimSpace(c) + "\n")
	}
	if e := p.Explanation; e != nil && strings.TrimSpace(*e) != "" {
		if len(p.Changes) > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(*e) + "\n")
	}
	return b.String()
}

func blockHeading(p *model.TodayPlan, b model.TimeBlock) string {
	s := b.DisplayName()
	if b.Start != "" || b.End != "" {
		s += fmt.Sprintf(" (%s–%s)", b.Start, b.End)
	}
	if p.IsLocked(b.ID) {
		s += " 🔒"
	}
	return s
}

func taskLine(t model.Task) string {
	box := "[ ]"
	if statusutil.IsEndState(t.Status) {
		box = "[x]"
	}
	s := fmt.Sprintf("- %s #%d %s", box, t.ID, strings.TrimSpace(t.Title))
	if t.Priority > 0 {
		s += fmt.Sprintf(" · P%d", t.Priority)
	}
	if t.EstimateMin > 0 {
		s += fmt.Sprintf(" · %dm", t.EstimateMin)
	}
	if t.DueAt != nil && strings.TrimSpace(*t.DueAt) != "" {
		s += " · due " + strings.TrimSpace(*t.DueAt)
	}
	if t.Status == model.StatusDoing || t.Status == model.StatusBlocked {
		s += " · " + string(t.Status)
	}
	return s
}
