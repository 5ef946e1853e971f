package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/publish"
	"github.com/flowbit-labs/flowbit-pulse/internal/replica"
	"github.com/flowbit-labs/flowbit-pulse/internal/statusutil"
)

const footerKeys = "j/k: select  J/K: reorder  [ ]: prev/next block  l: lock  s/d/b/t: status  a: add  g: generate  R: replan  r: refresh  u: updates  q: quit"

func (m appModel) View() string {
	w := m.width
	if w < 20 {
		w = 20
	}

	parts := []string{m.viewHeader(w)}
	if m.plan == nil {
		parts = append(parts, styleMuted.Render("No plan yet. Press g to generate one, r to retry."))
	} else {
		if now := m.viewNow(w); now != "" {
			parts = append(parts, now)
		}
		parts = append(parts, m.viewBlocks(w))
		if !m.hideUpdates {
			parts = append(parts, m.viewUpdates(w))
		}
	}
	if m.adding {
		parts = append(parts, m.input.View())
	}
	parts = append(parts, m.viewMinibuffer(w))
	parts = append(parts, styleMuted.Render(truncate(footerKeys, w)))
	return strings.Join(parts, "\n\n")
}

func (m appModel) viewHeader(w int) string {
	title := "Pulse"
	if m.plan != nil && m.plan.Date != "" {
		title += " · " + m.plan.Date
	}
	var status string
	switch {
	case m.stale:
		status = styleMuted.Render("offline (cached)")
	case m.source == replica.SourceOptimistic:
		status = stylePending.Render("syncing…")
	}
	if m.busy > 0 {
		status = strings.TrimSpace(m.spinner.View() + " " + status)
	}
	left := styleHeader.Render(title)
	gap := w - lipgloss.Width(left) - lipgloss.Width(status)
	if gap < 1 {
		gap = 1
	}
	return truncate(left+strings.Repeat(" ", gap)+status, w)
}

func (m appModel) viewNow(w int) string {
	t := m.plan.Now.Task
	if t == nil {
		return ""
	}
	s := styleBlock.Render("Now") + "  " + fmt.Sprintf("#%d %s", t.ID, strings.TrimSpace(t.Title))
	if r := m.plan.Now.Reason; r != nil && strings.TrimSpace(*r) != "" {
		s += "\n" + styleMuted.Render(truncate("  "+strings.TrimSpace(*r), w))
	}
	return s
}

func (m appModel) viewBlocks(w int) string {
	var lines []string
	for i, r := range m.rows {
		var ln string
		if r.taskID == 0 {
			ln = m.blockLine(r.blockID)
		} else {
			ln = m.taskLine(r.blockID, r.taskID)
		}
		if i == m.cursor {
			ln = styleSelected.Render(padRight("› "+ln, w))
		} else {
			ln = truncate("  "+ln, w)
		}
		lines = append(lines, ln)
	}
	if m.plan.BufferMin != nil {
		lines = append(lines, styleMuted.Render(fmt.Sprintf("  Buffer: %d min", *m.plan.BufferMin)))
	}
	return strings.Join(lines, "\n")
}

func (m appModel) blockLine(blockID string) string {
	b, ok := m.plan.Block(blockID)
	if !ok {
		return blockID
	}
	s := b.DisplayName()
	if b.Start != "" || b.End != "" {
		s += fmt.Sprintf(" %s–%s", b.Start, b.End)
	}
	if m.plan.IsLocked(b.ID) {
		return styleLocked.Render(s + " 🔒")
	}
	if len(b.Tasks) == 0 {
		return styleBlock.Render(s) + styleMuted.Render("  (empty)")
	}
	return styleBlock.Render(s)
}

func (m appModel) taskLine(blockID string, taskID int) string {
	t, ok := m.plan.Task(taskID)
	if !ok {
		return fmt.Sprintf("#%d", taskID)
	}
	s := fmt.Sprintf("  %s #%d %s", statusutil.Glyph(t.Status), t.ID, strings.TrimSpace(t.Title))
	meta := taskMeta(*t)
	if meta != "" {
		s += "  " + styleMuted.Render(meta)
	}
	return s
}

func taskMeta(t model.Task) string {
	var xs []string
	if t.Priority > 0 {
		xs = append(xs, fmt.Sprintf("P%d", t.Priority))
	}
	if t.EstimateMin > 0 {
		xs = append(xs, fmt.Sprintf("%dm", t.EstimateMin))
	}
	if t.DueAt != nil && strings.TrimSpace(*t.DueAt) != "" {
		xs = append(xs, "due "+strings.TrimSpace(*t.DueAt))
	}
	return strings.Join(xs, " · ")
}

func (m appModel) viewUpdates(w int) string {
	body := renderMarkdown(publish.RenderUpdatesMarkdown(m.plan), w-2)
	return styleBlock.Render("Updates") + "\n" + body
}

func (m appModel) viewMinibuffer(w int) string {
	if m.minibufferText == "" {
		return ""
	}
	st, ok := styleNotice[string(m.minibufferKind)]
	if !ok {
		st = styleMuted
	}
	return st.Render(truncate(m.minibufferText, w))
}
