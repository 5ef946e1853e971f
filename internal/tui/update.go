package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/reconcile"
)

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case planChangedMsg:
		m.syncPlan()
		return m, waitPlan(m.planCh)

	case noticeMsg:
		m.showMinibuffer(msg.n.Kind, msg.n.Text)
		return m, waitNotice(m.notices)

	case settledMsg:
		m.done()
		m.syncPlan()
		if msg.out.Err != nil {
			m.log.Info("move settled with error", "phase", msg.out.Phase, "err", msg.out.Err)
		}
		return m, nil

	case opDoneMsg:
		m.done()
		m.syncPlan()
		if msg.err != nil {
			m.log.Info("operation failed", "op", msg.op, "err", msg.err)
		}
		return m, nil

	case externalChangeMsg:
		m.busy++
		return m, tea.Batch(m.refreshCmd(), m.watch.wait())

	case clearTickMsg:
		if m.minibufferText != "" && time.Since(m.minibufferSetAt) > minibufferAutoClearAfter {
			m.minibufferText = ""
		}
		return m, clearTick()

	case tea.KeyMsg:
		if m.adding {
			return m.updateAdding(msg)
		}
		return m.updateKey(msg)
	}
	return m, nil
}

func (m *appModel) done() {
	if m.busy > 0 {
		m.busy--
	}
}

func (m appModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "j", "down":
		m.moveCursor(1)
	case "k", "up":
		m.moveCursor(-1)
	case "J", "shift+down":
		return m.reorder(1)
	case "K", "shift+up":
		return m.reorder(-1)
	case "]":
		return m.shiftBlock(1)
	case "[":
		return m.shiftBlock(-1)
	case "l":
		r, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.busy++
		return m, runOp("lock", func(ctx context.Context) error {
			_, err := m.ctl.ToggleLock(ctx, r.blockID)
			return err
		})
	case "s":
		return m.setStatus(model.StatusDoing)
	case "d":
		return m.setStatus(model.StatusDone)
	case "b":
		return m.setStatus(model.StatusBlocked)
	case "t":
		return m.setStatus(model.StatusTodo)
	case "g":
		m.busy++
		return m, runOp("generate", func(ctx context.Context) error {
			_, err := m.ctl.Generate(ctx)
			return err
		})
	case "R":
		m.busy++
		return m, runOp("replan", func(ctx context.Context) error {
			_, err := m.ctl.Replan(ctx)
			return err
		})
	case "r":
		m.busy++
		return m, m.refreshCmd()
	case "u":
		m.hideUpdates = !m.hideUpdates
	case "a":
		m.adding = true
		m.input.SetValue("")
		return m, m.input.Focus()
	}
	return m, nil
}

func (m appModel) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.adding = false
		m.input.Blur()
		return m, nil
	case "enter":
		title := strings.TrimSpace(m.input.Value())
		m.adding = false
		m.input.Blur()
		if title == "" {
			return m, nil
		}
		m.busy++
		return m, runOp("add", func(ctx context.Context) error {
			_, err := m.ctl.AddTask(ctx, model.NewTask{Title: title, Priority: 2, EstimateMin: 30})
			return err
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// reorder moves the selected task one slot within its block.
func (m appModel) reorder(delta int) (tea.Model, tea.Cmd) {
	r, ok := m.selected()
	if !ok || r.taskID == 0 || m.plan == nil {
		return m, nil
	}
	b, pos, ok := m.plan.FindTask(r.taskID)
	if !ok {
		return m, nil
	}
	blk, _ := m.plan.Block(b)
	to := pos + delta
	if to < 0 || to >= len(blk.Tasks) {
		return m, nil
	}
	return m.beginMove(reconcile.MoveIntent{TaskID: r.taskID, FromBlockID: b, ToBlockID: b, ToIndex: to})
}

// shiftBlock moves the selected task to the top of the next/previous block.
func (m appModel) shiftBlock(delta int) (tea.Model, tea.Cmd) {
	r, ok := m.selected()
	if !ok || r.taskID == 0 || m.plan == nil {
		return m, nil
	}
	i := m.plan.BlockIndex(r.blockID) + delta
	if i < 0 || i >= len(m.plan.Blocks) {
		return m, nil
	}
	p, err := m.ctl.BeginMoveToBlock(r.taskID, m.plan.Blocks[i].ID)
	return m.settleLater(p, err)
}

func (m appModel) beginMove(in reconcile.MoveIntent) (tea.Model, tea.Cmd) {
	p, err := m.ctl.BeginMove(in)
	return m.settleLater(p, err)
}

// settleLater shows the optimistic plan right away and confirms it in the
// background. Rejected moves were already reported through the notifier.
func (m appModel) settleLater(p *reconcile.Pending, err error) (tea.Model, tea.Cmd) {
	if err != nil || p == nil {
		return m, nil
	}
	m.syncPlan()
	m.busy++
	return m, func() tea.Msg {
		return settledMsg{out: p.Settle(context.Background())}
	}
}

func (m appModel) setStatus(status model.TaskStatus) (tea.Model, tea.Cmd) {
	r, ok := m.selected()
	if !ok || r.taskID == 0 {
		return m, nil
	}
	m.busy++
	return m, runOp("status", func(ctx context.Context) error {
		return m.ctl.SetStatus(ctx, r.taskID, status)
	})
}
