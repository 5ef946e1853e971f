package tui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/flowbit-labs/flowbit-pulse/internal/logging"
	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/reconcile"
	"github.com/flowbit-labs/flowbit-pulse/internal/replica"
	"github.com/flowbit-labs/flowbit-pulse/internal/store"
)

const minibufferAutoClearAfter = 4 * time.Second

type planChangedMsg struct{}

type noticeMsg struct{ n reconcile.Notice }

type settledMsg struct{ out reconcile.Outcome }

type opDoneMsg struct {
	op  string
	err error
}

type externalChangeMsg struct{}

type clearTickMsg struct{}

// row is one selectable line: a block header (taskID 0) or a task.
type row struct {
	blockID string
	taskID  int
}

type appModel struct {
	ctl     *reconcile.Controller
	state   store.Store
	log     *slog.Logger
	notices <-chan reconcile.Notice
	planCh  chan struct{}
	unsub   func()
	watch   *stampWatcher

	plan   *model.TodayPlan
	source replica.Source
	// stale is set while showing the on-disk cache because nothing live arrived yet.
	stale bool

	rows     []row
	cursor   int
	selTask  int
	selBlock string

	hideUpdates bool
	width       int
	height      int

	spinner spinner.Model
	busy    int

	minibufferText  string
	minibufferKind  reconcile.NoticeKind
	minibufferSetAt time.Time

	adding bool
	input  textinput.Model
}

func newAppModel(opt Options) appModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styleMuted

	in := textinput.New()
	in.Placeholder = "New task title"
	in.Prompt = "＋ "
	in.CharLimit = 200

	m := appModel{
		ctl:     opt.Controller,
		state:   opt.State,
		log:     opt.Log,
		notices: opt.Notices,
		planCh:  make(chan struct{}, 1),
		spinner: sp,
		input:   in,
		width:   80,
		height:  24,
		// Init starts a refresh.
		busy: 1,
	}
	if m.log == nil {
		m.log = logging.Discard()
	}
	if opt.Config != nil {
		m.hideUpdates = opt.Config.HideUpdates
	}

	if st, err := m.state.LoadTUIState(); err == nil {
		m.selTask, m.selBlock = st.SelectedTaskID, st.SelectedBlockID
		m.hideUpdates = m.hideUpdates || st.HideUpdates
	}

	planCh := m.planCh
	m.unsub = m.ctl.Store().Subscribe(func(replica.Snapshot) {
		select {
		case planCh <- struct{}{}:
		default:
		}
	})

	if snap := m.ctl.Store().Snapshot(); snap.Plan != nil {
		m.plan, m.source = snap.Plan, snap.Source
	} else if cached, err := m.state.LatestPlan(context.Background()); err == nil && cached != nil {
		m.plan, m.source, m.stale = cached.Plan, cached.Source, true
	}
	m.rebuildRows()

	if strings.TrimSpace(m.state.Dir) != "" {
		w, err := watchStamp(m.state, m.log)
		if err != nil {
			m.log.Warn("watch state dir", "dir", m.state.Dir, "err", err)
		}
		m.watch = w
	}
	return m
}

func (m appModel) close() {
	if m.unsub != nil {
		m.unsub()
	}
	_ = m.watch.Close()
}

func (m appModel) tuiState() *store.TUIState {
	return &store.TUIState{SelectedTaskID: m.selTask, SelectedBlockID: m.selBlock, HideUpdates: m.hideUpdates}
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitPlan(m.planCh),
		waitNotice(m.notices),
		m.watch.wait(),
		clearTick(),
		m.refreshCmd(),
	)
}

func (m appModel) refreshCmd() tea.Cmd {
	return runOp("refresh", func(ctx context.Context) error {
		_, err := m.ctl.Refresh(ctx)
		return err
	})
}

func waitPlan(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return planChangedMsg{}
	}
}

func waitNotice(ch <-chan reconcile.Notice) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg{n: n}
	}
}

func clearTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return clearTickMsg{} })
}

// runOp executes fn off the UI goroutine and reports back with opDoneMsg. Callers
// bump busy; opDoneMsg lowers it.
func runOp(op string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(context.Background())}
	}
}

func (m *appModel) showMinibuffer(kind reconcile.NoticeKind, text string) {
	m.minibufferText = text
	m.minibufferKind = kind
	m.minibufferSetAt = time.Now()
}

// syncPlan pulls the current replica into the model and keeps the selection on the
// same task (or block) when it moved.
func (m *appModel) syncPlan() {
	snap := m.ctl.Store().Snapshot()
	if snap.Plan == nil {
		return
	}
	m.plan, m.source, m.stale = snap.Plan, snap.Source, false
	m.rebuildRows()
}

func (m *appModel) rebuildRows() {
	m.rows = nil
	if m.plan == nil {
		m.cursor = 0
		return
	}
	for _, b := range m.plan.Blocks {
		m.rows = append(m.rows, row{blockID: b.ID})
		for _, t := range b.Tasks {
			m.rows = append(m.rows, row{blockID: b.ID, taskID: t.ID})
		}
	}
	m.cursor = m.findRow()
	m.remember()
}

func (m appModel) findRow() int {
	if m.selTask != 0 {
		for i, r := range m.rows {
			if r.taskID == m.selTask {
				return i
			}
		}
	}
	if m.selBlock != "" {
		for i, r := range m.rows {
			if r.taskID == 0 && r.blockID == m.selBlock {
				return i
			}
		}
	}
	// Prefer the first task over the first header.
	for i, r := range m.rows {
		if r.taskID != 0 {
			return i
		}
	}
	if m.cursor < len(m.rows) {
		return m.cursor
	}
	return 0
}

func (m *appModel) remember() {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return
	}
	r := m.rows[m.cursor]
	m.selTask, m.selBlock = r.taskID, r.blockID
}

func (m appModel) selected() (row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

func (m *appModel) moveCursor(delta int) {
	if len(m.rows) == 0 {
		return
	}
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	m.remember()
}
