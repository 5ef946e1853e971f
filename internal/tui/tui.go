package tui

import (
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/flowbit-labs/flowbit-pulse/internal/logging"
	"github.com/flowbit-labs/flowbit-pulse/internal/reconcile"
	"github.com/flowbit-labs/flowbit-pulse/internal/store"
)

type Options struct {
	Controller *reconcile.Controller
	// Notices is fed by the controller's notifier (see NoticeChannel).
	Notices <-chan reconcile.Notice
	State   store.Store
	Config  *store.TUIConfig
	Log     *slog.Logger
}

// NoticeChannel returns a notifier that hands notices to the TUI, and the channel
// to pass as Options.Notices. Notices are dropped while the buffer is full.
func NoticeChannel() (reconcile.Notifier, <-chan reconcile.Notice) {
	ch := make(chan reconcile.Notice, 32)
	return reconcile.NotifierFunc(func(n reconcile.Notice) {
		select {
		case ch <- n:
		default:
		}
	}), ch
}

func Run(opt Options) error {
	if opt.Log == nil {
		opt.Log = logging.Discard()
	}
	theme := ""
	if opt.Config != nil {
		theme = opt.Config.Theme
	}
	applyTheme(theme)

	m := newAppModel(opt)
	defer m.close()

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if fm, ok := final.(appModel); ok {
		if serr := opt.State.SaveTUIState(fm.tuiState()); serr != nil {
			opt.Log.Warn("save tui state", "err", serr)
		}
	}
	return err
}
