package cli

import (
	"github.com/spf13/cobra"

	"github.com/flowbit-labs/flowbit-pulse/internal/logging"
	"github.com/flowbit-labs/flowbit-pulse/internal/tui"
)

func runTUI(cmd *cobra.Command, app *App) error {
	// The TUI owns the terminal: log to the configured file, or nowhere.
	log, closeLog, err := logging.OpenFile(app.cfg.LogFile, app.LogLevel)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer func() { _ = closeLog() }()
	app.log = log

	notifier, notices := tui.NoticeChannel()
	s, err := app.sessionWith(notifier)
	if err != nil {
		return writeErr(cmd, err)
	}
	return tui.Run(tui.Options{
		Controller: s.ctl,
		Notices:    notices,
		State:      s.state,
		Config:     app.cfg.TUI,
		Log:        log,
	})
}
