package tui

import (
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"

	"github.com/flowbit-labs/flowbit-pulse/internal/logging"
	"github.com/flowbit-labs/flowbit-pulse/internal/store"
)

// stampWatcher reports cache writes made by other pulse processes (a `pulse tasks
// done` in another terminal) so the TUI can refetch. Writes from this process
// are ignored.
type stampWatcher struct {
	w       *fsnotify.Watcher
	changed chan struct{}
	done    chan struct{}
}

func watchStamp(st store.Store, log *slog.Logger) (*stampWatcher, error) {
	if log == nil {
		log = logging.Discard()
	}
	if err := st.Ensure(); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// The stamp is replaced via rename on some platforms; watch the directory.
	if err := w.Add(st.Dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	sw := &stampWatcher{w: w, changed: make(chan struct{}, 1), done: make(chan struct{})}
	stamp := filepath.Clean(st.StampPath())

	go func() {
		defer close(sw.done)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != stamp || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				pid, err := st.StampWriter()
				if err != nil || pid == os.Getpid() {
					continue
				}
				log.Debug("cache written by another process", "pid", pid)
				select {
				case sw.changed <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify", "err", err)
			}
		}
	}()
	return sw, nil
}

// wait blocks until the next external change.
func (sw *stampWatcher) wait() tea.Cmd {
	if sw == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-sw.changed:
			return externalChangeMsg{}
		case <-sw.done:
			return nil
		}
	}
}

func (sw *stampWatcher) Close() error {
	if sw == nil {
		return nil
	}
	err := sw.w.Close()
	<-sw.done
	return err
}
