package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowbit-labs/flowbit-pulse/internal/authority"
	"github.com/flowbit-labs/flowbit-pulse/internal/format"
	"github.com/flowbit-labs/flowbit-pulse/internal/logging"
	"github.com/flowbit-labs/flowbit-pulse/internal/reconcile"
	"github.com/flowbit-labs/flowbit-pulse/internal/replica"
	"github.com/flowbit-labs/flowbit-pulse/internal/store"
)

type App struct {
	Dir        string
	APIURL     string
	Token      string
	PrettyJSON bool
	Format     string
	LogLevel   string
	Ordering   string

	cfg *store.Config
	log *slog.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:           "pulse",
		Short:         "Pulse: your day plan, from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  pulse

  # Scriptable commands
  pulse plan show
  pulse plan move 12 --to deep-work --index 0
  pulse tasks done 12

  # Direct task lookup (shortcut for: pulse tasks show 12)
  pulse #12
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.resolve(cmd.ErrOrStderr())
	}

	cmd.PersistentFlags().StringVar(&app.Dir, "dir", envOr("PULSE_DIR", ""), "State directory (plan cache + attempt journal)")
	cmd.PersistentFlags().StringVar(&app.APIURL, "api", envOr("PULSE_API_URL", ""), "Planner base URL (default "+authority.DefaultBaseURL+")")
	cmd.PersistentFlags().StringVar(&app.Token, "token", envOr("PULSE_API_TOKEN", ""), "Bearer token for the planner")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("PULSE_FORMAT", "json"), "Output format (json|edn|md)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", envOr("PULSE_LOG_LEVEL", ""), "Log level (debug|info|warn|error|off)")
	cmd.PersistentFlags().StringVar(&app.Ordering, "ordering", envOr("PULSE_ORDERING", ""), "Overlapping move policy (last-write|strict)")

	cmd.AddCommand(newPlanCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newHistoryCmd(app))
	cmd.AddCommand(newConfigCmd(app))

	return cmd
}

// resolve fills unset options from config.yaml, then defaults. Flags and env
// already won by the time this runs.
func (app *App) resolve(stderr io.Writer) error {
	cfg, err := store.LoadConfig()
	if err != nil {
		return err
	}
	app.cfg = cfg

	if strings.TrimSpace(app.APIURL) == "" {
		app.APIURL = firstNonEmpty(cfg.APIURL, authority.DefaultBaseURL)
	}
	if strings.TrimSpace(app.Token) == "" {
		app.Token = cfg.APIToken
	}
	if strings.TrimSpace(app.Ordering) == "" {
		app.Ordering = cfg.Ordering
	}
	if strings.TrimSpace(app.LogLevel) == "" {
		app.LogLevel = cfg.LogLevel
	}
	if strings.TrimSpace(app.Dir) == "" {
		d, err := store.DefaultDir(cfg)
		if err != nil {
			return err
		}
		app.Dir = d
	}
	if !format.Valid(app.Format) {
		return fmt.Errorf("unknown format: %s", app.Format)
	}

	log, err := logging.New(stderr, app.LogLevel)
	if err != nil {
		return err
	}
	app.log = log
	return nil
}

// session is everything one command needs to talk to the planner.
type session struct {
	ctl   *reconcile.Controller
	rs    *replica.Store
	state store.Store
}

func (app *App) session(notices io.Writer) (*session, error) {
	return app.sessionWith(noticePrinter(notices))
}

func (app *App) sessionWith(notifier reconcile.Notifier) (*session, error) {
	timeout, err := app.cfg.Timeout()
	if err != nil {
		return nil, err
	}
	ordering, err := reconcile.ParseOrdering(app.Ordering)
	if err != nil {
		return nil, err
	}
	client, err := authority.New(authority.Options{BaseURL: app.APIURL, Token: app.Token, Timeout: timeout})
	if err != nil {
		return nil, err
	}

	state := store.Store{Dir: app.Dir}
	rs := replica.NewStore()
	rs.Subscribe(state.CacheSubscriber(app.log))

	ctl, err := reconcile.New(reconcile.Options{
		Authority: client,
		Store:     rs,
		Notifier:  notifier,
		Journal:   state,
		Logger:    app.log,
		Ordering:  ordering,
	})
	if err != nil {
		return nil, err
	}
	return &session{ctl: ctl, rs: rs, state: state}, nil
}

func noticePrinter(w io.Writer) reconcile.Notifier {
	return reconcile.NotifierFunc(func(n reconcile.Notice) {
		fmt.Fprintln(w, n.Text)
	})
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func firstNonEmpty(xs ...string) string {
	for _, x := range xs {
		if strings.TrimSpace(x) != "" {
			return strings.TrimSpace(x)
		}
	}
	return ""
}

// envelope is the shape of every structured result: {"data": ..., "meta": ...}.
type envelope struct {
	Data  any            `json:"data"`
	Meta  map[string]any `json:"meta,omitempty"`
	Hints []string       `json:"_hints,omitempty"`
}

func (e envelope) Markdown() string {
	if m, ok := e.Data.(format.Markdowner); ok {
		return m.Markdown()
	}
	b := &strings.Builder{}
	_ = format.WriteJSON(b, e.Data, true)
	return "```json\n" + b.String() + "```\n"
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "error: "+err.Error())
	return err
}

var errNoPlan = errors.New("no plan for today (run `pulse plan generate`)")
