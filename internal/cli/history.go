package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowbit-labs/flowbit-pulse/internal/reconcile"
	"github.com/flowbit-labs/flowbit-pulse/internal/store"
)

type attemptLog []reconcile.Attempt

func (l attemptLog) Markdown() string {
	if len(l) == 0 {
		return "_No attempts recorded._\n"
	}
	b := &strings.Builder{}
	b.WriteString("| when | kind | phase | task | detail | took |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, a := range l {
		task := ""
		if a.TaskID > 0 {
			task = fmt.Sprintf("#%d", a.TaskID)
		}
		detail := a.Detail
		if a.Kind == reconcile.KindMove {
			detail = fmt.Sprintf("%s → %s@%d", a.FromBlockID, a.ToBlockID, a.ToIndex)
		}
		if a.Err != "" {
			detail = strings.TrimSpace(detail + " (" + a.Err + ")")
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n",
			a.StartedAt.Local().Format("15:04:05"), a.Kind, a.Phase, task, detail, a.Duration().Round(1e6))
	}
	return b.String()
}

func newHistoryCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent operations and how they ended",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := store.Store{Dir: app.Dir}
			atts, err := s.ReadAttempts(cmd.Context(), limit)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, envelope{Data: attemptLog(atts), Meta: map[string]any{"count": len(atts)}})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Max attempts to show (0 = all)")
	return cmd
}
