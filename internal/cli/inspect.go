package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/replay"
	"github.com/hupe1980/dialogmesh/session"
)

// ScopeReport is the stored state of a conversation scope.
type ScopeReport struct {
	Scope        string               `json:"scope" yaml:"scope"`
	Status       string               `json:"status" yaml:"status"`
	App          *core.App            `json:"app,omitempty" yaml:"app,omitempty"`
	Session      *core.SessionRecord  `json:"session,omitempty" yaml:"session,omitempty"`
	Memories     []core.MemoryEntry   `json:"memories" yaml:"memories"`
	TrainHistory []replay.AuditRecord `json:"trainHistory,omitempty" yaml:"trainHistory,omitempty"`
}

func newInspectCmd(root *rootFlags) *cobra.Command {
	var (
		output  string
		history bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <scope>",
		Short: "Dump the session and entity memory of a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, root)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			report, err := inspectScope(cmd, a, args[0], history)
			if err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), output, report, func(w io.Writer) error {
				return writeReport(w, report)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", OutputText, "output format: text, json or yaml")
	cmd.Flags().BoolVar(&history, "history", false, "include the scope's training history")

	return cmd
}

func inspectScope(cmd *cobra.Command, a *app, scope string, history bool) (*ScopeReport, error) {
	ctx := cmd.Context()
	state := session.New(a.store, scope, func(o *session.Options) { o.Logger = a.logger })

	status, err := state.Status(ctx)
	if err != nil {
		return nil, err
	}

	bound, err := state.App(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := state.Record(ctx)
	if err != nil {
		return nil, err
	}

	memories, err := state.Entities().Dump(ctx)
	if err != nil {
		return nil, err
	}

	report := &ScopeReport{
		Scope:    scope,
		Status:   status.String(),
		App:      bound,
		Session:  rec,
		Memories: memories,
	}

	if history {
		report.TrainHistory, err = replay.NewAuditLog(a.store, scope).Records(ctx)
		if err != nil {
			return nil, err
		}
	}

	return report, nil
}

func writeReport(w io.Writer, r *ScopeReport) error {
	var b strings.Builder

	fmt.Fprintf(&b, "scope %s: %s\n", r.Scope, r.Status)

	if r.App != nil {
		fmt.Fprintf(&b, "app: %s\n", r.App.AppID)
	}

	if r.Session != nil && r.Session.SessionID != "" {
		fmt.Fprintf(&b, "session: %s (conversation %s, teach %t)\n",
			r.Session.SessionID, r.Session.ConversationID, r.Session.InTeach)
	}

	writeMemory(&b, r.Memories)

	if len(r.TrainHistory) > 0 {
		b.WriteString("\ntrain history:\n")
		for _, rec := range r.TrainHistory {
			fmt.Fprintf(&b, "  %s  %s  %d activities, %d discrepancies\n",
				rec.ReplayedAt.Format("2006-01-02T15:04:05Z07:00"), rec.DialogID, rec.Activities, len(rec.Discrepancies))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
