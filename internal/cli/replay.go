package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/replay"
	"github.com/hupe1980/dialogmesh/session"
)

type replayFlags struct {
	updateState bool
	ignoreLast  bool
	output      string
	scope       string
	userID      string
	userName    string
	audit       bool
}

func newReplayCmd(root *rootFlags) *cobra.Command {
	flags := &replayFlags{}

	cmd := &cobra.Command{
		Use:   "replay <dialog.yaml>",
		Short: "Replay a train dialog and report discrepancies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dialog, err := replay.LoadDialog(args[0])
			if err != nil {
				return err
			}

			a, err := loadApp(cmd, root)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			actions := engine.New(func(o *engine.Options) {
				o.Callbacks = echoCallbacks(dialog.Definitions)
				o.Logger = a.logger.WithComponent("engine")
			})

			replays := replay.New(actions, func(o *replay.Options) {
				o.Logger = a.logger.WithComponent("replay")
				if flags.audit {
					o.AuditLog = replay.NewAuditLog(a.store, flags.scope)
				}
			})

			state := session.New(a.store, flags.scope, func(o *session.Options) {
				o.Logger = a.logger.WithComponent("session")
			})

			h, err := replays.GetHistory(cmd.Context(), dialog, state.Entities(), replay.HistoryOptions{
				UpdateState:          flags.updateState,
				IgnoreLastExtraction: flags.ignoreLast,
				UserID:               flags.userID,
				UserName:             flags.userName,
			})
			if err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), flags.output, h, func(w io.Writer) error {
				return writeHistory(w, dialog, h)
			})
		},
	}

	cmd.Flags().BoolVar(&flags.updateState, "update-state", false, "rebuild entity memory while replaying")
	cmd.Flags().BoolVar(&flags.ignoreLast, "ignore-last", false, "skip the discrepancy check of the last round")
	cmd.Flags().StringVarP(&flags.output, "output", "o", OutputText, "output format: text, json or yaml")
	cmd.Flags().StringVar(&flags.scope, "scope", "cli", "scope key of the entity memory to replay into")
	cmd.Flags().StringVar(&flags.userID, "user-id", "", "user id handed to callbacks")
	cmd.Flags().StringVar(&flags.userName, "user-name", "", "user name handed to callbacks")
	cmd.Flags().BoolVar(&flags.audit, "audit", false, "record the replay in the scope's training history")

	return cmd
}

func writeHistory(w io.Writer, dialog core.TrainDialog, h *replay.History) error {
	var b strings.Builder

	fmt.Fprintf(&b, "dialog %s: %d rounds, mode %s\n", dialog.ID, len(dialog.Rounds), h.DialogMode)

	for _, a := range h.Activities {
		sender := "bot"
		if a.ChannelData != nil && a.ChannelData.SenderType == core.SenderUser {
			sender = "user"
		}

		text := a.Text
		if text == "" && len(a.Attachments) > 0 {
			text = "[" + a.Attachments[0].ContentType + "]"
		}

		fmt.Fprintf(&b, "%-4s  %s\n", sender, text)
	}

	if len(h.Discrepancies) > 0 {
		b.WriteString("\ndiscrepancies:\n")
		for _, line := range h.Discrepancies {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	writeMemory(&b, h.Memories)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeMemory(b *strings.Builder, entries []core.MemoryEntry) {
	if len(entries) == 0 {
		return
	}

	b.WriteString("\nmemory:\n")
	for _, e := range entries {
		values := make([]string, 0, len(e.EntityValues))
		for _, v := range e.EntityValues {
			values = append(values, v.Text())
		}
		fmt.Fprintf(b, "  %s: %s\n", e.EntityName, strings.Join(values, ", "))
	}
}
