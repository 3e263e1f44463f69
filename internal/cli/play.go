package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/model"
	"github.com/hupe1980/dialogmesh/replay"
	"github.com/hupe1980/dialogmesh/runner"
)

type playFlags struct {
	conversation string
	userID       string
	userName     string
}

func newPlayCmd(root *rootFlags) *cobra.Command {
	flags := &playFlags{}

	cmd := &cobra.Command{
		Use:   "play <dialog.yaml>",
		Short: "Run the user turns of a train dialog through the live runner",
		Long: "play feeds every round of a train dialog to the live turn runner. Extraction and " +
			"scoring answer with the dialog's own labels, so the queue timeout, step bound and " +
			"session handling run exactly as they would against a model.",
		Args: cobra.ExactArgs(1),
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

			labels := labeledModel(dialog)
			r := a.newRunner(dialog.Definitions, actions, labels, labels)

			var b strings.Builder
			defer func() { _, _ = io.WriteString(cmd.OutOrStdout(), b.String()) }()

			for i, round := range dialog.Rounds {
				text := round.UserText()
				fmt.Fprintf(&b, "%-4s  %s\n", "user", text)

				activities, err := r.HandleInput(cmd.Context(), runner.Input{
					ConversationID: flags.conversation,
					UserID:         flags.userID,
					UserName:       flags.userName,
					Text:           text,
				})
				for _, act := range activities {
					fmt.Fprintf(&b, "%-4s  %s\n", "bot", act.Text)
				}
				if err != nil {
					return fmt.Errorf("round %d: %w", i, err)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&flags.conversation, "conversation", "cli", "conversation id the turns belong to")
	cmd.Flags().StringVar(&flags.userID, "user-id", "", "user id handed to callbacks")
	cmd.Flags().StringVar(&flags.userName, "user-name", "", "user name handed to callbacks")

	return cmd
}

// labeledModel scripts extraction with each round's labels and scoring with
// the labeled actions in recording order.
func labeledModel(dialog core.TrainDialog) *model.MockModel {
	m := model.NewMockModel("labels")

	for _, round := range dialog.Rounds {
		if len(round.ExtractorStep.TextVariations) > 0 {
			tv := round.ExtractorStep.TextVariations[0]
			m.AddExtraction(tv.Text, tv.LabelEntities...)
		}
		for _, step := range round.ScorerSteps {
			m.AddScore(step.LabelAction)
		}
	}

	return m
}
