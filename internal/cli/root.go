package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

type rootFlags struct {
	configPath string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "dialogmesh",
		Short:         "dialogmesh: replay train dialogs and inspect conversation state",
		Long:          "dialogmesh replays recorded train dialogs through the action engine, reports where live entity memory diverges from the recording and inspects the state stored for a conversation scope.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ./dialogmesh.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newReplayCmd(flags),
		newPlayCmd(flags),
		newInspectCmd(flags),
	)

	return rootCmd
}

// loadApp reads the configuration and wires storage and logging. Logs go to
// the command's error stream.
func loadApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	cfg, err := LoadConfig(viper.New(), flags.configPath)
	if err != nil {
		return nil, err
	}

	return wireApp(cfg, cmd.ErrOrStderr())
}
