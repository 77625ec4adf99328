package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/hearthtale/internal/config"
)

// NewRootCmd builds the hearthtale command tree. Without a subcommand it plays.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:   "hearthtale",
		Short: "Text adventure narrated by a locally hosted language model",
		Long: `hearthtale starts a local inference server, waits until it answers and
runs a text adventure against it. The server is stopped when the game ends.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadConfig(opts, cmd); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlay(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	addFlags(root, opts)

	root.AddCommand(
		newPlayCmd(opts),
		newServeCmd(opts),
		newHealthCmd(opts),
		newUpdateCmd(opts),
		newVersionCmd(),
	)
	return root
}
