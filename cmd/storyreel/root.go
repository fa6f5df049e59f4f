package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := newCommandContext()

	rootCmd := &cobra.Command{
		Use:           "storyreel",
		Short:         "Generate narrated short videos with continuous background music",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newAssembleCommand(ctx))
	rootCmd.AddCommand(newSyncMusicCommand(ctx))
	rootCmd.AddCommand(newCursorsCommand(ctx))
	rootCmd.AddCommand(newModesCommand())

	return rootCmd
}
