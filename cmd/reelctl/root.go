package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := newCommandContext()

	rootCmd := &cobra.Command{
		Use:           "reelctl",
		Short:         "Story reel generation CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("api", "http://localhost:8080", "Base URL of the generation API")
	flags.String("token", "", "Bearer token for the generation API")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	ctx.bindFlags(flags)

	rootCmd.AddCommand(newStartCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newRetryCommand(ctx))
	rootCmd.AddCommand(newArtifactsCommand(ctx))

	return rootCmd
}
