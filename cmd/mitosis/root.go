package main

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/mitosis.report/internal/version"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "mitosis",
		Short:         "Time mitotic events from centrosome tracks",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.setupLogging(cmd.ErrOrStderr()); err != nil {
				return err
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configPath, "config", "c", "", "Analysis configuration file (JSON or YAML)")
	flags.StringVar(&ctx.logFormat, "log-format", "text", "Log format: text or json")
	flags.StringVar(&ctx.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.BoolVarP(&ctx.quiet, "quiet", "q", false, "Suppress diagnostic logging")

	rootCmd.AddCommand(newTrainCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newFitCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))

	return rootCmd
}
