package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"transmute/config"
	"transmute/logger"
)

var rootCmd = &cobra.Command{
	Use:           "transmute",
	Short:         "File compression and format conversion service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute wires every subcommand against cfg and runs the CLI.
func Execute(cfg *config.Config) {
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "minimum log level (debug|info|warn|error)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cfg.LogFile != "" {
			if err := logger.Init(cfg.LogFile, true); err != nil {
				return err
			}
		}
		logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
		return nil
	}

	rootCmd.AddCommand(ServeCmd(cfg))
	rootCmd.AddCommand(WorkerCmd(cfg))
	rootCmd.AddCommand(CheckDepsCmd(cfg))
	rootCmd.AddCommand(MigrateCmd(cfg))
	rootCmd.AddCommand(CleanupCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}
