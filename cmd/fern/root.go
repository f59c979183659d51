package main

import (
	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/logging"
)

var (
	envFile   string
	cfg       *config.Config
	logger    ectologger.Logger
	flushLogs = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "fern",
	Short: "Participant deduplication service",
	Long: `fern finds participants that are likely the same person, keeps the
duplicate index of scored pairs, and applies operator merge and ignore decisions.

Configuration is read from the environment, after an optional .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		logger, flushLogs, err = logging.New(cfg.Logging())
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = flushLogs()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional .env file")
}
