package cli

import (
	"cmp"
	"io"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths   config.Paths
	cfg     config.Config
	cfgErr  error
	log     *logging.Logger
	logFile io.Closer
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parley",
		Short: "parley, a terminal client for your assistant chats",
		Long: "parley keeps your assistant chat sessions locally, sends messages to the " +
			"assistant API and serves the sessions to UI clients over a gateway.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}

			cfg, cfgErr = config.Load(paths.Config)
			if cfgErr != nil {
				cfg = config.Defaults()
			}

			log, logFile, err = logging.Open(logging.Options{
				Level:        cmp.Or(logLevel, cfg.Logging.Level),
				ConsoleStyle: cfg.Logging.ConsoleStyle,
				File:         cfg.Logging.File,
				Console:      cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			if cfgErr != nil {
				log.Warn().Err(cfgErr).Str("path", paths.Config).Msg("config not loaded, using defaults")
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logFile != nil {
				return logFile.Close()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.parley/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newGatewayCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
