package cli

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soyeahso/roster/internal/config"
	"github.com/soyeahso/roster/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// set by the root command before any subcommand runs
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "roster: a shared directory of conversational agents",
		Long: "roster keeps a local view of a shared agents directory in sync with a remote store.\n" +
			"Run `roster serve` on one machine and point clients at it with directory.backend=gateway.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if paths, err = config.ResolvePaths(); err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			log, err = setupLogging(paths, logLevel)
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.roster/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newAgentsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newPromptCmd())

	return cmd
}

// setupLogging builds the process logger from the config file. A broken
// config still gets a console logger so the command can report the problem.
func setupLogging(p config.Paths, levelFlag string) (*logging.Logger, error) {
	cfg, err := config.Load(p.Config)
	if err != nil {
		return logging.NewConsole(logging.StylePretty, cmp.Or(levelFlag, "info")), nil
	}
	lc := cfg.Logging
	consoleLevel := cmp.Or(levelFlag, lc.ConsoleLevel)

	path := lc.FilePath(p)
	if path == "" {
		return logging.NewConsole(lc.ConsoleStyle, consoleLevel), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return logging.NewWithFile(lc.ConsoleStyle, consoleLevel, f, lc.Level), nil
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
