// Package cli implements the crewdesk command line.
package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/soyeahso/crewdesk/internal/config"
	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/spf13/cobra"
)

var (
	homeDir  string
	cfgFile  string
	logLevel string

	// resolved before every command runs
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crewdesk",
		Short: "Assistant tool selector and incoming call notifier",
		Long: "crewdesk keeps the assistant's tool working set and profiles, and turns " +
			"incoming collaboration calls into notifications a front-end can answer.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if homeDir != "" {
				abs, err := filepath.Abs(homeDir)
				if err != nil {
					return err
				}
				paths = config.PathsAt(abs)
			} else {
				var err error
				if paths, err = config.ResolvePaths(); err != nil {
					return err
				}
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			log = logging.New(nil, cmdLogLevel())
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&homeDir, "home", "", "crewdesk home directory (default $CREWDESK_HOME or ~/.crewdesk)")
	flags.StringVar(&cfgFile, "config", "", "config file (default <home>/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "log level ("+strings.Join(logging.ValidLevels, ", ")+")")

	cmd.AddCommand(
		newRunCmd(),
		newToolsCmd(),
		newCallsCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return cmd
}

// cmdLogLevel picks the level for one-shot commands: the flag, then
// CREWDESK_LOG_LEVEL, then info.
func cmdLogLevel() string {
	if logLevel != "" {
		return logLevel
	}
	if v := os.Getenv("CREWDESK_LOG_LEVEL"); v != "" {
		return v
	}
	return "info"
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
