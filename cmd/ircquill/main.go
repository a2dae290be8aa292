package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matt0x6f/ircquill/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath  string
		logLevel string
		listen   string
		dataDir  string
	)

	cmd := &cobra.Command{
		Use:           "ircquill",
		Short:         "ircquill - an IRC bouncer",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.SetLevelFromString(logLevel); err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfgPath, listen, dataDir)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "ircquill.toml", "path to config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	cmd.Flags().StringVar(&listen, "listen", "", "client socket address (overrides config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")

	return cmd
}
