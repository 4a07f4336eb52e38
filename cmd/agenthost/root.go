package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kandev/agenthost/internal/common/config"
	"github.com/kandev/agenthost/internal/common/logger"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "agenthost",
	Short: "agenthost - local applications and coding agents for your workspaces",
	Long: `agenthost finds the terminals, editors and agent CLIs installed on this
machine, opens workspaces in them, and runs agent conversations in
pseudo-terminals.

Run the server:
  agenthost serve

Inspect the machine:
  agenthost detect apps
  agenthost detect agents --wsl

Open a file:
  agenthost open ./main.go --app com.microsoft.VSCode --line 42`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file or directory (default searches ., ~/.agenthost, /etc/agenthost)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// loadConfig reads the configuration and builds the process logger.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadWithPath(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log, err := logger.NewLogger(cfg.Logging.ToLoggerConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)
	return cfg, log, nil
}
