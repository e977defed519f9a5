package cmd

import (
	"fmt"
	"os"

	"github.com/abdul-hamid-achik/hitplan/packages/core/config"
	"github.com/abdul-hamid-achik/hitplan/packages/core/logging"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag    string
	logLevelFlag  string
	logFormatFlag string
	logFileFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "hitplan",
	Short: "Hierarchical test plans. Setup, data, dependencies.",
	Long: `hitplan runs test plans written as YAML trees of units.

Units hold steps or child units, share setup and cleanup hooks, expand
data rows into one unit per row, and order themselves with dependencies
on their siblings. Independent units can run in parallel.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the root command and exits with the code of the failure.
func Execute(v, bt string) {
	version = v
	buildTime = bt
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", getEnvString("HITPLAN_CONFIG", ""), "Path to config file (env: HITPLAN_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (env: HITPLAN_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", getEnvString("HITPLAN_LOG_FORMAT", ""), "Log format: console, json (env: HITPLAN_LOG_FORMAT)")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", getEnvString("HITPLAN_LOG_FILE", ""), "Also write logs to a rotated file (env: HITPLAN_LOG_FILE)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

// loadConfig reads the config file and applies the global log flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}
	return cfg.Merge(&config.Config{Log: logFlags()}), nil
}

func logFlags() *logging.Config {
	l := &logging.Config{Level: logLevelFlag, Format: logFormatFlag}
	if logFileFlag != "" {
		l.Output = "both"
		l.FilePath = logFileFlag
	}
	if *l == (logging.Config{}) {
		return nil
	}
	return l
}

func setupLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogConfig()); err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("invalid log settings: %w", err))
	}
	return nil
}
