package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/digitalrebelz/arbitrage-app/pkg/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "arbitrage-app",
	Short: "Cross-exchange crypto arbitrage paper trader",
	Long: `Cross-exchange crypto arbitrage paper trader that polls order books from
several venues, detects spread and funding-rate opportunities net of fees and
slippage, gates them through risk limits and settles them against a simulated
portfolio.

No real orders are ever placed. Configuration is read from the environment
and from a .env file in the working directory when one exists.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file to load before reading configuration")
	rootCmd.PersistentFlags().String("connector-mode", "", "Override CONNECTOR_MODE (simulated, rest, stream)")
	rootCmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL")
}

// loadConfig loads the env file, reads configuration and applies flag
// overrides. A missing env file is not an error.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	mode, _ := cmd.Flags().GetString("connector-mode")
	level, _ := cmd.Flags().GetString("log-level")
	if mode != "" || level != "" {
		if mode != "" {
			cfg.ConnectorMode = mode
		}
		if level != "" {
			cfg.LogLevel = level
		}
		err = cfg.Validate()
		if err != nil {
			return nil, nil, fmt.Errorf("validate config: %w", err)
		}
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	return cfg, logger, nil
}
