package cmd

import (
	"fmt"

	"github.com/digitalrebelz/arbitrage-app/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the arbitrage paper trader",
	Long: `Starts the arbitrage paper trader, which will:
1. Poll order books from every configured exchange (or stream them)
2. Scan every exchange pair and funding venue for opportunities
3. Gate opportunities through the risk limits
4. Re-validate and settle admitted opportunities in paper trading mode

The HTTP server exposes /health, /ready, /metrics and the /api endpoints.`,
	RunE: runTrader,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("storage-mode", "", "Override STORAGE_MODE (console, postgres, redis)")
}

func runTrader(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	storageMode, _ := cmd.Flags().GetString("storage-mode")
	if storageMode != "" {
		cfg.StorageMode = storageMode
		err = cfg.Validate()
		if err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}

	application, err := app.New(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	// Run app
	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
