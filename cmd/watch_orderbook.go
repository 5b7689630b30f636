package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/app"
	"github.com/digitalrebelz/arbitrage-app/internal/connector"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchOrderbookCmd = &cobra.Command{
	Use:   "watch-orderbook <exchange> <symbol>",
	Short: "Watch order book snapshots for one exchange and symbol",
	Long: `Polls one exchange through the configured connector and displays the top
of its order book. Useful for debugging connectors and market data.

Example:
  arbitrage-app watch-orderbook binance BTC/USDT --interval 500ms`,
	Args: cobra.ExactArgs(2),
	RunE: runWatchOrderbook,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchOrderbookCmd)
	watchOrderbookCmd.Flags().BoolP("json", "j", false, "Output snapshots as JSON")
	watchOrderbookCmd.Flags().Duration("interval", time.Second, "Polling interval")
}

func runWatchOrderbook(cmd *cobra.Command, args []string) error {
	exchange, symbol := args[0], args[1]

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	jsonOutput, _ := cmd.Flags().GetBool("json")
	interval, _ := cmd.Flags().GetDuration("interval")

	connectors, err := app.BuildConnectors(cfg, logger)
	if err != nil {
		return fmt.Errorf("build connectors: %w", err)
	}
	var conn connector.Connector
	for _, c := range connectors {
		if c.Name() == exchange {
			conn = c
			continue
		}
		_ = c.Close()
	}
	if conn == nil {
		return fmt.Errorf("exchange %q is not configured", exchange)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s on %s every %s...\n\n", symbol, exchange, interval)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, connector.FetchTimeout(0, cfg.OrderbookStaleness))
		book, err := conn.FetchOrderBook(fetchCtx, symbol, cfg.OrderbookDepth)
		cancel()

		switch {
		case err != nil && ctx.Err() != nil:
			fmt.Println("\nShutting down...")
			return nil
		case err != nil:
			logger.Warn("fetch-orderbook-failed",
				zap.String("exchange", exchange),
				zap.String("symbol", symbol),
				zap.Error(err))
		case jsonOutput:
			jsonBytes, _ := json.MarshalIndent(book, "", "  ")
			fmt.Println(string(jsonBytes))
		default:
			printBook(w, &book)
		}

		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return nil
		case <-ticker.C:
		}
	}
}

func printBook(w *tabwriter.Writer, book *types.OrderBook) {
	timestamp := book.Timestamp.Format("15:04:05.000")

	bestBid := "N/A"
	bestAsk := "N/A"
	if bid, ok := book.BestBid(); ok {
		bestBid = fmt.Sprintf("%s@%s", bid.Price, bid.Size)
	}
	if ask, ok := book.BestAsk(); ok {
		bestAsk = fmt.Sprintf("%s@%s", ask.Price, ask.Size)
	}

	fmt.Fprintf(w, "[%s] %s\t%s\tBid: %s\tAsk: %s\tLevels: %d/%d\n",
		timestamp, book.Exchange, book.Symbol, bestBid, bestAsk, len(book.Bids), len(book.Asks))
	w.Flush()
}
