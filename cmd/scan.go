package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/app"
	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/storage"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run detection passes and print the opportunities",
	Long: `Polls every configured exchange, scans for opportunities and runs them
through the risk limits, then prints what was found. Nothing is executed and
nothing is written to storage.

Example:
  arbitrage-app scan --passes 5 --interval 1s`,
	RunE: runScan,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntP("passes", "n", 1, "Number of passes to run")
	scanCmd.Flags().Duration("interval", time.Second, "Delay between passes")
	scanCmd.Flags().BoolP("json", "j", false, "Output opportunities as JSON lines")
}

// scanRow is one printed opportunity with its risk verdict.
type scanRow struct {
	Pass        int                   `json:"pass"`
	Admitted    bool                  `json:"admitted"`
	Reason      string                `json:"reason,omitempty"`
	Opportunity arbitrage.Opportunity `json:"opportunity"`
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	passes, _ := cmd.Flags().GetInt("passes")
	interval, _ := cmd.Flags().GetDuration("interval")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if passes <= 0 {
		return fmt.Errorf("passes must be positive, got %d", passes)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger, &app.Options{Sink: storage.NewMultiSink()})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer func() {
		_ = application.Shutdown()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if !jsonOutput {
		fmt.Fprintln(w, "PASS\tKIND\tSYMBOL\tBUY\tSELL\tSIZE\tNET PROFIT\tNET %\tRISK\tVERDICT")
	}

	for pass := 1; pass <= passes; pass++ {
		report, err := application.ScanOnce(ctx)
		if err != nil {
			return err
		}

		rows := make([]scanRow, 0, len(report.Admitted)+len(report.Rejected))
		for _, opp := range report.Admitted {
			rows = append(rows, scanRow{Pass: pass, Admitted: true, Opportunity: opp})
		}
		for _, d := range report.Rejected {
			rows = append(rows, scanRow{Pass: pass, Reason: string(d.Reason), Opportunity: d.Opportunity})
		}

		if jsonOutput {
			err = printScanJSON(os.Stdout, rows)
			if err != nil {
				return err
			}
		} else {
			printScanTable(w, rows)
		}

		if pass == passes {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}

	return nil
}

func printScanJSON(out io.Writer, rows []scanRow) error {
	enc := json.NewEncoder(out)
	for i := range rows {
		err := enc.Encode(&rows[i])
		if err != nil {
			return fmt.Errorf("encode opportunity: %w", err)
		}
	}
	return nil
}

func printScanTable(w *tabwriter.Writer, rows []scanRow) {
	for i := range rows {
		row := &rows[i]
		opp := &row.Opportunity
		verdict := "admitted"
		if !row.Admitted {
			verdict = "rejected: " + row.Reason
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s@%s\t%s@%s\t%s\t%s\t%s\t%.3f\t%s\n",
			row.Pass,
			opp.Kind,
			opp.Symbol,
			opp.BuyExchange, opp.BuyPrice.String(),
			opp.SellExchange, opp.SellPrice.String(),
			opp.Size.String(),
			opp.NetProfit.StringFixed(4),
			opp.NetProfitPercent.StringFixed(4),
			opp.RiskScore,
			verdict)
	}
	w.Flush()
}
