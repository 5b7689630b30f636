package cmd

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/tabwriter"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfigCommand(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()

	c := &cobra.Command{Use: "test"}
	c.Flags().String("env-file", "", "")
	c.Flags().String("connector-mode", "", "")
	c.Flags().String("log-level", "", "")
	for name, value := range flags {
		require.NoError(t, c.Flags().Set(name, value))
	}
	return c
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	c := newConfigCommand(t, map[string]string{
		"env-file":  filepath.Join(t.TempDir(), "missing.env"),
		"log-level": "debug",
	})

	cfg, logger, err := loadConfig(c)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_InvalidConnectorMode(t *testing.T) {
	c := newConfigCommand(t, map[string]string{"connector-mode": "carrier-pigeon"})

	_, _, err := loadConfig(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONNECTOR_MODE must be")
}

func TestLoadConfig_ReadsEnvFile(t *testing.T) {
	const key = "ORDERBOOK_DEPTH"
	prev, had := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte(key+"=7\n"), 0o600))

	cfg, _, err := loadConfig(newConfigCommand(t, map[string]string{"env-file": envFile}))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.OrderbookDepth)
}

func testRows() []scanRow {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []scanRow{
		{Pass: 1, Admitted: true, Opportunity: arbitrage.CreateTestOpportunity("BTC/USDT", "binance", "kraken", at)},
		{Pass: 1, Reason: "total_exposure", Opportunity: arbitrage.CreateTestOpportunity("ETH/USDT", "kraken", "binance", at)},
	}
}

func TestPrintScanJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printScanJSON(&buf, testRows()))

	scanner := bufio.NewScanner(&buf)
	var decoded []scanRow
	for scanner.Scan() {
		var row scanRow
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		decoded = append(decoded, row)
	}

	require.Len(t, decoded, 2)
	assert.True(t, decoded[0].Admitted)
	assert.Equal(t, "BTC/USDT", decoded[0].Opportunity.Symbol)
	assert.Equal(t, "total_exposure", decoded[1].Reason)
	assert.True(t, decoded[1].Opportunity.NetProfit.Equal(decoded[0].Opportunity.NetProfit))
}

func TestPrintScanTable(t *testing.T) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	printScanTable(w, testRows())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "binance@100")
	assert.Contains(t, lines[0], "kraken@102")
	assert.Contains(t, lines[0], "1.7980")
	assert.Contains(t, lines[0], "admitted")
	assert.Contains(t, lines[1], "rejected: total_exposure")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, nil)
	assert.True(t, strings.HasPrefix(buf.String(), "arbitrage-app dev"))
}
