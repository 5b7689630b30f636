package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/circuitbreaker"
	"github.com/digitalrebelz/arbitrage-app/internal/marketdata"
	"github.com/digitalrebelz/arbitrage-app/internal/portfolio"
	"github.com/digitalrebelz/arbitrage-app/internal/risk"
	"github.com/digitalrebelz/arbitrage-app/internal/testutil"
	"github.com/digitalrebelz/arbitrage-app/pkg/healthprobe"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var testTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type staticOpportunities []arbitrage.Opportunity

func (s staticOpportunities) Opportunities() []arbitrage.Opportunity { return s }

type staticTrades []types.Trade

func (s staticTrades) RecentTrades() []types.Trade { return s }

func newTestServer(t *testing.T) (*Server, *marketdata.Cache) {
	t.Helper()

	spread := arbitrage.CreateTestOpportunity("BTC/USDT", "binance", "kraken", testTime)
	funding := arbitrage.CreateTestOpportunity("ETH/USDT", "binance", "binance-perp", testTime)
	funding.Kind = types.KindFunding

	trades := staticTrades{
		{ID: "t1", Verdict: types.VerdictWouldHaveExecuted},
		{ID: "t2", Verdict: types.VerdictStale},
		{ID: "t3", Verdict: types.VerdictWouldHaveExecuted},
	}

	pf, err := portfolio.New(&portfolio.Config{InitialBalance: decimal.NewFromInt(10000)})
	if err != nil {
		t.Fatalf("portfolio.New() error = %v", err)
	}

	riskMgr := risk.New(&risk.Config{Limits: risk.Limits{
		MaxPositionSize:    decimal.NewFromInt(1000),
		MaxTotalExposure:   decimal.NewFromInt(5000),
		MaxDrawdownPercent: decimal.NewFromInt(10),
	}})

	books := marketdata.New(&marketdata.Config{Clock: func() time.Time { return testTime.Add(40 * time.Millisecond) }})
	books.PutOrderBook(testutil.CreateTestOrderBook("binance", "BTC/USDT", testTime,
		testutil.Levels("100", "2", "99", "3"),
		testutil.Levels("101", "1")))

	server := New(&Config{
		Port:          "0",
		Logger:        zap.NewNop(),
		HealthChecker: healthprobe.New(),
		Opportunities: staticOpportunities{spread, funding},
		Trades:        trades,
		Portfolio:     pf,
		Risk:          riskMgr,
		Books:         books,
	})
	return server, books
}

func do(t *testing.T, s *Server, method, target string, out any) int {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if out != nil && w.Code == http.StatusOK {
		err := json.NewDecoder(w.Body).Decode(out)
		if err != nil {
			t.Fatalf("decode %s response: %v", target, err)
		}
	}
	return w.Code
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	if code := do(t, server, http.MethodGet, "/health", nil); code != http.StatusOK {
		t.Errorf("Health endpoint status = %d, want %d", code, http.StatusOK)
	}
	if code := do(t, server, http.MethodGet, "/ready", nil); code != http.StatusServiceUnavailable {
		t.Errorf("Ready endpoint status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Metrics endpoint status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("Metrics response missing go_goroutines")
	}
}

func TestOpportunitiesEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantCount int
	}{
		{name: "all", target: "/api/opportunities", wantCode: http.StatusOK, wantCount: 2},
		{name: "funding_only", target: "/api/opportunities?kind=funding", wantCode: http.StatusOK, wantCount: 1},
		{name: "limited", target: "/api/opportunities?limit=1", wantCode: http.StatusOK, wantCount: 1},
		{name: "bad_limit", target: "/api/opportunities?limit=-1", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp OpportunitiesResponse
			code := do(t, server, http.MethodGet, tt.target, &resp)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d", code, tt.wantCode)
			}
			if code == http.StatusOK && (resp.Count != tt.wantCount || len(resp.Opportunities) != tt.wantCount) {
				t.Errorf("count = %d (%d items), want %d", resp.Count, len(resp.Opportunities), tt.wantCount)
			}
		})
	}
}

func TestTradesEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	var resp TradesResponse
	if code := do(t, server, http.MethodGet, "/api/trades?verdict=WOULD_HAVE_EXECUTED", &resp); code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}

	resp = TradesResponse{}
	do(t, server, http.MethodGet, "/api/trades?limit=1", &resp)
	if resp.Count != 1 || resp.Trades[0].ID != "t3" {
		t.Errorf("limit should keep the most recent trade, got %+v", resp.Trades)
	}
}

func TestPortfolioEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	var resp PortfolioResponse
	if code := do(t, server, http.MethodGet, "/api/portfolio", &resp); code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if !resp.Cash.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("cash = %s, want 10000", resp.Cash)
	}
	if !resp.PnLPercent.IsZero() {
		t.Errorf("pnl_percent = %s, want 0", resp.PnLPercent)
	}
}

func TestRiskEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	var metrics risk.Metrics
	if code := do(t, server, http.MethodGet, "/api/risk", &metrics); code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if !metrics.MaxExposure.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("max_exposure = %s, want 5000", metrics.MaxExposure)
	}

	metrics = risk.Metrics{}
	if code := do(t, server, http.MethodPost, "/api/risk/clear-halt", &metrics); code != http.StatusOK {
		t.Fatalf("clear-halt status = %d, want %d", code, http.StatusOK)
	}
	if metrics.Halted {
		t.Error("expected halt cleared")
	}

	if code := do(t, server, http.MethodGet, "/api/risk/clear-halt", nil); code != http.StatusMethodNotAllowed {
		t.Errorf("GET clear-halt status = %d, want %d", code, http.StatusMethodNotAllowed)
	}
}

func TestOrderbookEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name     string
		target   string
		wantCode int
	}{
		{name: "cached", target: "/api/orderbook?exchange=binance&symbol=BTC/USDT", wantCode: http.StatusOK},
		{name: "missing_params", target: "/api/orderbook?exchange=binance", wantCode: http.StatusBadRequest},
		{name: "not_cached", target: "/api/orderbook?exchange=kraken&symbol=BTC/USDT", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp OrderbookResponse
			code := do(t, server, http.MethodGet, tt.target, &resp)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d", code, tt.wantCode)
			}
			if code != http.StatusOK {
				return
			}
			if !resp.BestBidPrice.Equal(decimal.NewFromInt(100)) || !resp.BestAskPrice.Equal(decimal.NewFromInt(101)) {
				t.Errorf("best bid/ask = %s/%s, want 100/101", resp.BestBidPrice, resp.BestAskPrice)
			}
			if resp.AgeMillis != 40 {
				t.Errorf("age_ms = %d, want 40", resp.AgeMillis)
			}
		})
	}
}

func TestAPIRoutes_OnlyWithSources(t *testing.T) {
	server := New(&Config{
		Port:          "0",
		Logger:        zap.NewNop(),
		HealthChecker: healthprobe.New(),
	})

	for _, target := range []string{"/api/opportunities", "/api/trades", "/api/portfolio", "/api/risk", "/api/orderbook", "/api/circuit-breaker"} {
		if code := do(t, server, http.MethodGet, target, nil); code != http.StatusNotFound {
			t.Errorf("%s status = %d, want %d", target, code, http.StatusNotFound)
		}
	}
}

type staticBreaker circuitbreaker.Status

func (s staticBreaker) Status() circuitbreaker.Status { return circuitbreaker.Status(s) }

func TestCircuitBreakerEndpoint(t *testing.T) {
	server := New(&Config{
		Port:          "0",
		Logger:        zap.NewNop(),
		HealthChecker: healthprobe.New(),
		Breaker: staticBreaker{
			Enabled:          false,
			LastBalance:      decimal.NewFromInt(80),
			DisableThreshold: decimal.NewFromInt(100),
			EnableThreshold:  decimal.NewFromInt(150),
			RecentTradeCount: 3,
		},
	})

	var got circuitbreaker.Status
	if code := do(t, server, http.MethodGet, "/api/circuit-breaker", &got); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if got.Enabled {
		t.Error("expected disabled breaker")
	}
	if !got.LastBalance.Equal(decimal.NewFromInt(80)) {
		t.Errorf("last balance = %s, want 80", got.LastBalance)
	}
	if got.RecentTradeCount != 3 {
		t.Errorf("recent trade count = %d, want 3", got.RecentTradeCount)
	}
}

func TestServer_Timeouts(t *testing.T) {
	server := New(&Config{Port: "8080", HealthChecker: healthprobe.New()})

	if server.server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v, want %v", server.server.ReadTimeout, 15*time.Second)
	}
	if server.server.ReadHeaderTimeout != 10*time.Second {
		t.Errorf("ReadHeaderTimeout = %v, want %v", server.server.ReadHeaderTimeout, 10*time.Second)
	}
	if server.server.WriteTimeout != 15*time.Second {
		t.Errorf("WriteTimeout = %v, want %v", server.server.WriteTimeout, 15*time.Second)
	}
	if server.server.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want %v", server.server.IdleTimeout, 60*time.Second)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	server := New(&Config{Port: "0", Logger: zap.NewNop(), HealthChecker: healthprobe.New()})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := server.Shutdown(ctx)
	if err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	select {
	case err := <-serverDone:
		if err != nil {
			t.Errorf("Start() returned error after shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after shutdown")
	}
}
