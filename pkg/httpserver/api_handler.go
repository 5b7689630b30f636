package httpserver

import (
	"net/http"
	"strconv"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/circuitbreaker"
	"github.com/digitalrebelz/arbitrage-app/internal/portfolio"
	"github.com/digitalrebelz/arbitrage-app/internal/risk"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OpportunitySource exposes the latest scan's opportunities.
type OpportunitySource interface {
	Opportunities() []arbitrage.Opportunity
}

// TradeSource exposes recent paper trades, oldest first.
type TradeSource interface {
	RecentTrades() []types.Trade
}

// PortfolioSource exposes the current portfolio state.
type PortfolioSource interface {
	Snapshot() portfolio.Snapshot
}

// RiskSource exposes risk metrics and the manual halt reset.
type RiskSource interface {
	Metrics(snap *portfolio.Snapshot) risk.Metrics
	ClearHalt()
}

// BreakerSource exposes the execution circuit breaker state.
type BreakerSource interface {
	Status() circuitbreaker.Status
}

// APIHandler serves the read-only reporting endpoints.
type APIHandler struct {
	opportunities OpportunitySource
	trades        TradeSource
	portfolio     PortfolioSource
	risk          RiskSource
	breaker       BreakerSource
	logger        *zap.Logger
}

// NewAPIHandler creates an API handler from the sources in cfg.
func NewAPIHandler(cfg *Config, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		opportunities: cfg.Opportunities,
		trades:        cfg.Trades,
		portfolio:     cfg.Portfolio,
		risk:          cfg.Risk,
		breaker:       cfg.Breaker,
		logger:        logger,
	}
}

// OpportunitiesResponse is the body of GET /api/opportunities.
type OpportunitiesResponse struct {
	Count         int                     `json:"count"`
	Opportunities []arbitrage.Opportunity `json:"opportunities"`
}

// TradesResponse is the body of GET /api/trades.
type TradesResponse struct {
	Count  int           `json:"count"`
	Trades []types.Trade `json:"trades"`
}

// PortfolioResponse is the body of GET /api/portfolio.
type PortfolioResponse struct {
	portfolio.Snapshot
	PnLPercent decimal.Decimal `json:"pnl_percent"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleOpportunities handles GET /api/opportunities?kind=<spread|funding>&limit=<n>.
func (h *APIHandler) HandleOpportunities(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	kind := types.OpportunityKind(r.URL.Query().Get("kind"))

	opps := make([]arbitrage.Opportunity, 0)
	for _, opp := range h.opportunities.Opportunities() {
		if kind != "" && opp.Kind != kind {
			continue
		}
		opps = append(opps, opp)
	}
	if limit > 0 && len(opps) > limit {
		opps = opps[:limit]
	}

	h.writeJSON(w, http.StatusOK, OpportunitiesResponse{Count: len(opps), Opportunities: opps})
}

// HandleTrades handles GET /api/trades?verdict=<verdict>&limit=<n>. With a
// limit, the most recent trades are returned.
func (h *APIHandler) HandleTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	verdict := types.Verdict(r.URL.Query().Get("verdict"))

	trades := make([]types.Trade, 0)
	for _, trade := range h.trades.RecentTrades() {
		if verdict != "" && trade.Verdict != verdict {
			continue
		}
		trades = append(trades, trade)
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}

	h.writeJSON(w, http.StatusOK, TradesResponse{Count: len(trades), Trades: trades})
}

// HandlePortfolio handles GET /api/portfolio.
func (h *APIHandler) HandlePortfolio(w http.ResponseWriter, _ *http.Request) {
	snap := h.portfolio.Snapshot()
	h.writeJSON(w, http.StatusOK, PortfolioResponse{Snapshot: snap, PnLPercent: snap.PnLPercent()})
}

// HandleRisk handles GET /api/risk.
func (h *APIHandler) HandleRisk(w http.ResponseWriter, _ *http.Request) {
	snap := h.portfolio.Snapshot()
	h.writeJSON(w, http.StatusOK, h.risk.Metrics(&snap))
}

// HandleClearHalt handles POST /api/risk/clear-halt.
func (h *APIHandler) HandleClearHalt(w http.ResponseWriter, _ *http.Request) {
	h.risk.ClearHalt()
	h.logger.Warn("risk-halt-cleared-via-api")

	snap := h.portfolio.Snapshot()
	h.writeJSON(w, http.StatusOK, h.risk.Metrics(&snap))
}

// HandleCircuitBreaker handles GET /api/circuit-breaker.
func (h *APIHandler) HandleCircuitBreaker(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.breaker.Status())
}

// limit parses the optional limit query parameter; 0 means no limit.
func (h *APIHandler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, h.logger, "limit must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, logger *zap.Logger, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	err := json.NewEncoder(w).Encode(ErrorResponse{Error: message})
	if err != nil {
		logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
