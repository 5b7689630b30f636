package httpserver

import (
	"net/http"
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BookSource reads cached order books.
type BookSource interface {
	OrderBook(exchange, symbol string) (types.OrderBook, time.Duration, bool)
}

// OrderbookHandler handles HTTP requests for cached order book data.
type OrderbookHandler struct {
	books  BookSource
	logger *zap.Logger
}

// NewOrderbookHandler creates a new orderbook handler.
func NewOrderbookHandler(books BookSource, logger *zap.Logger) *OrderbookHandler {
	return &OrderbookHandler{
		books:  books,
		logger: logger,
	}
}

// OrderbookResponse represents the HTTP response for one cached book.
type OrderbookResponse struct {
	Exchange     string             `json:"exchange"`
	Symbol       string             `json:"symbol"`
	BestBidPrice decimal.Decimal    `json:"best_bid_price"`
	BestBidSize  decimal.Decimal    `json:"best_bid_size"`
	BestAskPrice decimal.Decimal    `json:"best_ask_price"`
	BestAskSize  decimal.Decimal    `json:"best_ask_size"`
	Bids         []types.PriceLevel `json:"bids"`
	Asks         []types.PriceLevel `json:"asks"`
	Timestamp    time.Time          `json:"timestamp"`
	AgeMillis    int64              `json:"age_ms"`
}

// HandleOrderbook handles GET /api/orderbook?exchange=<id>&symbol=<BASE/QUOTE>.
func (h *OrderbookHandler) HandleOrderbook(w http.ResponseWriter, r *http.Request) {
	exchange := r.URL.Query().Get("exchange")
	symbol := r.URL.Query().Get("symbol")
	if exchange == "" || symbol == "" {
		writeError(w, h.logger, "missing required query parameters: exchange, symbol", http.StatusBadRequest)
		return
	}

	h.logger.Debug("orderbook-request-received",
		zap.String("exchange", exchange),
		zap.String("symbol", symbol))

	book, age, found := h.books.OrderBook(exchange, symbol)
	if !found {
		writeError(w, h.logger, "order book not cached", http.StatusNotFound)
		return
	}

	response := OrderbookResponse{
		Exchange:  book.Exchange,
		Symbol:    book.Symbol,
		Bids:      book.Bids,
		Asks:      book.Asks,
		Timestamp: book.Timestamp,
		AgeMillis: age.Milliseconds(),
	}
	if len(book.Bids) > 0 {
		response.BestBidPrice = book.Bids[0].Price
		response.BestBidSize = book.Bids[0].Size
	}
	if len(book.Asks) > 0 {
		response.BestAskPrice = book.Asks[0].Price
		response.BestAskSize = book.Asks[0].Size
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}
