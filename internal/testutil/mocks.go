package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
)

// MockBook is a depth payload in venue wire form.
type MockBook struct {
	Bids [][2]string
	Asks [][2]string
}

// MockFunding is a premium index payload in venue wire form.
type MockFunding struct {
	MarkPrice       string
	LastFundingRate string
	NextFundingTime int64
}

// MockExchangeAPI is a mock HTTP server that simulates a Binance-style public
// REST API. Symbols are keyed in venue form ("BTCUSDT").
type MockExchangeAPI struct {
	*httptest.Server
	Requests atomic.Int64

	mu       sync.RWMutex
	books    map[string]MockBook
	funding  map[string]MockFunding
	failures map[string]int
}

// NewMockExchangeAPI creates a new mock exchange server.
func NewMockExchangeAPI() *MockExchangeAPI {
	mock := &MockExchangeAPI{
		books:    make(map[string]MockBook),
		funding:  make(map[string]MockFunding),
		failures: make(map[string]int),
	}

	mock.Server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// SetBook sets the book served for symbol.
func (m *MockExchangeAPI) SetBook(symbol string, book MockBook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[symbol] = book
}

// SetFunding sets the premium index served for symbol.
func (m *MockExchangeAPI) SetFunding(symbol string, f MockFunding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funding[symbol] = f
}

// FailWith makes every request for symbol answer with status.
func (m *MockExchangeAPI) FailWith(symbol string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[symbol] = status
}

func (m *MockExchangeAPI) serve(w http.ResponseWriter, r *http.Request) {
	m.Requests.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbol := r.URL.Query().Get("symbol")
	w.Header().Set("Content-Type", "application/json")

	if status, ok := m.failures[symbol]; ok {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too much request weight used."}`))
		return
	}

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/depth"):
		book, ok := m.books[symbol]
		if !ok {
			invalidSymbol(w)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"lastUpdateId": 1027024,
			"bids":         book.Bids,
			"asks":         book.Asks,
		})
	case strings.HasSuffix(path, "/ticker/bookTicker"):
		book, ok := m.books[symbol]
		if !ok || len(book.Bids) == 0 || len(book.Asks) == 0 {
			invalidSymbol(w)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"symbol":   symbol,
			"bidPrice": book.Bids[0][0],
			"bidQty":   book.Bids[0][1],
			"askPrice": book.Asks[0][0],
			"askQty":   book.Asks[0][1],
		})
	case strings.HasSuffix(path, "/premiumIndex"):
		f, ok := m.funding[symbol]
		if !ok {
			invalidSymbol(w)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"symbol":          symbol,
			"markPrice":       f.MarkPrice,
			"lastFundingRate": f.LastFundingRate,
			"nextFundingTime": f.NextFundingTime,
			"time":            f.NextFundingTime - 3600000,
		})
	default:
		http.NotFound(w, r)
	}
}

func invalidSymbol(w http.ResponseWriter) {
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
}
