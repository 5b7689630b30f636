package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// codeInvalidSymbol is the venue error code for an unlisted symbol.
const codeInvalidSymbol = -1121

// RESTConfig holds REST connector configuration.
type RESTConfig struct {
	Name    string
	BaseURL string
	// Futures selects the perpetual endpoints (/fapi/v1) for books and tickers.
	Futures bool
	// FuturesBaseURL serves funding rates. Defaults to BaseURL.
	FuturesBaseURL string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Logger         *zap.Logger
	Clock          func() time.Time
}

// REST polls a Binance-style public REST API.
type REST struct {
	name       string
	baseURL    string
	futuresURL string
	futures    bool
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewREST creates a REST connector.
func NewREST(cfg *RESTConfig) *REST {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	futuresURL := cfg.FuturesBaseURL
	if futuresURL == "" {
		futuresURL = cfg.BaseURL
	}

	return &REST{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		futuresURL: futuresURL,
		futures:    cfg.Futures,
		httpClient: client,
		logger:     logger,
		now:        now,
	}
}

// Name returns the exchange name snapshots are stamped with.
func (r *REST) Name() string {
	return r.name
}

type depthResponse struct {
	LastUpdateID int64               `json:"lastUpdateId"`
	Bids         [][]decimal.Decimal `json:"bids"`
	Asks         [][]decimal.Decimal `json:"asks"`
}

type bookTickerResponse struct {
	Symbol   string          `json:"symbol"`
	BidPrice decimal.Decimal `json:"bidPrice"`
	BidQty   decimal.Decimal `json:"bidQty"`
	AskPrice decimal.Decimal `json:"askPrice"`
	AskQty   decimal.Decimal `json:"askQty"`
}

type premiumIndexResponse struct {
	Symbol          string          `json:"symbol"`
	MarkPrice       decimal.Decimal `json:"markPrice"`
	LastFundingRate decimal.Decimal `json:"lastFundingRate"`
	NextFundingTime int64           `json:"nextFundingTime"`
	Time            int64           `json:"time"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// FetchOrderBook fetches a partial book of depth levels per side.
func (r *REST) FetchOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBook, error) {
	path := "/api/v3/depth"
	if r.futures {
		path = "/fapi/v1/depth"
	}
	params := url.Values{}
	params.Set("symbol", VenueSymbol(symbol))
	params.Set("limit", strconv.Itoa(roundDepth(depth, restDepths)))

	var resp depthResponse
	err := r.get(ctx, r.baseURL+path, params, &resp)
	if err != nil {
		return types.OrderBook{}, fmt.Errorf("fetch order book %s/%s: %w", r.name, symbol, err)
	}

	book, err := decodeDepth(r.name, symbol, &resp, r.now(), depth)
	if err != nil {
		return types.OrderBook{}, fmt.Errorf("fetch order book %s/%s: %w", r.name, symbol, err)
	}
	return book, nil
}

// FetchTicker fetches the best bid and ask.
func (r *REST) FetchTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	path := "/api/v3/ticker/bookTicker"
	if r.futures {
		path = "/fapi/v1/ticker/bookTicker"
	}
	params := url.Values{}
	params.Set("symbol", VenueSymbol(symbol))

	var resp bookTickerResponse
	err := r.get(ctx, r.baseURL+path, params, &resp)
	if err != nil {
		return types.Ticker{}, fmt.Errorf("fetch ticker %s/%s: %w", r.name, symbol, err)
	}

	return types.Ticker{
		Exchange:  r.name,
		Symbol:    symbol,
		BidPrice:  resp.BidPrice,
		BidSize:   resp.BidQty,
		AskPrice:  resp.AskPrice,
		AskSize:   resp.AskQty,
		Timestamp: r.now(),
	}, nil
}

// FetchFundingRate fetches the perpetual's current funding rate.
func (r *REST) FetchFundingRate(ctx context.Context, symbol string) (types.FundingRate, error) {
	params := url.Values{}
	params.Set("symbol", VenueSymbol(symbol))

	var resp premiumIndexResponse
	err := r.get(ctx, r.futuresURL+"/fapi/v1/premiumIndex", params, &resp)
	if err != nil {
		return types.FundingRate{}, fmt.Errorf("fetch funding rate %s/%s: %w", r.name, symbol, err)
	}

	return types.FundingRate{
		Exchange:        r.name,
		Symbol:          symbol,
		Rate:            resp.LastFundingRate,
		MarkPrice:       resp.MarkPrice,
		NextFundingTime: time.UnixMilli(resp.NextFundingTime).UTC(),
		Timestamp:       r.now(),
	}, nil
}

func (r *REST) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	requestURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "arbitrage-app/1.0")

	r.logger.Debug("rest-request", zap.String("exchange", r.name), zap.String("url", requestURL))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: do request: %v", types.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response body: %v", types.ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, body)
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// statusError classifies a non-200 response: throttling and server errors
// are transient, an invalid symbol is unsupported.
func statusError(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot || status >= 500:
		return fmt.Errorf("%w: status %d", types.ErrTransient, status)
	case status == http.StatusBadRequest && apiErr.Code == codeInvalidSymbol:
		return fmt.Errorf("%w: %s", types.ErrUnsupportedSymbol, apiErr.Msg)
	default:
		return fmt.Errorf("unexpected status code %d: %s", status, string(body))
	}
}

// decodeDepth converts a partial depth payload into a validated book of at
// most depth levels per side.
func decodeDepth(exchange, symbol string, d *depthResponse, ts time.Time, depth int) (types.OrderBook, error) {
	bids, err := levels(d.Bids, depth)
	if err != nil {
		return types.OrderBook{}, err
	}
	asks, err := levels(d.Asks, depth)
	if err != nil {
		return types.OrderBook{}, err
	}

	book := types.OrderBook{
		Exchange:  exchange,
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
	}
	err = book.Validate()
	if err != nil {
		return types.OrderBook{}, err
	}
	return book, nil
}

var errMalformedLevel = errors.New("malformed price level")

func levels(raw [][]decimal.Decimal, depth int) ([]types.PriceLevel, error) {
	if depth > 0 && len(raw) > depth {
		raw = raw[:depth]
	}
	out := make([]types.PriceLevel, 0, len(raw))
	for i, lvl := range raw {
		if len(lvl) < 2 {
			return nil, fmt.Errorf("%w: %w at %d", types.ErrInvalidInput, errMalformedLevel, i)
		}
		out = append(out, types.PriceLevel{Price: lvl[0], Size: lvl[1]})
	}
	return out, nil
}
