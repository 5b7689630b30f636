package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/digitalrebelz/arbitrage-app/pkg/websocket"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// BookSink receives decoded order books.
type BookSink interface {
	PutOrderBook(b types.OrderBook)
}

// StreamConfig holds depth stream configuration.
type StreamConfig struct {
	// Exchange is the name books are stored under.
	Exchange string
	URL      string
	Symbols  []string
	Depth    int
	// UpdateInterval is the stream's push interval suffix, e.g. "100ms".
	UpdateInterval        string
	DialTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	Logger                *zap.Logger
	Clock                 func() time.Time
}

// Stream subscribes to partial depth snapshots and writes every decoded book
// straight into the sink.
type Stream struct {
	exchange string
	depth    int
	logger   *zap.Logger
	now      func() time.Time
	manager  *websocket.Manager
	sink     BookSink
	streams  map[string]string // stream name -> symbol
	wg       sync.WaitGroup
}

// NewStream creates a depth stream for cfg.Symbols.
func NewStream(cfg *StreamConfig, sink BookSink) *Stream {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	depth := roundDepth(cfg.Depth, streamDepths)
	interval := cfg.UpdateInterval
	if interval == "" {
		interval = "100ms"
	}

	streams := make(map[string]string, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		streams[StreamName(symbol, depth, interval)] = symbol
	}

	return &Stream{
		exchange: cfg.Exchange,
		depth:    depth,
		logger:   logger,
		now:      now,
		sink:     sink,
		streams:  streams,
		manager: websocket.New(websocket.Config{
			URL:                   cfg.URL,
			DialTimeout:           cfg.DialTimeout,
			PingInterval:          cfg.PingInterval,
			ReconnectInitialDelay: cfg.ReconnectInitialDelay,
			ReconnectMaxDelay:     cfg.ReconnectMaxDelay,
			ReconnectBackoffMult:  2,
			MessageBufferSize:     len(streams) * 64,
			Logger:                logger,
		}),
	}
}

// Streams returns the subscribed stream names, sorted.
func (s *Stream) Streams() []string {
	out := make([]string, 0, len(s.streams))
	for name := range s.streams {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Start connects, subscribes and starts decoding.
func (s *Stream) Start(ctx context.Context) error {
	s.logger.Info("depth-stream-starting",
		zap.String("exchange", s.exchange),
		zap.Int("streams", len(s.streams)))

	err := s.manager.Start()
	if err != nil {
		return fmt.Errorf("start depth stream: %w", err)
	}

	err = s.manager.Subscribe(ctx, s.Streams())
	if err != nil {
		_ = s.manager.Close()
		return fmt.Errorf("subscribe depth streams: %w", err)
	}

	s.wg.Add(1)
	go s.consume()

	return nil
}

// consume runs until the manager closes its message channel.
func (s *Stream) consume() {
	defer s.wg.Done()

	for msg := range s.manager.MessageChan() {
		book, err := s.decode(&msg)
		if err != nil {
			s.logger.Debug("depth-stream-decode-failed",
				zap.String("stream", msg.Stream),
				zap.Error(err))
			StreamBooksTotal.WithLabelValues(s.exchange, "invalid").Inc()
			continue
		}
		s.sink.PutOrderBook(book)
		StreamBooksTotal.WithLabelValues(s.exchange, "ok").Inc()
	}
}

func (s *Stream) decode(msg *websocket.Message) (types.OrderBook, error) {
	symbol, ok := s.streams[msg.Stream]
	if !ok {
		return types.OrderBook{}, fmt.Errorf("%w: unknown stream %q", types.ErrInvalidInput, msg.Stream)
	}

	var d depthResponse
	err := json.Unmarshal(msg.Data, &d)
	if err != nil {
		return types.OrderBook{}, fmt.Errorf("unmarshal depth: %w", err)
	}

	return decodeDepth(s.exchange, symbol, &d, s.now(), s.depth)
}

// Close stops the connection and waits for decoding to drain.
func (s *Stream) Close() error {
	err := s.manager.Close()
	s.wg.Wait()
	s.logger.Info("depth-stream-closed", zap.String("exchange", s.exchange))
	return err
}
