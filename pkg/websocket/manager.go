// Package websocket maintains a combined-stream market data connection:
// SUBSCRIBE/UNSUBSCRIBE requests, keepalive pings and reconnection with
// resubscription.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by writes issued while no connection is open.
var ErrNotConnected = errors.New("websocket not connected")

// Message is one data frame of a combined stream.
type Message struct {
	Stream     string
	Data       json.RawMessage
	ReceivedAt time.Time
}

// envelope covers both data frames and request acknowledgements.
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
	ID     *int64          `json:"id"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

type request struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Manager manages a single combined-stream connection.
type Manager struct {
	url          string
	logger       *zap.Logger
	reconnectMgr *ReconnectManager
	config       Config
	messageChan  chan Message
	lost         chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	mu         sync.RWMutex
	conn       *websocket.Conn
	subscribed map[string]bool

	writeMu         sync.Mutex
	requestID       atomic.Int64
	connected       atomic.Bool
	lastPongTime    atomic.Int64
	connectionStart atomic.Int64
}

// Config holds stream manager configuration.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	Logger                *zap.Logger
}

// New creates a stream manager. Nothing is dialled until Start.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		url:    cfg.URL,
		logger: cfg.Logger,
		reconnectMgr: NewReconnectManager(ReconnectConfig{
			InitialDelay:      cfg.ReconnectInitialDelay,
			MaxDelay:          cfg.ReconnectMaxDelay,
			BackoffMultiplier: cfg.ReconnectBackoffMult,
			JitterPercent:     0.2,
		}, cfg.Logger),
		config:      cfg,
		messageChan: make(chan Message, cfg.MessageBufferSize),
		lost:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		subscribed:  make(map[string]bool),
	}
}

// Start dials the stream and starts the read, ping and reconnect loops.
func (m *Manager) Start() error {
	m.logger.Info("websocket-manager-starting", zap.String("url", m.url))

	err := m.connect(m.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	m.wg.Add(3)
	go m.readLoop()
	go m.pingLoop()
	go m.reconnectLoop()

	return nil
}

func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: m.config.DialTimeout}

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.url, err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPongTime.Store(time.Now().Unix())
		return nil
	})

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	now := time.Now()
	m.connected.Store(true)
	m.lastPongTime.Store(now.Unix())
	m.connectionStart.Store(now.Unix())
	ActiveConnections.Set(1)

	m.logger.Info("websocket-connected", zap.String("url", m.url))
	return nil
}

// Subscribe adds streams to the connection. Already subscribed streams are
// skipped; on a failed write the new ones are rolled back.
func (m *Manager) Subscribe(ctx context.Context, streams []string) error {
	if len(streams) == 0 {
		return nil
	}

	m.mu.Lock()
	added := make([]string, 0, len(streams))
	for _, s := range streams {
		if !m.subscribed[s] {
			added = append(added, s)
			m.subscribed[s] = true
		}
	}
	total := len(m.subscribed)
	m.mu.Unlock()

	if len(added) == 0 {
		m.logger.Debug("all-streams-already-subscribed")
		return nil
	}

	err := m.send(ctx, "SUBSCRIBE", added)
	if err != nil {
		m.mu.Lock()
		for _, s := range added {
			delete(m.subscribed, s)
		}
		total = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(total))
		return fmt.Errorf("subscribe: %w", err)
	}

	SubscriptionCount.Set(float64(total))
	m.logger.Info("subscribed-to-streams",
		zap.Int("new-count", len(added)),
		zap.Int("total-count", total))
	return nil
}

// Unsubscribe removes streams from the connection.
func (m *Manager) Unsubscribe(ctx context.Context, streams []string) error {
	if len(streams) == 0 {
		return nil
	}

	m.mu.Lock()
	removed := make([]string, 0, len(streams))
	for _, s := range streams {
		if m.subscribed[s] {
			removed = append(removed, s)
			delete(m.subscribed, s)
		}
	}
	total := len(m.subscribed)
	m.mu.Unlock()

	if len(removed) == 0 {
		m.logger.Debug("no-streams-to-unsubscribe")
		return nil
	}

	err := m.send(ctx, "UNSUBSCRIBE", removed)
	if err != nil {
		m.mu.Lock()
		for _, s := range removed {
			m.subscribed[s] = true
		}
		total = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(total))
		return fmt.Errorf("unsubscribe: %w", err)
	}

	SubscriptionCount.Set(float64(total))
	UnsubscriptionsTotal.Inc()
	m.logger.Info("unsubscribed-from-streams",
		zap.Int("count", len(removed)),
		zap.Int("remaining-count", total))
	return nil
}

// Subscriptions returns the subscribed stream names, sorted.
func (m *Manager) Subscriptions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.subscribed))
	for s := range m.subscribed {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// send writes a request frame. gorilla allows a single concurrent writer.
func (m *Manager) send(ctx context.Context, method string, params []string) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil || !m.connected.Load() {
		return ErrNotConnected
	}

	req := request{Method: method, Params: params, ID: m.requestID.Add(1)}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(m.config.DialTimeout)
	}
	_ = conn.SetWriteDeadline(deadline)

	err = conn.WriteMessage(websocket.TextMessage, payload)
	if err != nil {
		return fmt.Errorf("write %s request: %w", method, err)
	}
	return nil
}

func (m *Manager) readLoop() {
	defer m.wg.Done()

	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if m.ctx.Err() == nil {
				m.logger.Warn("read-error", zap.Error(err))
			}
			m.markLost()
			return
		}
		m.handleFrame(frame)
	}
}

func (m *Manager) handleFrame(frame []byte) {
	var env envelope
	err := json.Unmarshal(frame, &env)
	if err != nil {
		m.logger.Debug("websocket-unparseable-message",
			zap.Error(err),
			zap.Int("bytes", len(frame)))
		MessagesDroppedTotal.WithLabelValues("unparseable").Inc()
		return
	}

	if env.Stream == "" {
		MessagesReceivedTotal.WithLabelValues("control").Inc()
		if env.Error != nil {
			m.logger.Warn("websocket-request-rejected",
				zap.Int("code", env.Error.Code),
				zap.String("message", env.Error.Msg))
			return
		}
		m.logger.Debug("websocket-control-message", zap.Int("bytes", len(frame)))
		return
	}

	MessagesReceivedTotal.WithLabelValues("data").Inc()
	msg := Message{Stream: env.Stream, Data: env.Data, ReceivedAt: time.Now()}

	select {
	case m.messageChan <- msg:
	default:
		m.logger.Warn("message-channel-full", zap.String("stream", env.Stream))
		MessagesDroppedTotal.WithLabelValues("channel_full").Inc()
	}
}

func (m *Manager) markLost() {
	start := m.connectionStart.Load()
	if start > 0 {
		ConnectionDuration.Observe(time.Since(time.Unix(start, 0)).Seconds())
	}

	m.connected.Store(false)
	ActiveConnections.Set(0)

	select {
	case m.lost <- struct{}{}:
	default:
	}
}

func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.lost:
		}

		m.logger.Warn("connection-lost-initiating-reconnect")

		err := m.reconnectMgr.Reconnect(m.ctx, m.connect)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}
		if m.ctx.Err() != nil {
			m.closeConn()
			return
		}

		m.wg.Add(1)
		go m.readLoop()

		err = m.resubscribeAll(m.ctx)
		if err != nil {
			m.logger.Error("resubscribe-failed", zap.Error(err))
			m.closeConn()
			continue
		}

		m.logger.Info("reconnection-complete")
	}
}

func (m *Manager) resubscribeAll(ctx context.Context) error {
	streams := m.Subscriptions()
	if len(streams) == 0 {
		return nil
	}

	err := m.send(ctx, "SUBSCRIBE", streams)
	if err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}

	m.logger.Info("resubscribed-to-all-streams", zap.Int("count", len(streams)))
	return nil
}

// IsConnected reports whether a connection is currently open.
func (m *Manager) IsConnected() bool {
	return m.connected.Load()
}

// LastPong returns when the server last answered a ping.
func (m *Manager) LastPong() time.Time {
	return time.Unix(m.lastPongTime.Load(), 0)
}

// MessageChan returns the data frame channel. It is closed by Close.
func (m *Manager) MessageChan() <-chan Message {
	return m.messageChan
}

func (m *Manager) closeConn() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn != nil {
		_ = m.conn.Close()
	}
}

// Close stops all loops and closes the connection.
func (m *Manager) Close() error {
	m.logger.Info("closing-websocket-manager")

	m.cancel()
	m.closeConn()
	m.wg.Wait()

	close(m.messageChan)
	m.connected.Store(false)
	ActiveConnections.Set(0)

	m.logger.Info("websocket-manager-closed")
	return nil
}
