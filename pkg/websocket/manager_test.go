package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// streamServer echoes one data frame per subscribed stream and reports every
// request it receives. When dropFirst is set the first connection is closed
// after its first request.
type streamServer struct {
	srv         *httptest.Server
	requests    chan request
	connections atomic.Int32
	dropFirst   bool
}

func newStreamServer(t *testing.T, dropFirst bool) *streamServer {
	t.Helper()
	s := &streamServer{requests: make(chan request, 16), dropFirst: dropFirst}
	upgrader := websocket.Upgrader{}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := s.connections.Add(1)

		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req request
			if json.Unmarshal(frame, &req) != nil {
				continue
			}
			s.requests <- req

			ack, _ := json.Marshal(map[string]any{"result": nil, "id": req.ID})
			_ = conn.WriteMessage(websocket.TextMessage, ack)

			if req.Method == "SUBSCRIBE" {
				for _, stream := range req.Params {
					data := `{"stream":"` + stream + `","data":{"lastUpdateId":1,"bids":[["100","1"]],"asks":[["101","1"]]}}`
					_ = conn.WriteMessage(websocket.TextMessage, []byte(data))
				}
			}

			if s.dropFirst && n == 1 {
				return
			}
		}
	}))
	return s
}

func (s *streamServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *streamServer) nextRequest(t *testing.T) request {
	t.Helper()
	select {
	case req := <-s.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request")
		return request{}
	}
}

func testConfig(url string) Config {
	logger, _ := zap.NewDevelopment()
	return Config{
		URL:                   url,
		DialTimeout:           time.Second,
		PingInterval:          time.Second,
		ReconnectInitialDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:     50 * time.Millisecond,
		ReconnectBackoffMult:  2,
		MessageBufferSize:     16,
		Logger:                logger,
	}
}

func nextMessage(t *testing.T, m *Manager) Message {
	t.Helper()
	select {
	case msg := <-m.MessageChan():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestNew(t *testing.T) {
	m := New(Config{URL: "ws://localhost"})

	if m.logger == nil {
		t.Error("expected non-nil logger")
	}
	if m.reconnectMgr == nil {
		t.Error("expected non-nil reconnect manager")
	}
	if cap(m.messageChan) != 1000 {
		t.Errorf("expected default buffer 1000, got %d", cap(m.messageChan))
	}
	if m.IsConnected() {
		t.Error("expected manager to start disconnected")
	}
}

func TestSubscribe_EmptyStreams(t *testing.T) {
	m := New(Config{URL: "ws://localhost"})
	assert.NoError(t, m.Subscribe(context.Background(), nil))
	assert.NoError(t, m.Unsubscribe(context.Background(), nil))
}

func TestSubscribe_NotConnectedRollsBack(t *testing.T) {
	m := New(Config{URL: "ws://localhost"})

	err := m.Subscribe(context.Background(), []string{"btcusdt@depth20@100ms"})

	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.Empty(t, m.Subscriptions())
}

func TestManager_SubscribeAndReceive(t *testing.T) {
	s := newStreamServer(t, false)
	defer s.srv.Close()

	m := New(testConfig(s.url()))
	require.NoError(t, m.Start())
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), []string{"btcusdt@depth20@100ms", "ethusdt@depth20@100ms"}))

	req := s.nextRequest(t)
	assert.Equal(t, "SUBSCRIBE", req.Method)
	assert.Equal(t, []string{"btcusdt@depth20@100ms", "ethusdt@depth20@100ms"}, req.Params)
	assert.Equal(t, int64(1), req.ID)

	first := nextMessage(t, m)
	second := nextMessage(t, m)
	assert.Equal(t, "btcusdt@depth20@100ms", first.Stream)
	assert.Equal(t, "ethusdt@depth20@100ms", second.Stream)
	assert.Contains(t, string(first.Data), "lastUpdateId")
	assert.False(t, first.ReceivedAt.IsZero())
}

func TestManager_SubscribeSkipsDuplicates(t *testing.T) {
	s := newStreamServer(t, false)
	defer s.srv.Close()

	m := New(testConfig(s.url()))
	require.NoError(t, m.Start())
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Subscribe(ctx, []string{"btcusdt@depth20@100ms"}))
	require.NoError(t, m.Subscribe(ctx, []string{"btcusdt@depth20@100ms", "solusdt@depth20@100ms"}))

	s.nextRequest(t)
	req := s.nextRequest(t)
	assert.Equal(t, []string{"solusdt@depth20@100ms"}, req.Params)
	assert.Equal(t, []string{"btcusdt@depth20@100ms", "solusdt@depth20@100ms"}, m.Subscriptions())
}

func TestManager_Unsubscribe(t *testing.T) {
	s := newStreamServer(t, false)
	defer s.srv.Close()

	m := New(testConfig(s.url()))
	require.NoError(t, m.Start())
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Subscribe(ctx, []string{"btcusdt@depth20@100ms"}))
	require.NoError(t, m.Unsubscribe(ctx, []string{"btcusdt@depth20@100ms", "unknown"}))

	s.nextRequest(t)
	req := s.nextRequest(t)
	assert.Equal(t, "UNSUBSCRIBE", req.Method)
	assert.Equal(t, []string{"btcusdt@depth20@100ms"}, req.Params)
	assert.Empty(t, m.Subscriptions())
}

func TestManager_ReconnectResubscribes(t *testing.T) {
	s := newStreamServer(t, true)
	defer s.srv.Close()

	m := New(testConfig(s.url()))
	require.NoError(t, m.Start())
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), []string{"btcusdt@depth20@100ms"}))

	first := s.nextRequest(t)
	assert.Equal(t, "SUBSCRIBE", first.Method)

	again := s.nextRequest(t)
	assert.Equal(t, "SUBSCRIBE", again.Method)
	assert.Equal(t, []string{"btcusdt@depth20@100ms"}, again.Params)
	assert.GreaterOrEqual(t, s.connections.Load(), int32(2))
}

func TestManager_HandleFrame(t *testing.T) {
	m := New(Config{URL: "ws://localhost", MessageBufferSize: 1})

	m.handleFrame([]byte(`{"result":null,"id":7}`))
	m.handleFrame([]byte(`{"error":{"code":2,"msg":"Invalid request"},"id":8}`))
	m.handleFrame([]byte(`not json`))
	assert.Len(t, m.messageChan, 0)

	m.handleFrame([]byte(`{"stream":"a","data":{}}`))
	m.handleFrame([]byte(`{"stream":"b","data":{}}`))
	require.Len(t, m.messageChan, 1)
	assert.Equal(t, "a", (<-m.messageChan).Stream)
}

func TestManager_CloseWithoutStart(t *testing.T) {
	m := New(Config{URL: "ws://localhost"})
	assert.NoError(t, m.Close())

	_, ok := <-m.MessageChan()
	assert.False(t, ok)
}
