package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// wsServer upgrades incoming connections and hands them to handler.
type wsServer struct {
	*httptest.Server
	url string
}

func newWSServer(t *testing.T, handler func(*gws.Conn)) *wsServer {
	t.Helper()
	upgrader := gws.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return &wsServer{Server: server, url: "ws" + strings.TrimPrefix(server.URL, "http")}
}

// holdOpen blocks until the peer closes the connection, so the test
// server's handler returns and Close does not hang.
func holdOpen(conn *gws.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func newTestManager(t *testing.T, url string) *Manager {
	t.Helper()
	return New(Config{
		URL:                   url,
		DialTimeout:           time.Second,
		PingInterval:          time.Minute,
		ReconnectInitialDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:     50 * time.Millisecond,
		ReconnectBackoffMult:  2,
		MessageBufferSize:     16,
		Logger:                zaptest.NewLogger(t),
	})
}

func TestManagerReceivesOrderbookFrames(t *testing.T) {
	server := newWSServer(t, func(conn *gws.Conn) {
		// Control frame and heartbeat first, then a data frame.
		_ = conn.WriteMessage(gws.TextMessage, []byte(`{"type":"subscribed"}`))
		_ = conn.WriteMessage(gws.TextMessage, []byte(`[]`))
		_ = conn.WriteMessage(gws.TextMessage,
			[]byte(`[{"event_type":"book","asset_id":"token-yes","bids":[{"price":"0.50","size":"100"}]}]`))
		holdOpen(conn)
	})

	mgr := newTestManager(t, server.url)
	require.NoError(t, mgr.Start())
	defer mgr.Close()

	select {
	case msg := <-mgr.MessageChan():
		assert.Equal(t, "book", msg.EventType)
		assert.Equal(t, "token-yes", msg.AssetID)
		require.Len(t, msg.Bids, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for orderbook message")
	}
}

func TestManagerSubscribePayloads(t *testing.T) {
	var mu sync.Mutex
	var received []map[string]any

	server := newWSServer(t, func(conn *gws.Conn) {
		for {
			var payload map[string]any
			if err := conn.ReadJSON(&payload); err != nil {
				return
			}
			mu.Lock()
			received = append(received, payload)
			mu.Unlock()
		}
	})

	mgr := newTestManager(t, server.url)
	require.NoError(t, mgr.Start())
	defer mgr.Close()

	ctx := context.Background()
	require.NoError(t, mgr.Subscribe(ctx, []string{"tok-a", "tok-b"}))
	require.NoError(t, mgr.Subscribe(ctx, []string{"tok-b", "tok-c"}))
	require.NoError(t, mgr.Subscribe(ctx, []string{"tok-a"})) // fully duplicate, no message
	require.NoError(t, mgr.Unsubscribe(ctx, []string{"tok-b"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "market", received[0]["type"], "first subscribe opens the channel")
	assert.Equal(t, "subscribe", received[1]["operation"])
	assert.Equal(t, []any{"tok-c"}, received[1]["assets_ids"], "already-held tokens filtered")
	assert.Equal(t, "unsubscribe", received[2]["operation"])
}

func TestManagerDropsWhenBufferFull(t *testing.T) {
	done := make(chan struct{})
	server := newWSServer(t, func(conn *gws.Conn) {
		for i := 0; i < 5; i++ {
			_ = conn.WriteMessage(gws.TextMessage,
				[]byte(`[{"event_type":"book","asset_id":"tok"}]`))
		}
		close(done)
		holdOpen(conn)
	})

	mgr := New(Config{
		URL:                   server.url,
		DialTimeout:           time.Second,
		PingInterval:          time.Minute,
		ReconnectInitialDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:     50 * time.Millisecond,
		ReconnectBackoffMult:  2,
		MessageBufferSize:     1,
		Logger:                zaptest.NewLogger(t),
	})
	require.NoError(t, mgr.Start())
	defer mgr.Close()

	<-done
	time.Sleep(100 * time.Millisecond)

	// Buffer holds one message, the rest were dropped without blocking
	// the read loop.
	assert.Len(t, mgr.MessageChan(), 1)
}

func TestBackoffGrowthAndCap(t *testing.T) {
	b := &Backoff{
		Initial:    100 * time.Millisecond,
		Max:        400 * time.Millisecond,
		Multiplier: 2,
	}

	assert.Equal(t, 100*time.Millisecond, b.Next())
	assert.Equal(t, 200*time.Millisecond, b.Next())
	assert.Equal(t, 400*time.Millisecond, b.Next())
	assert.Equal(t, 400*time.Millisecond, b.Next(), "delay caps at Max")

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.Next())
}

func TestBackoffJitterBounds(t *testing.T) {
	b := &Backoff{
		Initial:    100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 1,
		Jitter:     0.5,
	}

	for i := 0; i < 20; i++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}
