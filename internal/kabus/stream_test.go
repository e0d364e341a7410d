package kabus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/morinok/dipbot/internal/types"
)

func TestParsePushPrefersCurrentPrice(t *testing.T) {
	data := []byte(`{"Symbol":"7203","CurrentPrice":1502.5,"CalcPrice":1500,"CurrentPriceTime":"2025-04-07T09:05:12+09:00"}`)

	tick, ok := parsePush(data, time.Now())
	assert.True(t, ok)
	assert.Equal(t, 1502.5, tick.Price)

	want, _ := time.Parse(time.RFC3339, "2025-04-07T09:05:12+09:00")
	assert.True(t, tick.Timestamp.Equal(want))
}

func TestParsePushFallsBackToCalcPrice(t *testing.T) {
	data := []byte(`{"Symbol":"7203","CurrentPrice":null,"CalcPrice":1499.5}`)

	received := time.Now()
	tick, ok := parsePush(data, received)
	assert.True(t, ok)
	assert.Equal(t, 1499.5, tick.Price)
	assert.Equal(t, received, tick.Timestamp, "missing price time falls back to receipt time")
}

func TestParsePushSkipsPricelessAndMalformed(t *testing.T) {
	_, ok := parsePush([]byte(`{"Symbol":"7203","CurrentPrice":null,"CalcPrice":null}`), time.Now())
	assert.False(t, ok)

	_, ok = parsePush([]byte(`not json`), time.Now())
	assert.False(t, ok)
}

func TestParsePushBadTimestampUsesReceiptTime(t *testing.T) {
	data := []byte(`{"CurrentPrice":1500,"CurrentPriceTime":"yesterday"}`)

	received := time.Now()
	tick, ok := parsePush(data, received)
	assert.True(t, ok)
	assert.Equal(t, received, tick.Timestamp)
}

// pushServer upgrades each request and hands the connection and its ordinal
// to the handler.
func pushServer(t *testing.T, handler func(conn *websocket.Conn, n int)) *httptest.Server {
	t.Helper()
	var upgrader websocket.Upgrader
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn, int(atomic.AddInt32(&calls, 1)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func shortReconnects(t *testing.T) {
	t.Helper()
	delay, attempts := reconnectDelay, reconnectAttempts
	reconnectDelay = 5 * time.Millisecond
	reconnectAttempts = 3
	t.Cleanup(func() {
		reconnectDelay = delay
		reconnectAttempts = attempts
	})
}

func TestStreamReconnectsAfterDrop(t *testing.T) {
	shortReconnects(t)
	srv := pushServer(t, func(conn *websocket.Conn, n int) {
		if n == 1 {
			conn.Close() // drop the first connection without a close frame
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"CurrentPrice":1500}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ticks := make(chan types.Tick, 1)
	s := NewStream(wsURL(srv), func(tk types.Tick) {
		select {
		case ticks <- tk:
		default:
		}
	})
	assert.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	select {
	case tk := <-ticks:
		assert.Equal(t, 1500.0, tk.Price)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick delivered after the reconnect")
	}
}

func TestStreamSurfacesErrorWhenReconnectExhausts(t *testing.T) {
	shortReconnects(t)
	srv := pushServer(t, func(conn *websocket.Conn, n int) {
		conn.Close()
	})

	s := NewStream(wsURL(srv), func(types.Tick) {})
	assert.NoError(t, s.Connect(context.Background()))
	defer s.Close()
	srv.Close() // every redial now fails

	select {
	case err := <-s.Err():
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "push feed lost")
	case <-time.After(2 * time.Second):
		t.Fatal("no feed error surfaced")
	}
}
