package kabus

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/morinok/dipbot/internal/types"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
	dialTimeout  = 10 * time.Second
)

// Reconnect policy after a mid-session read failure. Vars so tests can
// shorten the delay.
var (
	reconnectAttempts = 5
	reconnectDelay    = 3 * time.Second
)

// pushMessage is one board update from the push feed. Fields are pointers
// because kabu station sends explicit nulls outside continuous trading.
type pushMessage struct {
	Symbol           string   `json:"Symbol"`
	CurrentPrice     *float64 `json:"CurrentPrice"`
	CalcPrice        *float64 `json:"CalcPrice"`
	CurrentPriceTime *string  `json:"CurrentPriceTime"`
}

// Stream delivers price ticks from the kabu station push feed. The handler is
// invoked from the read goroutine; it must only hand the tick off, never
// block. A dropped connection is redialed a bounded number of times; when the
// attempts exhaust the failure is published on Err.
type Stream struct {
	url     string
	handler func(types.Tick)

	mu        sync.Mutex
	conn      *websocket.Conn
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewStream(url string, handler func(types.Tick)) *Stream {
	return &Stream{
		url:     url,
		handler: handler,
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Connect dials the push feed and starts the read and keepalive loops.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to push feed %s: %w", s.url, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	kabusLog.Info("push feed connected", "url", s.url)

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()
	return nil
}

// Err reports an unrecoverable feed failure. At most one error is delivered.
func (s *Stream) Err() <-chan error {
	return s.errs
}

func (s *Stream) readLoop() {
	defer s.wg.Done()
	for {
		_, data, err := s.current().ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			kabusLog.Error("push feed read failed", "error", err)
			if !s.reconnect() {
				select {
				case <-s.done:
				default:
					s.errs <- fmt.Errorf("push feed lost after %d reconnect attempts: %w",
						reconnectAttempts, err)
				}
				return
			}
			continue
		}

		tick, ok := parsePush(data, time.Now())
		if !ok {
			kabusLog.Debug("discarding push message without a price")
			continue
		}
		s.handler(tick)
	}
}

// reconnect redials until a connection is established or the attempts
// exhaust. Returns false when the stream is closing or no dial succeeded.
func (s *Stream) reconnect() bool {
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		select {
		case <-s.done:
			return false
		case <-time.After(reconnectDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		cancel()
		if err != nil {
			kabusLog.Warn("push feed reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		s.mu.Lock()
		old := s.conn
		s.conn = conn
		s.mu.Unlock()
		old.Close()
		kabusLog.Info("push feed reconnected", "attempt", attempt)
		return true
	}
	return false
}

func (s *Stream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Stream) pingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := s.current().WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				kabusLog.Warn("keepalive ping failed", "error", err)
			}
		}
	}
}

// parsePush extracts a tick from one push message. CurrentPrice is preferred;
// CalcPrice covers auction phases where no trade has printed yet. Messages
// carrying neither, or that fail to decode, are skipped.
func parsePush(data []byte, receivedAt time.Time) (types.Tick, bool) {
	var msg pushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		kabusLog.Debug("discarding malformed push message", "error", err)
		return types.Tick{}, false
	}

	var price float64
	switch {
	case msg.CurrentPrice != nil:
		price = *msg.CurrentPrice
	case msg.CalcPrice != nil:
		price = *msg.CalcPrice
	default:
		return types.Tick{}, false
	}

	ts := receivedAt
	if msg.CurrentPriceTime != nil {
		if parsed, err := time.Parse(time.RFC3339, *msg.CurrentPriceTime); err == nil {
			ts = parsed
		}
	}
	return types.Tick{Timestamp: ts, Price: price}, true
}

// Close sends a close frame and tears the connection down. Safe to call more
// than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		conn := s.current()
		if conn == nil {
			return
		}
		deadline := time.Now().Add(writeTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil {
			kabusLog.Debug("close frame write failed", "error", werr)
		}
		err = conn.Close()
		s.wg.Wait()
		kabusLog.Info("push feed closed")
	})
	return err
}
