package source

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/manslikestiffler/smart-granary/pkg/parser"
)

// Reconnect defaults for the realtime feed
const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultMaxRetries     = 5
)

// WebSocketSource subscribes to a realtime reading feed and reconnects when
// the connection drops
type WebSocketSource struct {
	url            string
	dialer         *websocket.Dialer
	parser         parser.Parser
	reconnectDelay time.Duration
	maxRetries     int
}

// WebSocketOption configures a WebSocketSource
type WebSocketOption func(*WebSocketSource)

// WithReconnectDelay sets the wait between connection attempts
func WithReconnectDelay(d time.Duration) WebSocketOption {
	return func(s *WebSocketSource) {
		s.reconnectDelay = d
	}
}

// WithMaxRetries sets how many consecutive failed attempts are tolerated; 0 retries forever
func WithMaxRetries(n int) WebSocketOption {
	return func(s *WebSocketSource) {
		s.maxRetries = n
	}
}

// WithDialer sets a custom websocket dialer
func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(s *WebSocketSource) {
		s.dialer = d
	}
}

// NewWebSocketSource creates a source for the feed at url (ws:// or wss://)
func NewWebSocketSource(url string, opts ...WebSocketOption) *WebSocketSource {
	s := &WebSocketSource{
		url:            url,
		dialer:         websocket.DefaultDialer,
		parser:         &parser.JSONParser{},
		reconnectDelay: DefaultReconnectDelay,
		maxRetries:     DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source identifier
func (s *WebSocketSource) Name() string {
	return "websocket"
}

// Run connects and delivers readings until ctx is done or the retry budget
// is exhausted. A successful connection resets the budget.
func (s *WebSocketSource) Run(ctx context.Context, sink Sink) error {
	failures := 0
	for {
		connected, err := s.session(ctx, sink)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			failures = 0
		} else {
			failures++
		}
		if s.maxRetries > 0 && failures >= s.maxRetries {
			return fmt.Errorf("giving up on %s after %d attempts: %w", s.url, failures, err)
		}

		log.Printf("⚠ WebSocket %s disconnected (%v), reconnecting in %s", s.url, err, s.reconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

// session runs one connection. It reports whether the dial succeeded.
func (s *WebSocketSource) session(ctx context.Context, sink Sink) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	log.Printf("✓ Connected to WebSocket feed %s", s.url)

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		readings, err := s.parser.Parse(message)
		if err != nil {
			log.Printf("⚠ Failed to parse WebSocket message: %v", err)
			continue
		}
		if len(readings) == 0 {
			continue
		}
		sink.HandleBatch(ctx, Batch{Source: s.Name(), Readings: readings})
	}
}
