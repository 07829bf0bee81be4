package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Stream errors
var (
	ErrStreamClosed = errors.New("polygon: stream closed")

	// ErrMaxConnections is fatal: the vendor refused the connection
	// because the account's connection budget is exhausted. No automatic
	// retry is attempted for this code.
	ErrMaxConnections = errors.New("polygon: max connections exceeded")
)

// StreamState is the lifecycle state of a stream connection.
type StreamState int32

const (
	StateDisconnected StreamState = iota
	StateConnecting
	StateAuthenticated
	StateSubscribed
)

func (s StreamState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// TradeEvent is a real-time option trade from the stream.
type TradeEvent struct {
	Event          string  `json:"ev"`
	Symbol         string  `json:"sym"`
	Exchange       int     `json:"x"`
	Price          float64 `json:"p"`
	Size           float64 `json:"s"`
	Conditions     []int   `json:"c"`
	Timestamp      int64   `json:"t"` // milliseconds
	SequenceNumber int64   `json:"q"`
}

// statusEvent is a control message from the stream.
type statusEvent struct {
	Event   string `json:"ev"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// streamFrame is one element of an incoming message array, decoded in two
// steps so trade and status events can share the wire.
type streamFrame struct {
	Event string `json:"ev"`
}

// StreamConfig configures a stream connection.
type StreamConfig struct {
	URL          string        // WebSocket URL (e.g., wss://socket.polygon.io/options)
	APIKey       string        // Sent in the auth frame after connect
	Subscription string        // Channel params, e.g. "T.*"
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Trade channel buffer size
}

// DefaultStreamConfig returns sensible defaults subscribing to all option
// trades; client-side filters narrow to the configured underlyings.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Subscription: "T.*",
		WriteTimeout: 5 * time.Second,
		BufferSize:   10000,
	}
}

// StreamClient is a single WebSocket connection to the options stream.
// It is single-use: after Close or a read failure a new client must be
// created. Reconnect policy lives with the supervisor that owns it.
type StreamClient struct {
	cfg    StreamConfig
	logger *slog.Logger

	conn *websocket.Conn

	trades chan TradeEvent
	errors chan error
	done   chan struct{}

	writeMu sync.Mutex

	state         atomic.Int32
	lastMessageAt atomic.Int64 // UnixNano

	mu     sync.Mutex
	closed bool
}

// NewStreamClient creates a stream client.
func NewStreamClient(cfg StreamConfig, logger *slog.Logger) *StreamClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Subscription == "" {
		cfg.Subscription = "T.*"
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 10000
	}
	return &StreamClient{
		cfg:    cfg,
		logger: logger,
		trades: make(chan TradeEvent, cfg.BufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Connect dials the stream and sends the auth frame. Authentication and
// subscription complete asynchronously; watch State for progress.
func (s *StreamClient) Connect(ctx context.Context) error {
	s.state.Store(int32(StateConnecting))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		s.state.Store(int32(StateDisconnected))
		return err
	}

	s.conn = conn
	s.touch()

	go s.readLoop()

	if err := s.send(map[string]string{"action": "auth", "params": s.cfg.APIKey}); err != nil {
		s.Close()
		return err
	}

	s.logger.Debug("stream connected", "url", s.cfg.URL)
	return nil
}

// Close tears the connection down. Safe to call twice.
func (s *StreamClient) Close() error {
	if !s.shutdown() {
		return nil
	}

	if s.conn != nil {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return s.conn.Close()
	}
	return nil
}

// shutdown marks the client closed and releases done. Reports whether this
// call performed the transition.
func (s *StreamClient) shutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.state.Store(int32(StateDisconnected))
	close(s.done)
	return true
}

// Trades returns the channel of incoming trade events.
func (s *StreamClient) Trades() <-chan TradeEvent {
	return s.trades
}

// Errors returns the channel of connection errors.
func (s *StreamClient) Errors() <-chan error {
	return s.errors
}

// Done is closed when the connection is torn down, by Close or by a read
// failure. Consumers must select on it alongside Trades and Errors: the
// event channels stay open after teardown and will never fire again.
func (s *StreamClient) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *StreamClient) State() StreamState {
	return StreamState(s.state.Load())
}

// Open reports whether the socket reached at least the authenticated state
// and has not been closed.
func (s *StreamClient) Open() bool {
	st := s.State()
	return st == StateAuthenticated || st == StateSubscribed
}

// LastMessageAt returns when the last message of any kind arrived.
func (s *StreamClient) LastMessageAt() time.Time {
	return time.Unix(0, s.lastMessageAt.Load())
}

func (s *StreamClient) touch() {
	s.lastMessageAt.Store(time.Now().UnixNano())
}

func (s *StreamClient) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads message arrays and dispatches trade and status events.
func (s *StreamClient) readLoop() {
	defer s.state.Store(int32(StateDisconnected))

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				select {
				case s.errors <- err:
				default:
				}
				s.shutdown()
			}
			return
		}

		s.touch()
		s.dispatch(data)
	}
}

// dispatch decodes one wire message. Messages arrive as JSON arrays of
// events; a bare object is treated as a single-element array.
func (s *StreamClient) dispatch(data []byte) {
	var frames []json.RawMessage
	if err := json.Unmarshal(data, &frames); err != nil {
		frames = []json.RawMessage{data}
	}

	for _, raw := range frames {
		var frame streamFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Warn("unparseable stream frame", "error", err)
			continue
		}

		switch frame.Event {
		case "T":
			var trade TradeEvent
			if err := json.Unmarshal(raw, &trade); err != nil {
				s.logger.Warn("unparseable trade event", "error", err)
				continue
			}
			select {
			case s.trades <- trade:
			case <-s.done:
				return
			default:
				s.logger.Warn("trade buffer full, dropping event", "symbol", trade.Symbol)
			}
		case "status":
			var status statusEvent
			if err := json.Unmarshal(raw, &status); err != nil {
				continue
			}
			s.handleStatus(status)
		}
	}
}

func (s *StreamClient) handleStatus(status statusEvent) {
	switch status.Status {
	case "auth_success":
		s.state.Store(int32(StateAuthenticated))
		s.logger.Info("stream authenticated")

		if err := s.send(map[string]string{"action": "subscribe", "params": s.cfg.Subscription}); err != nil {
			select {
			case s.errors <- err:
			default:
			}
			return
		}
		s.state.Store(int32(StateSubscribed))
		s.logger.Info("stream subscribed", "params", s.cfg.Subscription)

	case "auth_failed":
		select {
		case s.errors <- errors.New("polygon: authentication failed: " + status.Message):
		default:
		}

	case "max_connections":
		select {
		case s.errors <- ErrMaxConnections:
		default:
		}

	case "connected", "success":
		s.logger.Debug("stream status", "status", status.Status, "message", status.Message)
	}
}
