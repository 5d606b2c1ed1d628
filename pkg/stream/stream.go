// Package stream implements a reconnecting client for the backend's
// streaming query endpoint. A Subscriber owns one logical subscription:
// it dials the WebSocket transport, dispatches inbound messages to
// caller-supplied handlers, and re-establishes the connection with capped
// exponential backoff when it is lost unexpectedly.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/netsight-io/netsight/pkg/models"
)

// State is the transport lifecycle state of a subscription.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Close codes at or above this are application-level rejections
// (authentication, authorization, quota). They are never retried.
const rejectionThreshold websocket.StatusCode = 4000

const (
	defaultBaseDelay   = time.Second
	defaultMaxAttempts = 5
	defaultMaxDelay    = 30 * time.Second
)

// Handlers receive subscription events. All invocations happen on the
// subscription's dispatch goroutine, which consumes an ordered event feed
// from the transport reader: handlers never run concurrently, arrival order
// is preserved, and a slow handler delays subsequent messages. Nil handlers
// are skipped.
type Handlers struct {
	OnData       func(payload json.RawMessage)
	OnError      func(message string)
	OnComplete   func()
	OnConnection func(connected bool)
}

// Config holds subscription settings.
type Config struct {
	// URL is the streaming endpoint, e.g. ws://backend/api/stream. The
	// query is appended as a ?query= parameter on each dial.
	URL string
	// BaseDelay seeds the reconnect backoff: attempt n waits
	// BaseDelay * 2^n, capped at MaxDelay. Defaults to 1s.
	BaseDelay time.Duration
	// MaxReconnectAttempts bounds automatic reconnection. Once exhausted
	// the subscription stays closed until Connect is called again.
	// Defaults to 5.
	MaxReconnectAttempts int
	// MaxDelay caps a single backoff delay. Defaults to 30s.
	MaxDelay time.Duration
	// Metrics is shared across subscribers; nil disables collection.
	Metrics *Metrics
}

// wsConn is the subset of *websocket.Conn the subscriber touches. Tests
// substitute fakes.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Close(code websocket.StatusCode, reason string) error
	CloseNow() error
}

type reconnectTimer interface {
	Stop() bool
}

// Subscriber manages one logical subscription to a streamed query result
// set. At most one live transport exists per Subscriber at any time;
// Connect tears down any existing one first. Safe for concurrent use.
type Subscriber struct {
	cfg      Config
	handlers Handlers
	logger   *slog.Logger
	metrics  *Metrics

	mu                 sync.Mutex
	state              State
	conn               wsConn
	ctx                context.Context
	query              string
	attempts           int
	completionReceived bool
	manualClose        bool
	timer              reconnectTimer
	// gen identifies the current logical connection. Events from a
	// superseded transport carry a stale gen and are dropped.
	gen uint64

	// dialFn and timerFn are replaced in tests.
	dialFn  func(ctx context.Context, rawURL string) (wsConn, error)
	timerFn func(d time.Duration, fn func()) reconnectTimer
}

// NewSubscriber creates a subscriber that reports events to handlers.
func NewSubscriber(cfg Config, handlers Handlers) *Subscriber {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxAttempts
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	return &Subscriber{
		cfg:      cfg,
		handlers: handlers,
		logger:   slog.Default(),
		metrics:  cfg.Metrics,
		dialFn:   defaultDial,
		timerFn:  defaultTimer,
	}
}

// Connect opens the subscription for query. A call while a connection
// attempt is already in progress is logged and ignored. Any previous
// transport is torn down first; reconnect attempts and the completion flag
// are reset. The connection is established asynchronously: readiness is
// reported via OnConnection(true).
func (s *Subscriber) Connect(ctx context.Context, query string) {
	s.mu.Lock()
	if s.state == StateConnecting {
		s.logger.Debug("Connect ignored, attempt already in progress", "query", query)
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	old := s.conn
	s.conn = nil
	s.gen++
	gen := s.gen
	s.ctx = ctx
	s.query = query
	s.manualClose = false
	s.completionReceived = false
	s.attempts = 0
	s.state = StateConnecting
	s.mu.Unlock()

	if old != nil {
		_ = old.CloseNow()
	}

	go s.dial(ctx, gen)
}

// Disconnect closes the subscription and suppresses automatic reconnection
// until Connect is called again. Safe to call in any state.
func (s *Subscriber) Disconnect() {
	s.mu.Lock()
	s.manualClose = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	if conn != nil {
		s.state = StateClosing
	}
	s.mu.Unlock()

	if conn == nil {
		return
	}
	s.logger.Debug("Disconnecting stream")
	if err := conn.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
		_ = conn.CloseNow()
	}
}

// IsConnected reports whether the transport is open.
func (s *Subscriber) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateOpen
}

// State returns the current lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subscriber) dial(ctx context.Context, gen uint64) {
	s.mu.Lock()
	rawURL := s.cfg.URL + "?query=" + url.QueryEscape(s.query)
	s.mu.Unlock()

	conn, err := s.dialFn(ctx, rawURL)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.CloseNow()
		}
		return
	}
	if s.manualClose {
		s.state = StateClosed
		s.mu.Unlock()
		if conn != nil {
			_ = conn.CloseNow()
		}
		return
	}
	if err != nil {
		s.state = StateClosed
		s.mu.Unlock()
		s.metrics.dialFailure()
		s.logger.Warn("Stream dial failed", "error", err)
		s.emitError("connection failed: " + err.Error())
		s.emitConnection(false)
		s.maybeReconnect()
		return
	}
	s.conn = conn
	s.state = StateOpen
	s.attempts = 0
	query := s.query
	s.mu.Unlock()

	s.metrics.connected()
	s.logger.Info("Stream connected", "query", query)
	s.emitConnection(true)

	// The reader feeds an ordered event channel; this goroutine becomes the
	// transport's single dispatcher. The close event always arrives last, so
	// a completion frame is processed before the close that follows it.
	events := make(chan transportEvent)
	go readTransport(ctx, conn, events)
	s.dispatchLoop(events, gen)
}

// transportEvent is one item on a connection's event feed: a frame, or the
// terminal read error.
type transportEvent struct {
	frame []byte
	err   error
}

func readTransport(ctx context.Context, conn wsConn, events chan<- transportEvent) {
	defer close(events)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			events <- transportEvent{err: err}
			return
		}
		events <- transportEvent{frame: data}
	}
}

func (s *Subscriber) dispatchLoop(events <-chan transportEvent, gen uint64) {
	for ev := range events {
		if ev.err != nil {
			s.handleClose(ev.err, gen)
			return
		}
		s.dispatch(ev.frame)
	}
}

// dispatch routes one inbound frame by its type field. A frame that fails
// to parse is reported via OnError and discarded.
func (s *Subscriber) dispatch(data []byte) {
	var msg models.StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.metrics.parseFailure()
		s.emitError("failed to parse stream message: " + err.Error())
		return
	}
	s.metrics.message(msg.Type)

	switch msg.Type {
	case models.MessageTypeData:
		if msg.Data != nil && s.handlers.OnData != nil {
			s.handlers.OnData(msg.Data)
		}
	case models.MessageTypeError:
		if msg.Error != "" {
			s.emitError(msg.Error)
		}
	case models.MessageTypeComplete:
		s.mu.Lock()
		s.completionReceived = true
		s.mu.Unlock()
		if s.handlers.OnComplete != nil {
			s.handlers.OnComplete()
		}
	case models.MessageTypePing:
		// Liveness signal only.
	default:
		s.logger.Warn("Unrecognized stream message type", "type", msg.Type)
	}
}

// handleClose classifies a transport loss and decides whether to reconnect.
// OnConnection(false) fires for every close. OnError fires for protocol
// mismatches, server rejections, and abnormal losses; manual disconnects,
// post-completion closes, and clean closures stay silent.
func (s *Subscriber) handleClose(err error, gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	manual := s.manualClose
	completed := s.completionReceived
	s.mu.Unlock()

	if conn != nil {
		_ = conn.CloseNow()
	}

	status := websocket.CloseStatus(err)
	s.metrics.closed(int(status))
	s.emitConnection(false)

	if manual {
		s.logger.Debug("Stream closed after disconnect")
		return
	}

	switch {
	case status == websocket.StatusProtocolError || status == websocket.StatusUnsupportedData:
		s.emitError(fmt.Sprintf("stream protocol mismatch (close code %d)", status))
	case status >= rejectionThreshold:
		s.emitError(rejectionMessage(status, err))
	case status == websocket.StatusNoStatusRcvd || status == websocket.StatusAbnormalClosure || status == -1:
		if completed {
			// The server finished the stream; the sloppy close is expected.
			s.logger.Debug("Stream ended after completion")
			return
		}
		s.logger.Warn("Stream closed abnormally", "code", int(status))
		s.emitError(abnormalMessage(status))
		s.maybeReconnect()
	default:
		s.maybeReconnect()
	}
}

// maybeReconnect schedules the next connection attempt when eligible: the
// close was not manual, no completion was received, and the attempt ceiling
// has not been reached.
func (s *Subscriber) maybeReconnect() {
	s.mu.Lock()
	if s.manualClose || s.completionReceived {
		s.mu.Unlock()
		return
	}
	if s.attempts >= s.cfg.MaxReconnectAttempts {
		attempts := s.attempts
		s.mu.Unlock()
		s.logger.Warn("Reconnect attempts exhausted", "attempts", attempts)
		return
	}
	delay := s.cfg.BaseDelay << s.attempts
	if delay > s.cfg.MaxDelay {
		delay = s.cfg.MaxDelay
	}
	s.attempts++
	attempt := s.attempts
	gen := s.gen
	s.timer = s.timerFn(delay, func() { s.redial(gen) })
	s.mu.Unlock()

	s.metrics.reconnectScheduled()
	s.logger.Info("Reconnect scheduled", "attempt", attempt, "delay", delay)
}

func (s *Subscriber) redial(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.manualClose {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.state = StateConnecting
	ctx := s.ctx
	attempt := s.attempts
	s.mu.Unlock()

	s.logger.Info("Reconnecting stream", "attempt", attempt)
	s.dial(ctx, gen)
}

func (s *Subscriber) emitError(msg string) {
	if s.handlers.OnError != nil {
		s.handlers.OnError(msg)
	}
}

func (s *Subscriber) emitConnection(connected bool) {
	if s.handlers.OnConnection != nil {
		s.handlers.OnConnection(connected)
	}
}

func rejectionMessage(status websocket.StatusCode, err error) string {
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Reason != "" {
		return fmt.Sprintf("stream rejected by server (close code %d): %s", status, closeErr.Reason)
	}
	return fmt.Sprintf("stream rejected by server (close code %d)", status)
}

func abnormalMessage(status websocket.StatusCode) string {
	if status < 0 {
		return "connection lost unexpectedly"
	}
	return fmt.Sprintf("connection lost unexpectedly (close code %d)", status)
}

func defaultDial(ctx context.Context, rawURL string) (wsConn, error) {
	conn, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func defaultTimer(d time.Duration, fn func()) reconnectTimer {
	return time.AfterFunc(d, fn)
}
