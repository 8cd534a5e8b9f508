package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"proposal-prepper/internal/shared/metrics"
	"proposal-prepper/internal/shared/telemetry"
)

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectInterval    = time.Second
	defaultHandshakeTimeout     = 10 * time.Second
	inboxSize                   = 64
	writeWait                   = 5 * time.Second
)

// ErrSocketClosed is returned by Send when no connection is open.
var ErrSocketClosed = errors.New("socket is not connected")

// SocketURL derives the push channel URL from an engine base URL.
func SocketURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// SocketOptions configures a Socket.
type SocketOptions struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
	Header               http.Header
	Dialer               *websocket.Dialer
}

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	typ    MessageType
	fn     func(Message)
	active atomic.Bool
	// mu is read-held while fn runs so Unsubscribe can wait it out.
	mu sync.RWMutex
}

// Active reports whether the subscription still receives messages.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Socket is a single shared push connection with a listener registry.
// Listeners belong to the Socket, not the connection, so they survive
// reconnects without being registered twice.
type Socket struct {
	opts   SocketOptions
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	gen       uint64
	epoch     uint64
	runCtx    context.Context
	runCancel context.CancelFunc
	inbox     chan Message

	writeMu   sync.Mutex
	connected atomic.Bool

	subsMu   sync.RWMutex
	subs     map[MessageType][]*Subscription
	inflight atomic.Pointer[Subscription]
}

// NewSocket builds an unconnected socket.
func NewSocket(opts SocketOptions) *Socket {
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	return &Socket{
		opts:   opts,
		dialer: dialer,
		subs:   make(map[MessageType][]*Subscription),
	}
}

// Open connects if not already connected. Safe to call repeatedly. The dial
// runs without holding the socket lock; a Close issued meanwhile wins and
// Open reports ErrSocketClosed.
func (s *Socket) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	epoch := s.epoch
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrSocketClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	if s.runCancel == nil {
		s.runCtx, s.runCancel = context.WithCancel(context.Background())
		s.inbox = make(chan Message, inboxSize)
		go s.dispatchLoop(s.runCtx, s.inbox)
	}
	s.attachLocked(conn)
	s.mu.Unlock()
	telemetry.Info("socket.connected", map[string]any{"url": s.opts.URL})
	return nil
}

// Close drops the connection and stops reconnecting and dispatching.
// Subscriptions are kept for a later Open.
func (s *Socket) Close() {
	s.mu.Lock()
	conn := s.conn
	cancel := s.runCancel
	s.conn = nil
	s.runCancel = nil
	s.runCtx = nil
	s.inbox = nil
	s.epoch++
	s.connected.Store(false)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
}

// IsConnected reports whether a connection is currently open.
func (s *Socket) IsConnected() bool {
	return s.connected.Load()
}

// Subscribe registers fn for messages of type typ.
func (s *Socket) Subscribe(typ MessageType, fn func(Message)) *Subscription {
	sub := &Subscription{typ: typ, fn: fn}
	sub.active.Store(true)
	s.subsMu.Lock()
	s.subs[typ] = append(s.subs[typ], sub)
	s.subsMu.Unlock()
	return sub
}

// Unsubscribe removes sub. When it returns, sub's listener will not start
// again and no run of it is in progress. The exception is a call made while
// that listener is already running, such as a listener unsubscribing itself:
// the running call is left to finish.
func (s *Socket) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.active.Store(false)
	if s.inflight.Load() != sub {
		// Waits for a listener run that passed the active check.
		sub.mu.Lock()
		sub.mu.Unlock()
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	list := s.subs[sub.typ]
	for i, candidate := range list {
		if candidate == sub {
			next := make([]*Subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(s.subs, sub.typ)
			} else {
				s.subs[sub.typ] = next
			}
			return
		}
	}
}

// ListenerCount returns the number of subscriptions for typ.
func (s *Socket) ListenerCount(typ MessageType) int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subs[typ])
}

// Send writes v as a JSON text frame.
func (s *Socket) Send(v any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrSocketClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.opts.URL, s.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.opts.URL, err)
	}
	return conn, nil
}

// attachLocked installs conn as the current connection. s.mu must be held.
func (s *Socket) attachLocked(conn *websocket.Conn) {
	s.conn = conn
	s.gen++
	s.connected.Store(true)
	go s.readLoop(s.runCtx, conn, s.gen, s.inbox)
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64, inbox chan<- Message) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(conn, gen, err)
			return
		}
		msg, err := DecodeMessage(payload)
		if err != nil {
			telemetry.Warn("socket.malformed_message", map[string]any{"error": err.Error()})
			continue
		}
		select {
		case inbox <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Socket) handleDisconnect(conn *websocket.Conn, gen uint64, cause error) {
	s.mu.Lock()
	if s.conn != conn || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.connected.Store(false)
	ctx := s.runCtx
	s.mu.Unlock()
	_ = conn.Close()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	telemetry.Warn("socket.disconnected", map[string]any{"error": cause.Error()})
	go s.reconnect(ctx)
}

// reconnect retries with a linearly growing interval. A success resets the
// count because the next disconnect starts a fresh reconnect loop.
func (s *Socket) reconnect(ctx context.Context) {
	for attempt := 1; attempt <= s.opts.MaxReconnectAttempts; attempt++ {
		metrics.IncSocketReconnect()
		timer := time.NewTimer(s.opts.ReconnectInterval * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		conn, err := s.dial(ctx)
		if err != nil {
			telemetry.Warn("socket.reconnect_failed", map[string]any{
				"attempt": attempt,
				"error":   err.Error(),
			})
			continue
		}

		s.mu.Lock()
		if ctx.Err() != nil || s.conn != nil || s.runCtx != ctx {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.attachLocked(conn)
		s.mu.Unlock()
		telemetry.Info("socket.reconnected", map[string]any{"attempt": attempt})
		return
	}
	telemetry.Error("socket.reconnect_exhausted", map[string]any{
		"attempts": s.opts.MaxReconnectAttempts,
		"url":      s.opts.URL,
	})
}

func (s *Socket) dispatchLoop(ctx context.Context, inbox <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-inbox:
			s.dispatch(msg)
		}
	}
}

// dispatch invokes the listeners registered for msg.Type in subscription order.
func (s *Socket) dispatch(msg Message) {
	s.subsMu.RLock()
	list := s.subs[msg.Type]
	s.subsMu.RUnlock()
	for _, sub := range list {
		s.invoke(sub, msg)
	}
}

func (s *Socket) invoke(sub *Subscription, msg Message) {
	sub.mu.RLock()
	defer sub.mu.RUnlock()
	if !sub.active.Load() {
		return
	}
	s.inflight.Store(sub)
	defer s.inflight.Store(nil)
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("socket.listener_panic", map[string]any{
				"type":  msg.Type,
				"panic": fmt.Sprint(r),
			})
		}
	}()
	sub.fn(msg)
}
