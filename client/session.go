package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// reconnectAttempts caps automatic recovery; after that the session
// surfaces as persistently disconnected.
const reconnectAttempts = 5

// reconnectBaseDelay grows linearly per attempt: 1s, 2s, 3s. Variable so
// tests can shrink the schedule.
var reconnectBaseDelay = time.Second

var ErrSessionClosed = errors.New("session is closed")

// Conn abstracts the underlying websocket so the state machines can be
// exercised without a network.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a fresh connection.
type Dialer func(ctx context.Context) (Conn, error)

type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}

// Session owns exactly one live connection for its lifetime. It connects
// once, recovers from drops automatically within the retry cap, replays
// room joins after every (re)connect, and is disposed exactly once by
// Close. A disposed session is never reused.
type Session struct {
	dial Dialer

	mu        sync.Mutex
	conn      Conn
	connected bool
	closed    bool
	started   bool
	rooms     map[string]struct{}

	handlers  map[string][]func(json.RawMessage)
	onConnect []func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession creates a session that dials the given websocket URL
// (e.g. "ws://host:9000/ws").
func NewSession(wsURL string) *Session {
	return NewSessionWithDialer(func(ctx context.Context) (Conn, error) {
		c, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			return nil, err
		}
		return wsConn{c: c}, nil
	})
}

func NewSessionWithDialer(dial Dialer) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		dial:     dial,
		rooms:    make(map[string]struct{}),
		handlers: make(map[string][]func(json.RawMessage)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect establishes the connection. Calling it on a live session is a
// no-op; calling it on a closed session is an error.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return err
	}

	s.attach(conn)
	s.wg.Add(1)
	go s.readLoop(conn)
	return nil
}

// IsConnected reports the live state of the transport. False after the
// retry cap is exhausted or the session is closed.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// On subscribes a handler to a push event by name. Handlers run on the
// session's read goroutine; keep them short.
func (s *Session) On(event string, handler func(data json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], handler)
}

// OnConnect registers a hook invoked after every successful connect,
// including reconnects. Used for history reconciliation.
func (s *Session) OnConnect(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = append(s.onConnect, hook)
}

// JoinRoom records the room and sends the join immediately when
// connected; otherwise the join is replayed once connectivity is
// established, so callers may join before the connect completes.
func (s *Session) JoinRoom(conversationID uuid.UUID) {
	s.mu.Lock()
	s.rooms[conversationID.String()] = struct{}{}
	connected := s.connected
	s.mu.Unlock()

	if connected {
		s.emit(map[string]any{"type": "join_conversation", "conversation_id": conversationID})
	}
}

// SendMessage is fire-and-forget: no delivery guarantee beyond what a
// later history fetch reconciles.
func (s *Session) SendMessage(conversationID uuid.UUID, text string) {
	s.emit(map[string]any{"type": "send_message", "conversation_id": conversationID, "message": text})
}

func (s *Session) Typing(conversationID uuid.UUID, userName string) {
	s.emit(map[string]any{"type": "typing", "conversation_id": conversationID, "user_name": userName})
}

func (s *Session) StopTyping(conversationID uuid.UUID) {
	s.emit(map[string]any{"type": "stop_typing", "conversation_id": conversationID})
}

// Close tears the session down exactly once. The session cannot be
// reconnected afterwards; construct a fresh one instead.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.connected = false
	conn := s.conn
	s.conn = nil
	s.cancel()
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()
}

func (s *Session) emit(payload map[string]any) {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()
	if !connected || conn == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = conn.Write(ctx, data)
}

func (s *Session) attach(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	rooms := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}
	hooks := append([]func(){}, s.onConnect...)
	s.mu.Unlock()

	for _, r := range rooms {
		if id, err := uuid.Parse(r); err == nil {
			data, _ := json.Marshal(map[string]any{"type": "join_conversation", "conversation_id": id})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = conn.Write(ctx, data)
			cancel()
		}
	}
	for _, hook := range hooks {
		hook()
	}
}

func (s *Session) readLoop(conn Conn) {
	defer s.wg.Done()
	for {
		data, err := conn.Read(s.ctx)
		if err == nil {
			s.dispatch(data)
			continue
		}

		_ = conn.Close()
		s.mu.Lock()
		s.connected = false
		s.conn = nil
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		next, ok := s.reconnect()
		if !ok {
			return
		}
		conn = next
	}
}

// reconnect retries the dial with linear backoff up to the attempt cap.
func (s *Session) reconnect() (Conn, bool) {
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		select {
		case <-s.ctx.Done():
			return nil, false
		case <-time.After(time.Duration(attempt) * reconnectBaseDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := s.dial(ctx)
		cancel()
		if err != nil {
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return nil, false
		}
		s.mu.Unlock()

		s.attach(conn)
		return conn, true
	}
	return nil, false
}

func (s *Session) dispatch(data []byte) {
	var envelope struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Event == "" {
		return
	}

	s.mu.Lock()
	handlers := append([]func(json.RawMessage){}, s.handlers[envelope.Event]...)
	s.mu.Unlock()

	for _, h := range handlers {
		h(envelope.Data)
	}
}
