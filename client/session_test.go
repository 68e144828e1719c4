package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a scriptable connection: writes are recorded, reads come
// from the incoming channel, Drop simulates a transport failure.
type fakeConn struct {
	mu       sync.Mutex
	written  [][]byte
	incoming chan []byte
	dropped  chan struct{}
	dropOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		dropped:  make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.incoming:
		return data, nil
	case <-f.dropped:
		return nil, errors.New("connection dropped")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.written = append(f.written, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.Drop()
	return nil
}

func (f *fakeConn) Drop() {
	f.dropOnce.Do(func() { close(f.dropped) })
}

// sent returns the decoded client messages written so far, filtered by
// type when one is given.
func (f *fakeConn) sent(msgType string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, raw := range f.written {
		var m map[string]any
		if json.Unmarshal(raw, &m) != nil {
			continue
		}
		if msgType == "" || m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

// push delivers a server event envelope to the session.
func (f *fakeConn) push(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"event": event, "data": payload})
	require.NoError(t, err)
	select {
	case f.incoming <- data:
	case <-time.After(time.Second):
		t.Fatal("push blocked")
	}
}

// fakeDialer hands out connections in order and records dial attempts.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	err   error
}

func (d *fakeDialer) dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no more connections scripted")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func Test_SessionConnect(t *testing.T) {
	t.Run("connect is idempotent", func(t *testing.T) {
		conn := newFakeConn()
		dialer := &fakeDialer{conns: []*fakeConn{conn}}
		s := NewSessionWithDialer(dialer.dial)
		defer s.Close()

		require.NoError(t, s.Connect(context.Background()))
		require.NoError(t, s.Connect(context.Background()))
		assert.Equal(t, 1, dialer.dialCount())
		assert.True(t, s.IsConnected())
	})

	t.Run("dial failure surfaces and allows retry", func(t *testing.T) {
		dialer := &fakeDialer{err: errors.New("refused")}
		s := NewSessionWithDialer(dialer.dial)
		defer s.Close()

		require.Error(t, s.Connect(context.Background()))
		assert.False(t, s.IsConnected())

		// A later connect may succeed.
		dialer.mu.Lock()
		dialer.err = nil
		dialer.conns = []*fakeConn{newFakeConn()}
		dialer.mu.Unlock()
		require.NoError(t, s.Connect(context.Background()))
		assert.True(t, s.IsConnected())
	})

	t.Run("closed session cannot reconnect", func(t *testing.T) {
		s := NewSessionWithDialer((&fakeDialer{conns: []*fakeConn{newFakeConn()}}).dial)
		require.NoError(t, s.Connect(context.Background()))
		s.Close()
		s.Close() // second close is a no-op

		assert.False(t, s.IsConnected())
		assert.Equal(t, ErrSessionClosed, s.Connect(context.Background()))
	})
}

func Test_SessionDispatch(t *testing.T) {
	conn := newFakeConn()
	s := NewSessionWithDialer((&fakeDialer{conns: []*fakeConn{conn}}).dial)
	defer s.Close()

	got := make(chan json.RawMessage, 1)
	s.On("new_message", func(data json.RawMessage) { got <- data })

	require.NoError(t, s.Connect(context.Background()))
	conn.push(t, "new_message", map[string]any{"message": "hi"})

	select {
	case data := <-got:
		var payload struct {
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(data, &payload))
		assert.Equal(t, "hi", payload.Message)
	case <-time.After(time.Second):
		t.Fatal("handler never fired")
	}
}

func Test_SessionJoinRoom(t *testing.T) {
	t.Run("join while connected is sent immediately", func(t *testing.T) {
		conn := newFakeConn()
		s := NewSessionWithDialer((&fakeDialer{conns: []*fakeConn{conn}}).dial)
		defer s.Close()
		require.NoError(t, s.Connect(context.Background()))

		convID := uuid.New()
		s.JoinRoom(convID)

		joins := conn.sent("join_conversation")
		require.Len(t, joins, 1)
		assert.Equal(t, convID.String(), joins[0]["conversation_id"])
	})

	t.Run("join before connect is replayed on attach", func(t *testing.T) {
		conn := newFakeConn()
		s := NewSessionWithDialer((&fakeDialer{conns: []*fakeConn{conn}}).dial)
		defer s.Close()

		convID := uuid.New()
		s.JoinRoom(convID)
		require.NoError(t, s.Connect(context.Background()))

		joins := conn.sent("join_conversation")
		require.Len(t, joins, 1)
		assert.Equal(t, convID.String(), joins[0]["conversation_id"])
	})
}

func Test_SessionReconnect(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}
	s := NewSessionWithDialer(dialer.dial)
	defer s.Close()

	var hookMu sync.Mutex
	hookCalls := 0
	s.OnConnect(func() {
		hookMu.Lock()
		hookCalls++
		hookMu.Unlock()
	})

	convID := uuid.New()
	s.JoinRoom(convID)
	require.NoError(t, s.Connect(context.Background()))

	hookMu.Lock()
	assert.Equal(t, 1, hookCalls)
	hookMu.Unlock()

	// Drop the transport; the session retries with backoff, replays the
	// room join on the new connection, and fires the connect hook again.
	first.Drop()

	require.Eventually(t, func() bool {
		return len(second.sent("join_conversation")) == 1
	}, 5*time.Second, 50*time.Millisecond, "join was not replayed after reconnect")

	assert.True(t, s.IsConnected())
	assert.Equal(t, 2, dialer.dialCount())
	joins := second.sent("join_conversation")
	assert.Equal(t, convID.String(), joins[0]["conversation_id"])

	hookMu.Lock()
	assert.Equal(t, 2, hookCalls)
	hookMu.Unlock()

	// Events on the new connection still reach handlers.
	got := make(chan struct{}, 1)
	s.On("agent_joined", func(json.RawMessage) { got <- struct{}{} })
	second.push(t, "agent_joined", map[string]any{})
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("handler never fired after reconnect")
	}
}

func Test_SessionSendWhileDisconnected(t *testing.T) {
	s := NewSessionWithDialer((&fakeDialer{}).dial)
	defer s.Close()

	// Fire-and-forget sends on a disconnected session are dropped, not
	// panics or blocks.
	s.SendMessage(uuid.New(), "into the void")
	s.Typing(uuid.New(), "ghost")
	s.StopTyping(uuid.New())
}

func Test_SessionGivesUpAfterFiveAttempts(t *testing.T) {
	old := reconnectBaseDelay
	reconnectBaseDelay = 5 * time.Millisecond
	t.Cleanup(func() { reconnectBaseDelay = old })

	first := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first}}
	s := NewSessionWithDialer(dialer.dial)
	t.Cleanup(s.Close)

	require.NoError(t, s.Connect(context.Background()))
	first.Drop()

	// Every retry dial fails (no more scripted connections); after the
	// fifth the session stays persistently disconnected.
	require.Eventually(t, func() bool { return dialer.dialCount() == 1+reconnectAttempts },
		2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1+reconnectAttempts, dialer.dialCount())
	assert.False(t, s.IsConnected())
}

func Test_SessionCloseStopsReconnect(t *testing.T) {
	first := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first}}
	s := NewSessionWithDialer(dialer.dial)

	require.NoError(t, s.Connect(context.Background()))
	first.Drop()

	// Close during the backoff window; the retry loop must exit instead
	// of dialing again.
	time.Sleep(100 * time.Millisecond)
	s.Close()

	assert.Equal(t, 1, dialer.dialCount())
	assert.False(t, s.IsConnected())
}
