package client

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ConsoleState int

const (
	ConsoleBrowsing ConsoleState = iota
	ConsoleViewing
)

// Console is the agent-side state machine: it watches the waiting queue,
// claims conversations, and then runs the same message-merge loop as the
// widget plus the customer-context sidebar.
//
// The waiting list is push-driven with polling as a resilience fallback;
// both paths merge by conversation id, so they are idempotent against
// each other.
type Console struct {
	api     *Client
	session *Session

	mu      sync.Mutex
	state   ConsoleState
	waiting map[uuid.UUID]Conversation
	active  map[uuid.UUID]Conversation
	viewing uuid.UUID

	buffer *Buffer
}

func NewConsole(api *Client, session *Session) *Console {
	c := &Console{
		api:     api,
		session: session,
		state:   ConsoleBrowsing,
		waiting: make(map[uuid.UUID]Conversation),
		active:  make(map[uuid.UUID]Conversation),
		buffer:  NewBuffer(),
	}

	session.On("new_conversation_waiting", c.onWaiting)
	session.On("agent_joined", c.onAgentJoined)
	session.On("conversation_closed", c.onClosed)
	session.On("new_message", c.onNewMessage)
	session.OnConnect(c.reconcile)
	return c
}

func (c *Console) State() ConsoleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Console) Connected() bool {
	return c.session.IsConnected()
}

// Refresh polls both lists. Push events arriving between polls merge by
// id, so nothing is lost or duplicated.
func (c *Console) Refresh(ctx context.Context) error {
	waiting, err := c.api.ListWaiting(ctx)
	if err != nil {
		return err
	}
	active, err := c.api.ListMyActive(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.waiting = make(map[uuid.UUID]Conversation, len(waiting))
	for _, conv := range waiting {
		c.waiting[conv.ID] = conv
	}
	c.active = make(map[uuid.UUID]Conversation, len(active))
	for _, conv := range active {
		c.active[conv.ID] = conv
	}
	c.mu.Unlock()
	return nil
}

// Waiting returns the queue oldest-first, so no conversation starves.
func (c *Console) Waiting() []Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Conversation, 0, len(c.waiting))
	for _, conv := range c.waiting {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (c *Console) Active() []Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Conversation, 0, len(c.active))
	for _, conv := range c.active {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Claim attempts the atomic hand-off. Losing the race to another agent
// is expected contention, not a fault: the waiting list is refreshed and
// claimed=false is returned with a nil error.
func (c *Console) Claim(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	conv, err := c.api.Claim(ctx, conversationID)
	if err != nil {
		if IsAlreadyClaimed(err) {
			_ = c.Refresh(ctx)
			return false, nil
		}
		return false, err
	}

	c.mu.Lock()
	delete(c.waiting, conv.ID)
	c.active[conv.ID] = *conv
	c.mu.Unlock()

	return true, c.View(ctx, conv.ID)
}

// View opens a conversation: subscribe to its room and load history into
// a fresh buffer.
func (c *Console) View(ctx context.Context, conversationID uuid.UUID) error {
	c.mu.Lock()
	c.state = ConsoleViewing
	c.viewing = conversationID
	c.mu.Unlock()

	c.buffer.Reset()
	c.session.JoinRoom(conversationID)

	history, err := c.api.History(ctx, conversationID)
	if err != nil {
		return err
	}
	c.buffer.AddHistory(history)
	return nil
}

// Back returns to browsing; the buffer keeps nothing across views.
func (c *Console) Back() {
	c.mu.Lock()
	c.state = ConsoleBrowsing
	c.viewing = uuid.Nil
	c.mu.Unlock()
	c.buffer.Reset()
}

func (c *Console) Viewing() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewing, c.state == ConsoleViewing
}

func (c *Console) Messages() []Message {
	return c.buffer.Messages()
}

func (c *Console) SendText(ctx context.Context, text string) (*Message, error) {
	id, ok := c.Viewing()
	if !ok {
		return nil, ErrSessionClosed
	}
	return c.api.SendMessage(ctx, id, text)
}

// CustomerContext loads the sidebar for the viewed conversation. Guest
// conversations yield an explicit IsGuest context rather than empty
// details.
func (c *Console) CustomerContext(ctx context.Context, conversationID uuid.UUID) (*CustomerContext, error) {
	conv, err := c.api.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.CustomerID == nil {
		return &CustomerContext{IsGuest: true}, nil
	}
	details, err := c.api.CustomerDetails(ctx, *conv.CustomerID)
	if err != nil {
		return nil, err
	}
	return &CustomerContext{Details: details}, nil
}

func (c *Console) onWaiting(data json.RawMessage) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return
	}
	c.mu.Lock()
	if _, ok := c.waiting[conv.ID]; !ok {
		c.waiting[conv.ID] = conv
	}
	c.mu.Unlock()
}

// onAgentJoined removes a claimed conversation from the waiting view,
// whichever agent won it.
func (c *Console) onAgentJoined(data json.RawMessage) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return
	}
	c.mu.Lock()
	delete(c.waiting, conv.ID)
	c.mu.Unlock()
}

func (c *Console) onClosed(data json.RawMessage) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return
	}
	c.mu.Lock()
	delete(c.waiting, conv.ID)
	delete(c.active, conv.ID)
	c.mu.Unlock()
}

func (c *Console) onNewMessage(data json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, ok := c.Viewing()
	if !ok || msg.ConversationID != id {
		return
	}
	c.buffer.Add(resolveAttachments(c.api, msg))
}

func (c *Console) reconcile() {
	id, ok := c.Viewing()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = c.Refresh(ctx)
	if !ok {
		return
	}
	history, err := c.api.History(ctx, id)
	if err != nil {
		return
	}
	c.buffer.AddHistory(history)
}
