package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// typingIdle is how long after the last keystroke a stop-typing signal
// is emitted.
const typingIdle = time.Second

type WidgetState int

const (
	WidgetClosed WidgetState = iota
	WidgetIdentifying
	WidgetOpen
)

// Widget is the customer-side state machine: identification, then the
// message loop over one conversation. History fetches and live pushes
// merge into a single deduplicated view.
type Widget struct {
	api     *Client
	session *Session

	mu             sync.Mutex
	state          WidgetState
	conversationID uuid.UUID
	guestName      string
	agentTyping    bool
	typingActive   bool
	typingTimer    *time.Timer

	buffer *Buffer
}

func NewWidget(api *Client, session *Session) *Widget {
	w := &Widget{
		api:     api,
		session: session,
		state:   WidgetClosed,
		buffer:  NewBuffer(),
	}

	session.On("new_message", w.onNewMessage)
	session.On("user_typing", w.onUserTyping)
	session.On("user_stop_typing", func(json.RawMessage) { w.setAgentTyping(false) })
	session.On("conversation_closed", func(json.RawMessage) { w.setAgentTyping(false) })
	// A reconnect may have raced message delivery; refetch history and
	// let the buffer drop anything already rendered.
	session.OnConnect(w.reconcile)
	return w
}

func (w *Widget) State() WidgetState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Widget) Connected() bool {
	return w.session.IsConnected()
}

func (w *Widget) AgentTyping() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.agentTyping
}

func (w *Widget) Messages() []Message {
	return w.buffer.Messages()
}

// Open moves a closed widget to identification. No previous conversation
// is resumed.
func (w *Widget) Open() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == WidgetClosed {
		w.state = WidgetIdentifying
	}
}

// Start submits the identification, creating the conversation and
// entering the message loop. The returned error is retryable: the widget
// stays in identification on failure.
func (w *Widget) Start(ctx context.Context, guestName, guestEmail string) error {
	conv, err := w.api.StartConversation(ctx, guestName, guestEmail)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.state = WidgetOpen
	w.conversationID = conv.ID
	w.guestName = guestName
	w.mu.Unlock()

	w.buffer.Reset()
	w.session.JoinRoom(conv.ID)

	history, err := w.api.History(ctx, conv.ID)
	if err == nil {
		w.buffer.AddHistory(history)
	}
	return nil
}

func (w *Widget) ConversationID() (uuid.UUID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conversationID, w.state == WidgetOpen
}

func (w *Widget) SendText(ctx context.Context, text string) (*Message, error) {
	id, ok := w.ConversationID()
	if !ok {
		return nil, ErrSessionClosed
	}
	msg, err := w.api.SendMessage(ctx, id, text)
	if err != nil {
		return nil, err
	}
	w.stopTypingNow()
	return msg, nil
}

// SendWithAttachments posts a message with attachments. Text may be empty when at
// least one file is attached.
func (w *Widget) SendWithAttachments(ctx context.Context, text string, files []FileUpload) (*Message, error) {
	id, ok := w.ConversationID()
	if !ok {
		return nil, ErrSessionClosed
	}
	msg, err := w.api.SendMessageWithAttachments(ctx, id, text, files)
	if err != nil {
		return nil, err
	}
	w.stopTypingNow()
	return msg, nil
}

// InputChanged drives the typing debounce: every keystroke re-emits the
// typing signal and re-arms the idle timer; the timer emits exactly one
// stop-typing per quiet period.
func (w *Widget) InputChanged() {
	id, ok := w.ConversationID()
	if !ok {
		return
	}

	w.mu.Lock()
	w.typingActive = true
	if w.typingTimer == nil {
		w.typingTimer = time.AfterFunc(typingIdle, w.typingIdleFired)
	} else {
		w.typingTimer.Reset(typingIdle)
	}
	name := w.guestName
	w.mu.Unlock()

	w.session.Typing(id, name)
}

func (w *Widget) typingIdleFired() {
	w.mu.Lock()
	active := w.typingActive
	w.typingActive = false
	id := w.conversationID
	open := w.state == WidgetOpen
	w.mu.Unlock()

	if active && open {
		w.session.StopTyping(id)
	}
}

func (w *Widget) stopTypingNow() {
	w.mu.Lock()
	active := w.typingActive
	w.typingActive = false
	if w.typingTimer != nil {
		w.typingTimer.Stop()
	}
	id := w.conversationID
	w.mu.Unlock()

	if active {
		w.session.StopTyping(id)
	}
}

// CloseChat discards the held conversation id; reopening starts a fresh
// identification cycle.
func (w *Widget) CloseChat() {
	w.mu.Lock()
	w.state = WidgetClosed
	w.conversationID = uuid.Nil
	w.typingActive = false
	if w.typingTimer != nil {
		w.typingTimer.Stop()
		w.typingTimer = nil
	}
	w.mu.Unlock()
	w.buffer.Reset()
}

func (w *Widget) onNewMessage(data json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, ok := w.ConversationID()
	if !ok || msg.ConversationID != id {
		return
	}
	w.buffer.Add(resolveAttachments(w.api, msg))
}

func (w *Widget) reconcile() {
	id, ok := w.ConversationID()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	history, err := w.api.History(ctx, id)
	if err != nil {
		return
	}
	w.buffer.AddHistory(history)
}

// onUserTyping ignores the widget's own echo: typing signals fan out to
// the whole room, including the sender.
func (w *Widget) onUserTyping(data json.RawMessage) {
	var sig TypingSignal
	if err := json.Unmarshal(data, &sig); err != nil {
		return
	}
	w.mu.Lock()
	own := sig.UserName != "" && sig.UserName == w.guestName
	w.mu.Unlock()
	if own {
		return
	}
	w.setAgentTyping(true)
}

func (w *Widget) setAgentTyping(v bool) {
	w.mu.Lock()
	w.agentTyping = v
	w.mu.Unlock()
}
