package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"livechat/internal/chat"
	"livechat/internal/chat/model"
	"livechat/internal/collab"
)

const sendBuffer = 256

// client is one connected transport session.
type client struct {
	conn    *websocket.Conn
	handler *Handler
	ident   collab.Identity
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc

	mu    sync.Mutex
	rooms map[string]func() // roomID → unsubscribe
}

func newClient(conn *websocket.Conn, handler *Handler, ident collab.Identity) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		conn:    conn,
		handler: handler,
		ident:   ident,
		send:    make(chan []byte, sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
		rooms:   make(map[string]func()),
	}
}

func (c *client) run() {
	go c.writePump()
	c.readPump()
	c.teardown()
}

func (c *client) readPump() {
	defer c.cancel()
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		c.handleMessage(data)
	}
}

func (c *client) writePump() {
	defer func() { _ = c.conn.Close(websocket.StatusNormalClosure, "") }()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.handler.logger.Error("failed to marshal push event", "err", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.handler.logger.Warn("dropping event for slow session")
	}
}

// joinRoom subscribes the session to a room's push events and forwards
// them until the session or the subscription ends. Joining a room twice
// is a no-op.
func (c *client) joinRoom(roomID string) {
	c.mu.Lock()
	if _, ok := c.rooms[roomID]; ok {
		c.mu.Unlock()
		return
	}
	ch, cancel := c.handler.hub.Subscribe(roomID)
	c.rooms[roomID] = cancel
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-c.ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				c.sendJSON(ev)
			}
		}
	}()
}

func (c *client) handleMessage(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendJSON(errorMessage{Event: "error", Error: "invalid message: " + err.Error()})
		return
	}

	switch msg.Type {
	case typeJoinConversation:
		if msg.ConversationID == uuid.Nil {
			c.sendJSON(errorMessage{Event: "error", Error: "conversation_id is required"})
			return
		}
		c.joinRoom(msg.ConversationID.String())

	case typeSendMessage:
		cmd := chat.SendMessageCommand{
			ConversationID: msg.ConversationID,
			SenderType:     c.senderType(),
			SenderID:       c.senderID(),
			Body:           msg.Message,
		}
		if _, err := c.handler.uc.SendMessage(c.ctx, cmd); err != nil {
			c.sendJSON(errorMessage{Event: "error", Error: err.Error()})
		}

	case typeTyping:
		c.handler.uc.StartTyping(c.ctx, msg.ConversationID, msg.UserName)

	case typeStopTyping:
		c.handler.uc.StopTyping(c.ctx, msg.ConversationID)

	default:
		c.sendJSON(errorMessage{Event: "error", Error: "unsupported message type: " + msg.Type})
	}
}

// senderType is derived from the session identity, never trusted from
// the payload.
func (c *client) senderType() model.SenderType {
	switch {
	case c.ident.AgentID != nil:
		return model.SenderAgent
	case c.ident.CustomerID != nil:
		return model.SenderCustomer
	default:
		return model.SenderGuest
	}
}

func (c *client) senderID() *uuid.UUID {
	if c.ident.AgentID != nil {
		return c.ident.AgentID
	}
	return c.ident.CustomerID
}

func (c *client) teardown() {
	c.cancel()
	c.mu.Lock()
	for _, cancel := range c.rooms {
		cancel()
	}
	c.rooms = make(map[string]func())
	c.mu.Unlock()
}
