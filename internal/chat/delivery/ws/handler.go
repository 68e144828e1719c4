// Package ws serves the persistent transport session: one WebSocket per
// widget or console instance, multiplexing all conversation traffic.
package ws

import (
	"net/http"

	"nhooyr.io/websocket"

	"livechat/internal/chat"
	"livechat/internal/collab"
	"livechat/internal/events"
	"livechat/pkg/logger"
)

type Handler struct {
	uc     chat.ChatUsecase
	hub    *events.Hub
	auth   collab.Auth
	logger logger.Logger

	originPatterns []string
}

func NewHandler(uc chat.ChatUsecase, hub *events.Hub, auth collab.Auth, lg logger.Logger, originPatterns []string) *Handler {
	return &Handler{
		uc:             uc,
		hub:            hub,
		auth:           auth,
		logger:         lg,
		originPatterns: originPatterns,
	}
}

// HandleWebSocket is the HTTP handler for /ws.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ident, err := h.auth.IdentityFor(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "err", err)
		return
	}

	client := newClient(conn, h, ident)
	// Agent consoles observe the waiting queue from the moment they connect.
	if ident.IsAgent() {
		client.joinRoom(events.AgentQueueRoom)
	}
	client.run()
}
