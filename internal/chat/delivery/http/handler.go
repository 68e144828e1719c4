// Package http exposes the REST surface of the chat service: durable
// history, conversation lifecycle, claims, and the attachment fallback.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"livechat/internal/chat"
	"livechat/internal/chat/model"
	"livechat/internal/collab"
	"livechat/pkg/errors"
	"livechat/pkg/logger"
)

type Handler struct {
	uc       chat.ChatUsecase
	auth     collab.Auth
	orders   collab.OrderLookup
	wishlist collab.WishlistLookup
	files    collab.FileStore
	logger   logger.Logger
}

func NewHandler(uc chat.ChatUsecase, auth collab.Auth, orders collab.OrderLookup, wishlist collab.WishlistLookup, files collab.FileStore, lg logger.Logger) *Handler {
	return &Handler{
		uc:       uc,
		auth:     auth,
		orders:   orders,
		wishlist: wishlist,
		files:    files,
		logger:   lg,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat/conversations", h.startConversation)
	mux.HandleFunc("GET /api/chat/conversations/waiting", h.listWaiting)
	mux.HandleFunc("GET /api/chat/conversations/my-active", h.listMyActive)
	mux.HandleFunc("GET /api/chat/conversations/{id}", h.getConversation)
	mux.HandleFunc("POST /api/chat/conversations/{id}/claim", h.claimConversation)
	mux.HandleFunc("POST /api/chat/conversations/{id}/close", h.closeConversation)
	mux.HandleFunc("GET /api/chat/conversations/{id}/messages", h.history)
	mux.HandleFunc("POST /api/chat/messages", h.sendMessage)
	mux.HandleFunc("POST /api/chat/messages/with-attachments", h.sendMessageWithAttachments)
	mux.HandleFunc("GET /api/chat/messages/{id}/attachments", h.attachmentsFor)
	mux.HandleFunc("GET /api/chat/customers/{id}/details", h.customerDetails)
}

type startConversationRequest struct {
	GuestName  string `json:"guest_name"`
	GuestEmail string `json:"guest_email"`
}

func (h *Handler) startConversation(w http.ResponseWriter, r *http.Request) {
	ident, err := h.auth.IdentityFor(r)
	if err != nil {
		writeError(w, errors.Unauthorized("invalid credentials"))
		return
	}

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidArg("invalid request body"))
		return
	}

	cmd := chat.StartConversationCommand{
		GuestName:  req.GuestName,
		GuestEmail: req.GuestEmail,
		CustomerID: ident.CustomerID,
	}
	dto, err := h.uc.StartConversation(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, dto)
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	dto, err := h.uc.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto)
}

func (h *Handler) listWaiting(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAgent(w, r); !ok {
		return
	}
	dtos, err := h.uc.ListWaiting(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dtos)
}

func (h *Handler) listMyActive(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.requireAgent(w, r)
	if !ok {
		return
	}
	dtos, err := h.uc.ListActiveForAgent(r.Context(), *ident.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dtos)
}

func (h *Handler) claimConversation(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.requireAgent(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	dto, err := h.uc.ClaimConversation(r.Context(), id, *ident.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto)
}

func (h *Handler) closeConversation(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAgent(w, r); !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	dto, err := h.uc.CloseConversation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	dtos, err := h.uc.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dtos)
}

type sendMessageRequest struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Message        string    `json:"message"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	ident, err := h.auth.IdentityFor(r)
	if err != nil {
		writeError(w, errors.Unauthorized("invalid credentials"))
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidArg("invalid request body"))
		return
	}

	dto, err := h.uc.SendMessage(r.Context(), chat.SendMessageCommand{
		ConversationID: req.ConversationID,
		SenderType:     senderType(ident),
		SenderID:       senderID(ident),
		Body:           req.Message,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, dto)
}

func (h *Handler) attachmentsFor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	dtos, err := h.uc.AttachmentsFor(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dtos)
}

// customerDetails feeds the console sidebar. Guest conversations have no
// customer id, so callers hit this only for authenticated customers.
func (h *Handler) customerDetails(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAgent(w, r); !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	customer, err := h.orders.CustomerByID(r.Context(), id)
	if err != nil {
		writeError(w, errors.NotFound("customer not found"))
		return
	}
	orders, err := h.orders.RecentOrders(r.Context(), id)
	if err != nil {
		h.logger.Warn("order lookup failed", "err", err, "customer_id", id)
		orders = []collab.Order{}
	}
	wishlist, err := h.wishlist.Wishlist(r.Context(), id)
	if err != nil {
		h.logger.Warn("wishlist lookup failed", "err", err, "customer_id", id)
		wishlist = []collab.WishlistItem{}
	}

	writeData(w, http.StatusOK, map[string]any{
		"customer": customer,
		"orders":   orders,
		"wishlist": wishlist,
	})
}

func (h *Handler) requireAgent(w http.ResponseWriter, r *http.Request) (collab.Identity, bool) {
	ident, err := h.auth.IdentityFor(r)
	if err != nil {
		writeError(w, errors.Unauthorized("invalid credentials"))
		return collab.Identity{}, false
	}
	if !ident.IsAgent() {
		writeError(w, errors.ErrAgentRequired)
		return collab.Identity{}, false
	}
	return ident, true
}

func senderType(ident collab.Identity) model.SenderType {
	switch {
	case ident.AgentID != nil:
		return model.SenderAgent
	case ident.CustomerID != nil:
		return model.SenderCustomer
	default:
		return model.SenderGuest
	}
}

func senderID(ident collab.Identity) *uuid.UUID {
	if ident.AgentID != nil {
		return ident.AgentID
	}
	return ident.CustomerID
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, errors.InvalidArg("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
