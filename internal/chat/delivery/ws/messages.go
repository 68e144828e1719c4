package ws

import "github.com/google/uuid"

// clientMessage is the JSON envelope for client-initiated events,
// discriminated by Type.
type clientMessage struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
	Message        string    `json:"message,omitempty"`
	UserName       string    `json:"user_name,omitempty"`
}

const (
	typeJoinConversation = "join_conversation"
	typeSendMessage      = "send_message"
	typeTyping           = "typing"
	typeStopTyping       = "stop_typing"
)

// errorMessage is pushed back to the sender when a client event is
// rejected; it never terminates the session.
type errorMessage struct {
	Event string `json:"event"`
	Error string `json:"error"`
}
