// Package events carries the push-event fan-out between the chat usecase
// and transport sessions: an in-process room hub, plus an optional AMQP
// relay for multi-node deployments.
package events

// Push event vocabulary. Payloads are the chat DTOs.
const (
	NewConversationWaiting = "new_conversation_waiting"
	AgentJoined            = "agent_joined"
	NewMessage             = "new_message"
	UserTyping             = "user_typing"
	UserStopTyping         = "user_stop_typing"
	ConversationClosed     = "conversation_closed"
)

// AgentQueueRoom is the designated room every agent session joins to
// observe the waiting queue.
const AgentQueueRoom = "agents"

type Event struct {
	Name    string `json:"event"`
	Room    string `json:"-"`
	Payload any    `json:"data"`
}

// Broadcaster is what the usecase publishes through. The Hub implements
// it for one process; the Relay wraps a Hub to span nodes.
type Broadcaster interface {
	ToRoom(roomID string, ev Event)
	ToAgents(ev Event)
}
