package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ChatUsecase interface {
	// StartConversation creates a waiting conversation from a guest
	// identification or an authenticated customer id and notifies agents.
	StartConversation(ctx context.Context, cmd StartConversationCommand) (*ConversationDTO, error)

	GetConversation(ctx context.Context, id uuid.UUID) (*ConversationDTO, error)
	ListWaiting(ctx context.Context) ([]*ConversationDTO, error)
	ListActiveForAgent(ctx context.Context, agentID uuid.UUID) ([]*ConversationDTO, error)

	// ClaimConversation is the single contention point: exactly one of any
	// set of concurrent claims for the same waiting conversation succeeds.
	ClaimConversation(ctx context.Context, conversationID, agentID uuid.UUID) (*ConversationDTO, error)

	CloseConversation(ctx context.Context, conversationID uuid.UUID) (*ConversationDTO, error)

	// ExpireStaleWaiting applies the abandonment policy to the waiting
	// queue and returns how many conversations it closed.
	ExpireStaleWaiting(ctx context.Context, olderThan time.Duration) (int, error)

	SendMessage(ctx context.Context, cmd SendMessageCommand) (*MessageDTO, error)
	History(ctx context.Context, conversationID uuid.UUID) ([]*MessageDTO, error)
	AttachmentsFor(ctx context.Context, messageID uuid.UUID) ([]*AttachmentDTO, error)

	// Typing signals are ephemeral: broadcast only, never persisted.
	StartTyping(ctx context.Context, conversationID uuid.UUID, userName string)
	StopTyping(ctx context.Context, conversationID uuid.UUID)
}
