package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"livechat/internal/chat/model"
)

type ChatRepository interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	ListWaiting(ctx context.Context) ([]*model.Conversation, error)
	ListActiveForAgent(ctx context.Context, agentID uuid.UUID) ([]*model.Conversation, error)

	// ClaimConversation atomically moves a waiting conversation to active
	// with the given agent. Returns false when the compare-and-set touched
	// no row (already claimed, closed, or missing).
	ClaimConversation(ctx context.Context, conversationID, agentID uuid.UUID) (bool, error)

	// CloseConversation marks a conversation closed. Returns false when it
	// was already closed or missing.
	CloseConversation(ctx context.Context, conversationID uuid.UUID) (bool, error)

	// ExpireStaleWaiting closes waiting conversations started before the
	// cutoff and returns them.
	ExpireStaleWaiting(ctx context.Context, cutoff time.Time) ([]*model.Conversation, error)

	// CreateMessage persists the message and its attachments as one unit.
	CreateMessage(ctx context.Context, msg *model.Message, attachments []*model.Attachment) error
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*model.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error)
	ListAttachments(ctx context.Context, messageID uuid.UUID) ([]*model.Attachment, error)
}
