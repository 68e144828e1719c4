package usecase

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"livechat/config"
	"livechat/internal/chat"
	"livechat/internal/chat/model"
	"livechat/internal/chat/repository"
	"livechat/internal/events"
	"livechat/pkg/errors"
	"livechat/pkg/logger"
)

const (
	maxAttachmentSize  = 10 * 1024 * 1024
	maxAttachmentCount = 5
)

// allowedFileTypes mirrors what the upload form accepts: images, PDF and
// common video containers.
var allowedFileTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/gif":       true,
	"application/pdf": true,
	"video/mp4":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
}

type ChatUsecase struct {
	repo        chat.ChatRepository
	broadcaster events.Broadcaster
	logger      logger.Logger
	config      config.Config
}

func NewChatUsecase(repo chat.ChatRepository, broadcaster events.Broadcaster, logger logger.Logger, config config.Config) *ChatUsecase {
	return &ChatUsecase{repo: repo, broadcaster: broadcaster, logger: logger, config: config}
}

func (uc *ChatUsecase) StartConversation(ctx context.Context, cmd chat.StartConversationCommand) (*chat.ConversationDTO, error) {
	if cmd.CustomerID == nil && strings.TrimSpace(cmd.GuestName) == "" {
		return nil, errors.ErrGuestNameRequired
	}

	conv := &model.Conversation{
		Status:     model.StatusWaiting,
		CustomerID: cmd.CustomerID,
	}
	if cmd.CustomerID == nil {
		conv.GuestName = strings.TrimSpace(cmd.GuestName)
		conv.GuestEmail = strings.TrimSpace(cmd.GuestEmail)
	}

	if err := uc.repo.CreateConversation(ctx, conv); err != nil {
		uc.logger.Error("failed to create conversation", "err", err)
		return nil, errors.ErrStartConversationFailed(err)
	}

	dto := chat.ConversationToDTO(conv)
	uc.broadcaster.ToAgents(events.Event{Name: events.NewConversationWaiting, Payload: dto})
	return dto, nil
}

func (uc *ChatUsecase) GetConversation(ctx context.Context, id uuid.UUID) (*chat.ConversationDTO, error) {
	conv, err := uc.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, mapConversationErr(err)
	}
	return chat.ConversationToDTO(conv), nil
}

func (uc *ChatUsecase) ListWaiting(ctx context.Context) ([]*chat.ConversationDTO, error) {
	convs, err := uc.repo.ListWaiting(ctx)
	if err != nil {
		uc.logger.Error("failed to list waiting conversations", "err", err)
		return nil, errors.Internal("failed to list waiting conversations")
	}
	return conversationsToDTOs(convs), nil
}

func (uc *ChatUsecase) ListActiveForAgent(ctx context.Context, agentID uuid.UUID) ([]*chat.ConversationDTO, error) {
	convs, err := uc.repo.ListActiveForAgent(ctx, agentID)
	if err != nil {
		uc.logger.Error("failed to list active conversations", "err", err, "agent_id", agentID)
		return nil, errors.Internal("failed to list active conversations")
	}
	return conversationsToDTOs(convs), nil
}

// ClaimConversation resolves multi-agent contention: the repository CAS
// admits exactly one winner, losers get ErrAlreadyClaimed.
func (uc *ChatUsecase) ClaimConversation(ctx context.Context, conversationID, agentID uuid.UUID) (*chat.ConversationDTO, error) {
	claimed, err := uc.repo.ClaimConversation(ctx, conversationID, agentID)
	if err != nil {
		uc.logger.Error("claim failed", "err", err, "conversation_id", conversationID)
		return nil, errors.Internal("failed to claim conversation")
	}
	if !claimed {
		// CAS miss: distinguish a lost race from a bad id.
		if _, err := uc.repo.GetConversation(ctx, conversationID); err != nil {
			return nil, mapConversationErr(err)
		}
		return nil, errors.ErrAlreadyClaimed
	}

	conv, err := uc.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, mapConversationErr(err)
	}

	dto := chat.ConversationToDTO(conv)
	uc.broadcaster.ToRoom(conversationID.String(), events.Event{Name: events.AgentJoined, Payload: dto})
	uc.broadcaster.ToAgents(events.Event{Name: events.AgentJoined, Payload: dto})
	return dto, nil
}

func (uc *ChatUsecase) CloseConversation(ctx context.Context, conversationID uuid.UUID) (*chat.ConversationDTO, error) {
	closed, err := uc.repo.CloseConversation(ctx, conversationID)
	if err != nil {
		uc.logger.Error("close failed", "err", err, "conversation_id", conversationID)
		return nil, errors.Internal("failed to close conversation")
	}

	conv, err := uc.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, mapConversationErr(err)
	}

	dto := chat.ConversationToDTO(conv)
	if closed {
		uc.broadcaster.ToRoom(conversationID.String(), events.Event{Name: events.ConversationClosed, Payload: dto})
		uc.broadcaster.ToAgents(events.Event{Name: events.ConversationClosed, Payload: dto})
	}
	return dto, nil
}

func (uc *ChatUsecase) ExpireStaleWaiting(ctx context.Context, olderThan time.Duration) (int, error) {
	expired, err := uc.repo.ExpireStaleWaiting(ctx, time.Now().Add(-olderThan))
	if err != nil {
		uc.logger.Error("stale waiting sweep failed", "err", err)
		return 0, errors.Internal("failed to expire stale conversations")
	}
	for _, conv := range expired {
		dto := chat.ConversationToDTO(conv)
		uc.broadcaster.ToRoom(conv.ID.String(), events.Event{Name: events.ConversationClosed, Payload: dto})
		uc.broadcaster.ToAgents(events.Event{Name: events.ConversationClosed, Payload: dto})
	}
	return len(expired), nil
}

func (uc *ChatUsecase) SendMessage(ctx context.Context, cmd chat.SendMessageCommand) (*chat.MessageDTO, error) {
	body := strings.TrimSpace(cmd.Body)
	if body == "" && len(cmd.Attachments) == 0 {
		return nil, errors.ErrEmptyMessage
	}
	if len(cmd.Attachments) > maxAttachmentCount {
		return nil, errors.ErrTooManyAttachments
	}
	for _, a := range cmd.Attachments {
		if !allowedFileTypes[a.FileType] {
			return nil, errors.ErrAttachmentType
		}
		if a.FileSize > maxAttachmentSize {
			return nil, errors.ErrAttachmentTooLarge
		}
	}

	conv, err := uc.repo.GetConversation(ctx, cmd.ConversationID)
	if err != nil {
		return nil, mapConversationErr(err)
	}
	if conv.Status == model.StatusClosed {
		return nil, errors.ErrConversationClosed
	}

	msg := &model.Message{
		ConversationID: cmd.ConversationID,
		SenderType:     cmd.SenderType,
		SenderID:       cmd.SenderID,
		Body:           body,
	}
	atts := make([]*model.Attachment, 0, len(cmd.Attachments))
	for _, a := range cmd.Attachments {
		atts = append(atts, &model.Attachment{
			FileURL:  a.FileURL,
			FileName: a.FileName,
			FileType: a.FileType,
			FileSize: a.FileSize,
		})
	}

	if err := uc.repo.CreateMessage(ctx, msg, atts); err != nil {
		uc.logger.Error("failed to persist message", "err", err, "conversation_id", cmd.ConversationID)
		return nil, errors.ErrSendMessageFailed(err)
	}

	dto := chat.MessageToDTO(msg)
	uc.broadcaster.ToRoom(cmd.ConversationID.String(), events.Event{Name: events.NewMessage, Payload: dto})
	return dto, nil
}

func (uc *ChatUsecase) History(ctx context.Context, conversationID uuid.UUID) ([]*chat.MessageDTO, error) {
	if _, err := uc.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, mapConversationErr(err)
	}

	msgs, err := uc.repo.ListMessages(ctx, conversationID)
	if err != nil {
		uc.logger.Error("failed to load history", "err", err, "conversation_id", conversationID)
		return nil, errors.Internal("failed to load message history")
	}

	dtos := make([]*chat.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		dtos = append(dtos, chat.MessageToDTO(m))
	}
	return dtos, nil
}

// AttachmentsFor is the enrichment fallback for push payloads that
// arrived without attachments. Safe to call redundantly.
func (uc *ChatUsecase) AttachmentsFor(ctx context.Context, messageID uuid.UUID) ([]*chat.AttachmentDTO, error) {
	if _, err := uc.repo.GetMessage(ctx, messageID); err != nil {
		if stderrors.Is(err, repository.ErrMessageNotFound) {
			return nil, errors.ErrMessageNotFound
		}
		uc.logger.Error("failed to load message", "err", err, "message_id", messageID)
		return nil, errors.Internal("failed to load message")
	}

	atts, err := uc.repo.ListAttachments(ctx, messageID)
	if err != nil {
		uc.logger.Error("failed to load attachments", "err", err, "message_id", messageID)
		return nil, errors.Internal("failed to load attachments")
	}

	dtos := make([]*chat.AttachmentDTO, 0, len(atts))
	for _, a := range atts {
		dtos = append(dtos, chat.AttachmentToDTO(a))
	}
	return dtos, nil
}

func (uc *ChatUsecase) StartTyping(ctx context.Context, conversationID uuid.UUID, userName string) {
	uc.broadcaster.ToRoom(conversationID.String(), events.Event{
		Name:    events.UserTyping,
		Payload: chat.TypingSignal{ConversationID: conversationID, UserName: userName},
	})
}

func (uc *ChatUsecase) StopTyping(ctx context.Context, conversationID uuid.UUID) {
	uc.broadcaster.ToRoom(conversationID.String(), events.Event{
		Name:    events.UserStopTyping,
		Payload: chat.TypingSignal{ConversationID: conversationID},
	})
}

func conversationsToDTOs(convs []*model.Conversation) []*chat.ConversationDTO {
	dtos := make([]*chat.ConversationDTO, 0, len(convs))
	for _, c := range convs {
		dtos = append(dtos, chat.ConversationToDTO(c))
	}
	return dtos
}

func mapConversationErr(err error) error {
	if stderrors.Is(err, repository.ErrConversationNotFound) {
		return errors.ErrConversationNotFound
	}
	return errors.Wrap(errors.CodeInternal, "conversation lookup failed", err)
}
