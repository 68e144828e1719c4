package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"livechat/internal/chat/model"
	"livechat/pkg/logger"
)

type ChatRepository struct {
	db     *bun.DB
	logger *logger.Logger
}

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

func NewChatRepository(db *bun.DB, logger logger.Logger) *ChatRepository {
	return &ChatRepository{
		db:     db,
		logger: &logger,
	}
}

func (r *ChatRepository) CreateConversation(ctx context.Context, conv *model.Conversation) error {

	_, err := r.db.NewInsert().Model(conv).Returning("*").Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "chatRepo.CreateConversation.Insert: ")
	}
	return nil
}

func (r *ChatRepository) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {

	conv := new(model.Conversation)
	err := r.db.NewSelect().Model(conv).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, errors.Wrap(err, "chatRepo.GetConversation.Scan: ")
	}
	return conv, nil
}

func (r *ChatRepository) ListWaiting(ctx context.Context) ([]*model.Conversation, error) {

	convs := make([]*model.Conversation, 0)
	err := r.db.NewSelect().
		Model(&convs).
		Where("status = ?", model.StatusWaiting).
		Order("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.ListWaiting.Scan: ")
	}
	return convs, nil
}

func (r *ChatRepository) ListActiveForAgent(ctx context.Context, agentID uuid.UUID) ([]*model.Conversation, error) {

	convs := make([]*model.Conversation, 0)
	err := r.db.NewSelect().
		Model(&convs).
		Where("status = ?", model.StatusActive).
		Where("assigned_agent_id = ?", agentID).
		Order("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.ListActiveForAgent.Scan: ")
	}
	return convs, nil
}

// ClaimConversation is a compare-and-set, not a read-then-write: the
// UPDATE only matches while the row is still waiting and unassigned, so
// concurrent claimers race on the row lock and exactly one sees a hit.
func (r *ChatRepository) ClaimConversation(ctx context.Context, conversationID, agentID uuid.UUID) (bool, error) {

	res, err := r.db.NewUpdate().
		Model((*model.Conversation)(nil)).
		Set("status = ?", model.StatusActive).
		Set("assigned_agent_id = ?", agentID).
		Where("id = ?", conversationID).
		Where("status = ?", model.StatusWaiting).
		Where("assigned_agent_id IS NULL").
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, "chatRepo.ClaimConversation.Update: ")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "chatRepo.ClaimConversation.RowsAffected: ")
	}
	return rows == 1, nil
}

func (r *ChatRepository) CloseConversation(ctx context.Context, conversationID uuid.UUID) (bool, error) {

	res, err := r.db.NewUpdate().
		Model((*model.Conversation)(nil)).
		Set("status = ?", model.StatusClosed).
		Set("closed_at = ?", time.Now()).
		Where("id = ?", conversationID).
		Where("status != ?", model.StatusClosed).
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, "chatRepo.CloseConversation.Update: ")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "chatRepo.CloseConversation.RowsAffected: ")
	}
	return rows == 1, nil
}

// ExpireStaleWaiting closes abandoned waiting conversations in one CAS
// sweep; a claim that lands first wins because the status guard no longer
// matches.
func (r *ChatRepository) ExpireStaleWaiting(ctx context.Context, cutoff time.Time) ([]*model.Conversation, error) {

	expired := make([]*model.Conversation, 0)
	_, err := r.db.NewUpdate().
		Model((*model.Conversation)(nil)).
		Set("status = ?", model.StatusClosed).
		Set("closed_at = ?", time.Now()).
		Where("status = ?", model.StatusWaiting).
		Where("started_at < ?", cutoff).
		Returning("*").
		Exec(ctx, &expired)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return expired[:0], nil
		}
		return nil, errors.Wrap(err, "chatRepo.ExpireStaleWaiting.Update: ")
	}
	return expired, nil
}

// CreateMessage persists the message and all its attachments in one
// transaction so history never observes a partial write.
func (r *ChatRepository) CreateMessage(ctx context.Context, msg *model.Message, attachments []*model.Attachment) error {

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {

		_, err := tx.NewInsert().Model(msg).Returning("*").Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "chatRepo.CreateMessage.InsertMessage: ")
		}

		for i := range attachments {
			attachments[i].MessageID = msg.ID
		}

		if len(attachments) > 0 {
			_, err = tx.NewInsert().Model(&attachments).Returning("*").Exec(ctx)
			if err != nil {
				return errors.Wrap(err, "chatRepo.CreateMessage.InsertAttachments: ")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	msg.Attachments = attachments
	return nil
}

func (r *ChatRepository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*model.Message, error) {

	msgs := make([]*model.Message, 0)
	err := r.db.NewSelect().
		Model(&msgs).
		Relation("Attachments").
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.ListMessages.Scan: ")
	}
	return msgs, nil
}

func (r *ChatRepository) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {

	msg := new(model.Message)
	err := r.db.NewSelect().Model(msg).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, errors.Wrap(err, "chatRepo.GetMessage.Scan: ")
	}
	return msg, nil
}

func (r *ChatRepository) ListAttachments(ctx context.Context, messageID uuid.UUID) ([]*model.Attachment, error) {

	atts := make([]*model.Attachment, 0)
	err := r.db.NewSelect().
		Model(&atts).
		Where("message_id = ?", messageID).
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.ListAttachments.Scan: ")
	}
	return atts, nil
}
