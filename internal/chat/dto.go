package chat

import (
	"time"

	"github.com/google/uuid"

	"livechat/internal/chat/model"
)

// NOTE: commands travel from handler to usecase,
// DTOs travel from usecase to handler.

// Input commands
type StartConversationCommand struct {
	GuestName  string
	GuestEmail string
	CustomerID *uuid.UUID
}

type SendMessageCommand struct {
	ConversationID uuid.UUID
	SenderType     model.SenderType
	SenderID       *uuid.UUID
	Body           string
	Attachments    []AttachmentUpload
}

// AttachmentUpload references a file already placed in storage; the
// usecase never sees attachment bytes.
type AttachmentUpload struct {
	FileURL  string
	FileName string
	FileType string
	FileSize int64
}

// TypingSignal is ephemeral: broadcast to the room and never persisted.
type TypingSignal struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserName       string    `json:"user_name,omitempty"`
}

// Output DTOs
type ConversationDTO struct {
	ID              uuid.UUID                `json:"id"`
	GuestName       string                   `json:"guest_name,omitempty"`
	GuestEmail      string                   `json:"guest_email,omitempty"`
	CustomerID      *uuid.UUID               `json:"customer_id,omitempty"`
	Status          model.ConversationStatus `json:"status"`
	AssignedAgentID *uuid.UUID               `json:"assigned_agent_id,omitempty"`
	StartedAt       time.Time                `json:"started_at"`
	ClosedAt        *time.Time               `json:"closed_at,omitempty"`
}

type MessageDTO struct {
	ID             uuid.UUID        `json:"id"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	SenderType     model.SenderType `json:"sender_type"`
	SenderID       *uuid.UUID       `json:"sender_id,omitempty"`
	Body           string           `json:"message,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	Attachments    []*AttachmentDTO `json:"attachments"`
}

type AttachmentDTO struct {
	ID        uuid.UUID `json:"id"`
	MessageID uuid.UUID `json:"message_id"`
	FileURL   string    `json:"file_url"`
	FileName  string    `json:"file_name"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
}

func ConversationToDTO(c *model.Conversation) *ConversationDTO {
	return &ConversationDTO{
		ID:              c.ID,
		GuestName:       c.GuestName,
		GuestEmail:      c.GuestEmail,
		CustomerID:      c.CustomerID,
		Status:          c.Status,
		AssignedAgentID: c.AssignedAgentID,
		StartedAt:       c.StartedAt,
		ClosedAt:        c.ClosedAt,
	}
}

func MessageToDTO(m *model.Message) *MessageDTO {
	dto := &MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderType:     m.SenderType,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
		Attachments:    make([]*AttachmentDTO, 0, len(m.Attachments)),
	}
	for _, a := range m.Attachments {
		dto.Attachments = append(dto.Attachments, AttachmentToDTO(a))
	}
	return dto
}

func AttachmentToDTO(a *model.Attachment) *AttachmentDTO {
	return &AttachmentDTO{
		ID:        a.ID,
		MessageID: a.MessageID,
		FileURL:   a.FileURL,
		FileName:  a.FileName,
		FileType:  a.FileType,
		FileSize:  a.FileSize,
	}
}
