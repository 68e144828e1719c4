package model

import (
	"time"

	"github.com/google/uuid"
)

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderGuest    SenderType = "guest"
	SenderAgent    SenderType = "agent"
)

type Message struct {
	ID             uuid.UUID     `bun:",pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ConversationID uuid.UUID     `bun:",notnull,type:uuid" json:"conversation_id"`
	Conversation   *Conversation `bun:"rel:belongs-to,join:conversation_id=id" json:"-"`

	SenderType SenderType `bun:",notnull" json:"sender_type"`
	SenderID   *uuid.UUID `bun:",nullzero,type:uuid" json:"sender_id,omitempty"`

	// Body may be empty when the message carries attachments only.
	Body string `bun:",nullzero" json:"message,omitempty"`

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`

	Attachments []*Attachment `bun:"rel:has-many,join:id=message_id" json:"attachments"`
}

type Attachment struct {
	ID        uuid.UUID `bun:",pk,type:uuid,default:gen_random_uuid()" json:"id"`
	MessageID uuid.UUID `bun:",notnull,type:uuid" json:"message_id"`
	Message   *Message  `bun:"rel:belongs-to,join:message_id=id" json:"-"`

	FileURL  string `bun:",notnull" json:"file_url"`
	FileName string `bun:",notnull" json:"file_name"`
	FileType string `bun:",notnull" json:"file_type"`
	FileSize int64  `bun:",notnull,default:0" json:"file_size"`
}
