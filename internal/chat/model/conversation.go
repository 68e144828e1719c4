package model

import (
	"time"

	"github.com/google/uuid"
)

type ConversationStatus string

const (
	StatusWaiting ConversationStatus = "waiting"
	StatusActive  ConversationStatus = "active"
	StatusClosed  ConversationStatus = "closed"
)

type Conversation struct {
	ID uuid.UUID `bun:",pk,type:uuid,default:gen_random_uuid()" json:"id"`

	// Guest identification, present only when there is no authenticated
	// customer behind the conversation.
	GuestName  string `bun:",nullzero" json:"guest_name,omitempty"`
	GuestEmail string `bun:",nullzero" json:"guest_email,omitempty"`

	CustomerID *uuid.UUID `bun:",nullzero,type:uuid" json:"customer_id,omitempty"`

	// Status is active iff AssignedAgentID is set.
	Status          ConversationStatus `bun:",notnull,default:'waiting'" json:"status"`
	AssignedAgentID *uuid.UUID         `bun:",nullzero,type:uuid" json:"assigned_agent_id,omitempty"`

	StartedAt time.Time  `bun:",nullzero,notnull,default:current_timestamp" json:"started_at"`
	ClosedAt  *time.Time `bun:",nullzero" json:"closed_at,omitempty"`
}

func (c *Conversation) IsGuest() bool {
	return c.CustomerID == nil
}
