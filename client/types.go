package client

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	ID              uuid.UUID  `json:"id"`
	GuestName       string     `json:"guest_name,omitempty"`
	GuestEmail      string     `json:"guest_email,omitempty"`
	CustomerID      *uuid.UUID `json:"customer_id,omitempty"`
	Status          string     `json:"status"`
	AssignedAgentID *uuid.UUID `json:"assigned_agent_id,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

const (
	StatusWaiting = "waiting"
	StatusActive  = "active"
	StatusClosed  = "closed"
)

type Message struct {
	ID             uuid.UUID    `json:"id"`
	ConversationID uuid.UUID    `json:"conversation_id"`
	SenderType     string       `json:"sender_type"`
	SenderID       *uuid.UUID   `json:"sender_id,omitempty"`
	Body           string       `json:"message,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	Attachments    []Attachment `json:"attachments"`
}

type Attachment struct {
	ID        uuid.UUID `json:"id"`
	MessageID uuid.UUID `json:"message_id"`
	FileURL   string    `json:"file_url"`
	FileName  string    `json:"file_name"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
}

type TypingSignal struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserName       string    `json:"user_name,omitempty"`
}

type Customer struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	HomeAddress string    `json:"home_address,omitempty"`
}

type Order struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
	Total  string    `json:"total"`
	Placed string    `json:"placed_at"`
}

type WishlistItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
}

type CustomerDetails struct {
	Customer Customer       `json:"customer"`
	Orders   []Order        `json:"orders"`
	Wishlist []WishlistItem `json:"wishlist"`
}

// CustomerContext is what the console sidebar renders. IsGuest is an
// explicit, displayed distinction, not a silently empty details struct.
type CustomerContext struct {
	IsGuest bool
	Details *CustomerDetails
}
