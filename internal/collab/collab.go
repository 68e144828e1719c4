// Package collab declares the boundaries this service consumes but does
// not implement: identity, the customer-context lookups behind the agent
// sidebar, and attachment file storage.
package collab

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Identity is what the auth collaborator attaches to a request or
// transport session. Role is opaque here beyond the agent distinction.
type Identity struct {
	CustomerID *uuid.UUID
	AgentID    *uuid.UUID
}

func (id Identity) IsAgent() bool {
	return id.AgentID != nil
}

// Auth resolves the identity for an incoming request. An anonymous
// request resolves to the zero Identity (a guest).
type Auth interface {
	IdentityFor(r *http.Request) (Identity, error)
}

// StoredFile is what the file storage collaborator returns for an upload.
type StoredFile struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

// FileStore accepts attachment bytes and returns a reference. Content is
// opaque to the chat core.
type FileStore interface {
	Store(ctx context.Context, name, contentType string, r io.Reader) (StoredFile, error)
}

// Order and WishlistItem are display-only projections for the agent
// sidebar; the core does not interpret them.
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

type Customer struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	HomeAddress string    `json:"home_address,omitempty"`
}

type OrderLookup interface {
	CustomerByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	RecentOrders(ctx context.Context, customerID uuid.UUID) ([]Order, error)
}

type WishlistLookup interface {
	Wishlist(ctx context.Context, customerID uuid.UUID) ([]WishlistItem, error)
}
